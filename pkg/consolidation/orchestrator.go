// Package consolidation runs the per-tenant batch pipeline: blocking, scoring,
// decision routing, and either auto-merge or review enqueueing for every
// candidate pair.
package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/decision"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/scoring"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EntityLoader fetches the canonical entities a run will process.
type EntityLoader interface {
	ListCanonical(ctx context.Context, tenantID string, scope models.ConsolidationScope) ([]*models.Entity, error)
}

// ReviewQueue manages pending human-review items. PendingPairExists must match
// the pair in either id order.
type ReviewQueue interface {
	PendingPairExists(ctx context.Context, tenantID, entityID, candidateEntityID string) (bool, error)
	Enqueue(ctx context.Context, item *models.MergeReviewItem) error
}

// Merger is the slice of the merge service the orchestrator calls.
type Merger interface {
	MergeEntities(ctx context.Context, req merge.MergeRequest) (*merge.MergeResult, error)
}

// ProgressFunc receives incremental totals after each processed entity.
type ProgressFunc func(progress models.ConsolidationProgress)

// Orchestrator wires blocking, scoring, routing, and merging into one batch
// entry point.
type Orchestrator struct {
	entities  EntityLoader
	blocker   *blocking.Engine
	scorer    *scoring.Scorer
	router    *decision.Router
	merger    Merger
	reviews   ReviewQueue
	publisher events.Publisher
	logger    *zap.Logger
}

// NewOrchestrator creates a consolidation orchestrator.
func NewOrchestrator(
	entities EntityLoader,
	blocker *blocking.Engine,
	scorer *scoring.Scorer,
	router *decision.Router,
	merger Merger,
	reviews ReviewQueue,
	publisher events.Publisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		entities:  entities,
		blocker:   blocker,
		scorer:    scorer,
		router:    router,
		merger:    merger,
		reviews:   reviews,
		publisher: publisher,
		logger:    logger,
	}
}

// mergeFallbackPriority is used when an auto-merge fails and the pair is
// demoted to human review instead of being dropped.
const mergeFallbackPriority = 50

// RunConsolidation processes every canonical entity in scope for one tenant.
// The summary always carries the running totals, even when the run fails
// partway. Cancellation is checked between entities.
func (o *Orchestrator) RunConsolidation(ctx context.Context, tenantID string, scope models.ConsolidationScope, onProgress ProgressFunc) (*models.ConsolidationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "consolidation.Orchestrator.RunConsolidation")
	defer span.End()

	log := o.logger.With(zap.String("tenant_id", tenantID))

	summary := &models.ConsolidationSummary{
		TenantID:  tenantID,
		StartedAt: time.Now().UTC(),
	}

	entities, err := o.entities.ListCanonical(ctx, tenantID, scope)
	if err != nil {
		log.Error("Failed to load entities for consolidation", zap.Error(err))
		return o.finish(ctx, summary, err)
	}

	log.Info("Consolidation run started", zap.Int("entities", len(entities)))

	reviewThreshold := o.router.Thresholds().Review
	processedPairs := make(map[string]bool)
	// Entities absorbed by an auto-merge earlier in this run are no longer
	// canonical and get skipped when their turn comes.
	absorbed := make(map[string]bool)

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			log.Warn("Consolidation run cancelled", zap.Error(err))
			return o.finish(ctx, summary, err)
		}

		if absorbed[entity.ID] {
			summary.EntitiesSkipped++
			continue
		}

		result, err := o.blocker.FindCandidates(ctx, entity, tenantID)
		if err != nil {
			log.Warn("Blocking failed for entity, skipping",
				zap.String("entity_id", entity.ID),
				zap.Error(err))
			summary.EntitiesSkipped++
			continue
		}

		summary.EntitiesProcessed++

		for _, candidate := range result.Candidates {
			scores := o.scorer.ComputeAll(entity, candidate.Entity, candidate.BlockingKeys)
			if scores.CombinedScore < reviewThreshold {
				continue
			}

			key := pairKey(entity.ID, candidate.Entity.ID)
			if processedPairs[key] {
				continue
			}
			processedPairs[key] = true
			summary.CandidatesFound++

			switch o.router.Route(scores.CombinedScore) {
			case decision.ActionAutoMerge:
				o.autoMerge(ctx, log, summary, tenantID, entity, candidate.Entity, scores, absorbed)
			case decision.ActionReview:
				if o.enqueueReview(ctx, log, tenantID, entity.ID, candidate.Entity.ID, scores, reviewPriority(scores.Confidence)) {
					summary.QueuedForReview++
				}
			}
		}

		if onProgress != nil {
			onProgress(models.ConsolidationProgress{
				TenantID:          tenantID,
				EntityID:          entity.ID,
				EntitiesProcessed: summary.EntitiesProcessed,
				EntitiesTotal:     len(entities),
				CandidatesFound:   summary.CandidatesFound,
				AutoMerged:        summary.AutoMerged,
				QueuedForReview:   summary.QueuedForReview,
			})
		}
	}

	log.Info("Consolidation run completed",
		zap.Int("entities_processed", summary.EntitiesProcessed),
		zap.Int("auto_merged", summary.AutoMerged),
		zap.Int("queued_for_review", summary.QueuedForReview))

	return o.finish(ctx, summary, nil)
}

func (o *Orchestrator) autoMerge(
	ctx context.Context,
	log *zap.Logger,
	summary *models.ConsolidationSummary,
	tenantID string,
	entity, candidate *models.Entity,
	scores models.SimilarityScores,
	absorbed map[string]bool,
) {
	_, err := o.merger.MergeEntities(ctx, merge.MergeRequest{
		TenantID:          tenantID,
		CanonicalEntityID: entity.ID,
		MergedEntityIDs:   []string{candidate.ID},
		Reason:            fmt.Sprintf("auto-merge: combined score %.3f", scores.CombinedScore),
		SimilarityScores:  scores.ToMap(),
		PerformedBy:       "consolidation",
	})
	if err != nil {
		// The candidate pair survives as a review item instead of being lost.
		log.Warn("Auto-merge failed, demoting to review",
			zap.String("entity_id", entity.ID),
			zap.String("candidate_entity_id", candidate.ID),
			zap.Error(err))
		if o.enqueueReview(ctx, log, tenantID, entity.ID, candidate.ID, scores, mergeFallbackPriority) {
			summary.QueuedForReview++
		}
		return
	}

	summary.AutoMerged++
	absorbed[candidate.ID] = true
}

func (o *Orchestrator) enqueueReview(
	ctx context.Context,
	log *zap.Logger,
	tenantID, entityID, candidateEntityID string,
	scores models.SimilarityScores,
	priority int,
) bool {
	exists, err := o.reviews.PendingPairExists(ctx, tenantID, entityID, candidateEntityID)
	if err != nil {
		log.Warn("Failed to check pending review items",
			zap.String("entity_id", entityID),
			zap.Error(err))
		return false
	}
	if exists {
		return false
	}

	now := time.Now().UTC()
	item := &models.MergeReviewItem{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		EntityID:          entityID,
		CandidateEntityID: candidateEntityID,
		Confidence:        scores.Confidence,
		SimilarityScores:  scores.ToMap(),
		Status:            models.ReviewStatusPending,
		Priority:          priority,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.reviews.Enqueue(ctx, item); err != nil {
		log.Warn("Failed to enqueue review item",
			zap.String("entity_id", entityID),
			zap.Error(err))
		return false
	}
	return true
}

// finish stamps the terminal state and emits the completion event. Counts are
// reported even for failed runs.
func (o *Orchestrator) finish(ctx context.Context, summary *models.ConsolidationSummary, runErr error) (*models.ConsolidationSummary, error) {
	summary.CompletedAt = time.Now().UTC()
	if runErr != nil {
		summary.Status = models.ConsolidationStatusFailed
		summary.Error = runErr.Error()
	} else {
		summary.Status = models.ConsolidationStatusCompleted
	}

	if o.publisher != nil {
		event := events.ConsolidationCompletedEvent{
			BaseEvent: events.NewBaseEvent(events.EventTypeConsolidationCompleted, summary.TenantID),
			Summary:   *summary,
		}
		// Delivery is best-effort; the summary is still returned to the caller.
		if err := o.publisher.Publish(ctx, event); err != nil {
			o.logger.Warn("Failed to publish consolidation summary",
				zap.String("tenant_id", summary.TenantID),
				zap.Error(err))
		}
	}

	return summary, runErr
}

// reviewPriority ranks pairs for human attention. Borderline confidence is
// where review adds the most value, so it sorts first.
func reviewPriority(confidence float64) int {
	switch {
	case confidence >= 0.65 && confidence <= 0.85:
		return 100
	case confidence >= 0.50 && confidence < 0.65:
		return 75
	case confidence > 0.85 && confidence < 0.90:
		return 50
	default:
		return 25
	}
}

// pairKey is order-independent so (a,b) and (b,a) dedupe to one pair.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}
