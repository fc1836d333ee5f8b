// Package merge implements entity merging, merge undo, and entity splitting.
// All three operations validate before mutating and buffer their domain events
// so nothing is published unless the mutation succeeds. Transaction boundaries
// belong to the caller; the service only reads and writes through its stores.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// PropertyValidator checks a property bag against the tenant's entity type
// schema. The schema registry implements it; a nil validator skips the check.
type PropertyValidator interface {
	ValidateProperties(ctx context.Context, tenantID, entityType string, properties map[string]any) (schema.ValidationResult, error)
}

// Service performs merge, undo, and split operations.
type Service struct {
	entities      EntityStore
	relationships RelationshipStore
	aliases       AliasStore
	history       HistoryStore
	schemas       PropertyValidator
	publisher     events.Publisher
	logger        *zap.Logger
}

// NewService creates a merge service. schemas may be nil, in which case
// reconciled property bags are not schema-checked.
func NewService(
	entities EntityStore,
	relationships RelationshipStore,
	aliases AliasStore,
	history HistoryStore,
	schemas PropertyValidator,
	publisher events.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		entities:      entities,
		relationships: relationships,
		aliases:       aliases,
		history:       history,
		schemas:       schemas,
		publisher:     publisher,
		logger:        logger,
	}
}

// MergeRequest describes a merge of one or more entities into a canonical one.
type MergeRequest struct {
	TenantID          string
	CanonicalEntityID string
	MergedEntityIDs   []string
	Reason            string
	SimilarityScores  map[string]float64
	PerformedBy       string
}

// MergeResult reports what a successful merge did.
type MergeResult struct {
	CanonicalEntityID        string
	MergedEntityIDs          []string
	Aliases                  []models.EntityAlias
	RelationshipsTransferred int
	PropertyMerges           []PropertyMergeDetail
	HistoryID                string
	EventID                  string
}

// MergeEntities merges the named entities into the canonical entity. All
// preconditions are checked before any write; a ValidationError means nothing
// changed. Events are buffered and only published after every write succeeds.
func (s *Service) MergeEntities(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.MergeEntities")
	defer span.End()

	log := s.logger.With(
		zap.String("tenant_id", req.TenantID),
		zap.String("canonical_entity_id", req.CanonicalEntityID),
	)

	canonical, merged, issues, err := s.loadAndValidate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	if issues, err := s.validateMergedProperties(ctx, req.TenantID, canonical, merged); err != nil {
		return nil, err
	} else if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	result, err := s.applyMerge(ctx, req, canonical, merged)
	if err != nil {
		log.Error("Merge failed during mutation", zap.Error(err))
		return nil, &MergeError{CanonicalEntityID: req.CanonicalEntityID, Err: err}
	}

	log.Info("Entities merged",
		zap.Strings("merged_entity_ids", result.MergedEntityIDs),
		zap.Int("relationships_transferred", result.RelationshipsTransferred))

	return result, nil
}

// IsMergeable checks the merge preconditions for a pair without mutating.
func (s *Service) IsMergeable(ctx context.Context, tenantID, canonicalID, mergedID string) bool {
	issues, err := s.ValidateMerge(ctx, MergeRequest{
		TenantID:          tenantID,
		CanonicalEntityID: canonicalID,
		MergedEntityIDs:   []string{mergedID},
	})
	return err == nil && len(issues) == 0
}

// ValidateMerge collects precondition issues without mutating. An empty slice
// means the merge would proceed.
func (s *Service) ValidateMerge(ctx context.Context, req MergeRequest) ([]string, error) {
	_, _, issues, err := s.loadAndValidate(ctx, req)
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *Service) loadAndValidate(ctx context.Context, req MergeRequest) (*models.Entity, []*models.Entity, []string, error) {
	var issues []string

	if len(req.MergedEntityIDs) == 0 {
		issues = append(issues, "at least one entity to merge is required")
	}

	canonical, err := s.entities.GetByID(ctx, req.TenantID, req.CanonicalEntityID)
	if err != nil {
		return nil, nil, nil, err
	}
	switch {
	case canonical == nil:
		issues = append(issues, fmt.Sprintf("canonical entity %s not found", req.CanonicalEntityID))
	case canonical.TenantID != req.TenantID:
		issues = append(issues, fmt.Sprintf("canonical entity %s belongs to another tenant", req.CanonicalEntityID))
	case !canonical.IsCanonical:
		issues = append(issues, fmt.Sprintf("canonical entity %s is not canonical", req.CanonicalEntityID))
	}

	merged := make([]*models.Entity, 0, len(req.MergedEntityIDs))
	for _, id := range req.MergedEntityIDs {
		if id == req.CanonicalEntityID {
			issues = append(issues, fmt.Sprintf("entity %s cannot be merged into itself", id))
			continue
		}
		entity, err := s.entities.GetByID(ctx, req.TenantID, id)
		if err != nil {
			return nil, nil, nil, err
		}
		switch {
		case entity == nil:
			issues = append(issues, fmt.Sprintf("entity %s not found", id))
		case entity.TenantID != req.TenantID:
			issues = append(issues, fmt.Sprintf("entity %s belongs to another tenant", id))
		case !entity.IsCanonical:
			issues = append(issues, fmt.Sprintf("entity %s is already an alias", id))
		default:
			merged = append(merged, entity)
		}
	}

	return canonical, merged, issues, nil
}

// validateMergedProperties projects the reconciled property bag and checks it
// against the tenant's entity type schema before anything is written.
func (s *Service) validateMergedProperties(ctx context.Context, tenantID string, canonical *models.Entity, merged []*models.Entity) ([]string, error) {
	if s.schemas == nil || canonical.EntityType == "" {
		return nil, nil
	}

	projected := canonical.Properties
	for _, entity := range merged {
		projected = deepMergeMaps(projected, entity.Properties)
	}

	result, err := s.schemas.ValidateProperties(ctx, tenantID, canonical.EntityType, projected)
	if err != nil {
		return nil, err
	}
	if result.Valid {
		return nil, nil
	}

	issues := make([]string, 0, len(result.Errors))
	for _, fieldErr := range result.Errors {
		issues = append(issues, fmt.Sprintf("merged properties fail the %s schema: %s: %s",
			canonical.EntityType, fieldErr.Field, fieldErr.Message))
	}
	return issues, nil
}

func (s *Service) applyMerge(ctx context.Context, req MergeRequest, canonical *models.Entity, merged []*models.Entity) (*MergeResult, error) {
	now := time.Now().UTC()
	historyID := uuid.New().String()
	outbox := events.NewOutbox()

	// Relationship snapshot goes into the history record so undo can replay
	// the pre-merge graph.
	snapshot, err := s.snapshotRelationships(ctx, req.TenantID, merged)
	if err != nil {
		return nil, err
	}

	canonicalEdges, err := s.edgeSet(ctx, req.TenantID, canonical.ID)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{
		CanonicalEntityID: canonical.ID,
		HistoryID:         historyID,
	}

	for _, entity := range merged {
		detail := PropertyMergeDetail{
			MergedEntityID:   entity.ID,
			ConfidenceBefore: canonical.ConfidenceScore,
		}

		// Snapshot before anything touches the entity.
		alias := models.SnapshotFromEntity(entity)
		alias.ID = uuid.New().String()
		alias.CanonicalEntityID = canonical.ID
		alias.Fingerprint = fingerprint.Entity(entity)
		alias.MergeEventID = historyID
		alias.MergeReason = req.Reason
		alias.MergedAt = now

		mergedProps := deepMergeMaps(canonical.Properties, entity.Properties)
		detail.PropertyKeysAdded = addedKeys(canonical.Properties, mergedProps)
		canonical.Properties = mergedProps

		mergedExternal := deepMergeMaps(canonical.ExternalIDs, entity.ExternalIDs)
		detail.ExternalIDKeysAdded = addedKeys(canonical.ExternalIDs, mergedExternal)
		canonical.ExternalIDs = mergedExternal

		if canonical.Description == "" && entity.Description != "" {
			canonical.Description = entity.Description
			detail.AdoptedDescription = true
		}
		if entity.ConfidenceScore > canonical.ConfidenceScore {
			canonical.ConfidenceScore = entity.ConfidenceScore
		}
		detail.ConfidenceAfter = canonical.ConfidenceScore

		transferred, err := s.transferRelationships(ctx, req.TenantID, entity.ID, canonical.ID, canonicalEdges)
		if err != nil {
			return nil, err
		}
		result.RelationshipsTransferred += transferred

		if err := s.aliases.Create(ctx, &alias); err != nil {
			return nil, err
		}

		entity.IsCanonical = false
		entity.IsAliasOf = &canonical.ID
		entity.UpdatedAt = now
		if err := s.entities.Update(ctx, entity); err != nil {
			return nil, err
		}

		result.Aliases = append(result.Aliases, alias)
		result.MergedEntityIDs = append(result.MergedEntityIDs, entity.ID)
		result.PropertyMerges = append(result.PropertyMerges, detail)
	}

	canonical.UpdatedAt = now
	if err := s.entities.Update(ctx, canonical); err != nil {
		return nil, err
	}

	record := &models.MergeHistory{
		ID:                historyID,
		TenantID:          req.TenantID,
		EventType:         models.MergeEventEntitiesMerged,
		CanonicalEntityID: canonical.ID,
		AffectedEntityIDs: result.MergedEntityIDs,
		MergeReason:       req.Reason,
		SimilarityScores:  req.SimilarityScores,
		Details: map[string]any{
			"relationships_transferred": result.RelationshipsTransferred,
			"property_merges":           result.PropertyMerges,
			"relationship_snapshot":     snapshot,
		},
		PerformedBy: req.PerformedBy,
		CreatedAt:   now,
	}
	if err := s.history.Create(ctx, record); err != nil {
		return nil, err
	}

	mergedEvent := events.EntitiesMergedEvent{
		BaseEvent:                events.NewBaseEvent(events.EventTypeEntitiesMerged, req.TenantID),
		MergeEventID:             historyID,
		CanonicalEntityID:        canonical.ID,
		MergedEntityIDs:          result.MergedEntityIDs,
		RelationshipsTransferred: result.RelationshipsTransferred,
		MergeReason:              req.Reason,
		SimilarityScores:         req.SimilarityScores,
	}
	result.EventID = mergedEvent.CorrelationID
	outbox.Add(mergedEvent)

	for _, alias := range result.Aliases {
		outbox.Add(events.AliasCreatedEvent{
			BaseEvent:         events.NewBaseEvent(events.EventTypeAliasCreated, req.TenantID),
			AliasID:           alias.ID,
			OriginalEntityID:  alias.OriginalEntityID,
			CanonicalEntityID: canonical.ID,
			MergeEventID:      historyID,
		})
	}

	if err := outbox.Flush(ctx, s.publisher); err != nil {
		// Writes already happened inside the caller's transaction; a publish
		// failure surfaces so the caller can roll back.
		outbox.Discard()
		return nil, err
	}

	return result, nil
}

// snapshotRelationships captures every relationship touching the merged
// entities before transfer rewrites them.
func (s *Service) snapshotRelationships(ctx context.Context, tenantID string, merged []*models.Entity) ([]models.EntityRelationship, error) {
	seen := make(map[string]bool)
	var snapshot []models.EntityRelationship
	for _, entity := range merged {
		rels, err := s.relationships.ListByEntity(ctx, tenantID, entity.ID)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true
			snapshot = append(snapshot, rel)
		}
	}
	return snapshot, nil
}

// edgeSet builds the (direction, counterpart, type) set for an entity so
// transfer can detect duplicate edges.
func (s *Service) edgeSet(ctx context.Context, tenantID, entityID string) (map[string]bool, error) {
	rels, err := s.relationships.ListByEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(rels))
	for _, rel := range rels {
		if rel.SourceEntityID == entityID {
			set[edgeKey("out", rel.TargetEntityID, rel.RelationshipType)] = true
		}
		if rel.TargetEntityID == entityID {
			set[edgeKey("in", rel.SourceEntityID, rel.RelationshipType)] = true
		}
	}
	return set, nil
}

func edgeKey(direction, counterpartID, relType string) string {
	return direction + "|" + counterpartID + "|" + relType
}

// transferRelationships repoints every edge on mergedID to canonicalID,
// dropping self-loops and edges the canonical entity already has.
func (s *Service) transferRelationships(ctx context.Context, tenantID, mergedID, canonicalID string, canonicalEdges map[string]bool) (int, error) {
	rels, err := s.relationships.ListByEntity(ctx, tenantID, mergedID)
	if err != nil {
		return 0, err
	}

	transferred := 0
	now := time.Now().UTC()
	for i := range rels {
		rel := rels[i]

		switch {
		case rel.SourceEntityID == mergedID:
			if rel.TargetEntityID == canonicalID {
				// Would become a self-loop.
				if err := s.relationships.Delete(ctx, tenantID, rel.ID); err != nil {
					return transferred, err
				}
				continue
			}
			key := edgeKey("out", rel.TargetEntityID, rel.RelationshipType)
			if canonicalEdges[key] {
				if err := s.relationships.Delete(ctx, tenantID, rel.ID); err != nil {
					return transferred, err
				}
				continue
			}
			rel.SourceEntityID = canonicalID
			rel.UpdatedAt = now
			if err := s.relationships.Update(ctx, &rel); err != nil {
				return transferred, err
			}
			canonicalEdges[key] = true
			transferred++

		case rel.TargetEntityID == mergedID:
			if rel.SourceEntityID == canonicalID {
				if err := s.relationships.Delete(ctx, tenantID, rel.ID); err != nil {
					return transferred, err
				}
				continue
			}
			key := edgeKey("in", rel.SourceEntityID, rel.RelationshipType)
			if canonicalEdges[key] {
				if err := s.relationships.Delete(ctx, tenantID, rel.ID); err != nil {
					return transferred, err
				}
				continue
			}
			rel.TargetEntityID = canonicalID
			rel.UpdatedAt = now
			if err := s.relationships.Update(ctx, &rel); err != nil {
				return transferred, err
			}
			canonicalEdges[key] = true
			transferred++
		}
	}

	return transferred, nil
}
