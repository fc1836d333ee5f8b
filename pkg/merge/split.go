package merge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SplitDefinition describes one entity to carve out of a split. Name is
// required; everything else falls back to the original entity.
type SplitDefinition struct {
	Name            string
	EntityType      string
	Description     string
	Properties      map[string]any
	ExternalIDs     map[string]any
	ConfidenceScore *float64
	SourceText      string
}

// SplitRequest asks for an entity to be divided into two or more new
// canonical entities. RelationshipAssignments and AliasAssignments map record
// ids to indices into Definitions; unassigned records go to index 0.
type SplitRequest struct {
	TenantID                string
	EntityID                string
	Definitions             []SplitDefinition
	RelationshipAssignments map[string]int
	AliasAssignments        map[string]int
	Reason                  string
	PerformedBy             string
}

// SplitResult reports what a successful split created.
type SplitResult struct {
	OriginalEntityID           string
	NewEntityIDs               []string
	RelationshipsRedistributed int
	AliasesRedistributed       int
	HistoryID                  string
	EventID                    string
}

// SplitEntity divides an over-merged entity into new canonical entities and
// redistributes its relationships and aliases among them.
func (s *Service) SplitEntity(ctx context.Context, req SplitRequest) (*SplitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.SplitEntity")
	defer span.End()

	log := s.logger.With(
		zap.String("tenant_id", req.TenantID),
		zap.String("entity_id", req.EntityID),
	)

	entity, err := s.entities.GetByID(ctx, req.TenantID, req.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, &SplitError{EntityID: req.EntityID, Reason: "entity not found"}
	}
	if len(req.Definitions) < 2 {
		return nil, &SplitError{EntityID: req.EntityID, Reason: "at least 2 split definitions are required"}
	}
	for _, def := range req.Definitions {
		if def.Name == "" {
			return nil, &SplitError{EntityID: req.EntityID, Reason: "every split definition requires a name"}
		}
	}

	result, err := s.applySplit(ctx, req, entity)
	if err != nil {
		log.Error("Split failed during mutation", zap.Error(err))
		return nil, &SplitError{EntityID: req.EntityID, Reason: "mutation failed", Err: err}
	}

	log.Info("Entity split",
		zap.Strings("new_entity_ids", result.NewEntityIDs),
		zap.Int("relationships_redistributed", result.RelationshipsRedistributed))

	return result, nil
}

func (s *Service) applySplit(ctx context.Context, req SplitRequest, entity *models.Entity) (*SplitResult, error) {
	now := time.Now().UTC()
	historyID := uuid.New().String()
	outbox := events.NewOutbox()

	newIDs := make([]string, 0, len(req.Definitions))
	for _, def := range req.Definitions {
		child := buildSplitEntity(entity, def, now)
		if err := s.entities.Create(ctx, &child); err != nil {
			return nil, err
		}
		newIDs = append(newIDs, child.ID)
	}

	result := &SplitResult{
		OriginalEntityID: entity.ID,
		NewEntityIDs:     newIDs,
		HistoryID:        historyID,
	}

	rels, err := s.relationships.ListByEntity(ctx, req.TenantID, entity.ID)
	if err != nil {
		return nil, err
	}
	for i := range rels {
		rel := rels[i]
		newID := newIDs[assignmentIndex(req.RelationshipAssignments, rel.ID, len(newIDs))]
		if rel.SourceEntityID == entity.ID {
			rel.SourceEntityID = newID
		}
		if rel.TargetEntityID == entity.ID {
			rel.TargetEntityID = newID
		}
		if rel.SourceEntityID == rel.TargetEntityID {
			if err := s.relationships.Delete(ctx, req.TenantID, rel.ID); err != nil {
				return nil, err
			}
			continue
		}
		rel.UpdatedAt = now
		if err := s.relationships.Update(ctx, &rel); err != nil {
			return nil, err
		}
		result.RelationshipsRedistributed++
	}

	aliases, err := s.aliases.ListByCanonical(ctx, req.TenantID, entity.ID)
	if err != nil {
		return nil, err
	}
	for i := range aliases {
		alias := aliases[i]
		alias.CanonicalEntityID = newIDs[assignmentIndex(req.AliasAssignments, alias.ID, len(newIDs))]
		if err := s.aliases.Update(ctx, &alias); err != nil {
			return nil, err
		}
		result.AliasesRedistributed++
	}

	if entity.Properties == nil {
		entity.Properties = map[string]any{}
	}
	entity.Properties["_split_into"] = map[string]any{
		"entity_ids":   newIDs,
		"split_at":     now.Format(time.RFC3339),
		"reason":       req.Reason,
		"performed_by": req.PerformedBy,
	}
	entity.IsCanonical = false
	entity.UpdatedAt = now
	if err := s.entities.Update(ctx, entity); err != nil {
		return nil, err
	}

	record := &models.MergeHistory{
		ID:                historyID,
		TenantID:          req.TenantID,
		EventType:         models.MergeEventEntitySplit,
		CanonicalEntityID: entity.ID,
		AffectedEntityIDs: newIDs,
		MergeReason:       req.Reason,
		Details: map[string]any{
			"new_entity_ids":              newIDs,
			"relationships_redistributed": result.RelationshipsRedistributed,
			"aliases_redistributed":       result.AliasesRedistributed,
		},
		PerformedBy: req.PerformedBy,
		CreatedAt:   now,
	}
	if err := s.history.Create(ctx, record); err != nil {
		return nil, err
	}

	splitEvent := events.EntitySplitEvent{
		BaseEvent:        events.NewBaseEvent(events.EventTypeEntitySplit, req.TenantID),
		SplitEventID:     historyID,
		OriginalEntityID: entity.ID,
		NewEntityIDs:     newIDs,
		SplitReason:      req.Reason,
	}
	result.EventID = splitEvent.CorrelationID
	outbox.Add(splitEvent)

	if err := outbox.Flush(ctx, s.publisher); err != nil {
		outbox.Discard()
		return nil, err
	}

	return result, nil
}

// buildSplitEntity materializes one split definition, inheriting from the
// original where the definition is silent. The source page is always
// inherited so provenance survives the split. Property bags are deep-copied
// so children never alias the original's nested maps or the caller's
// definition, which the split stamp below would otherwise mutate.
func buildSplitEntity(original *models.Entity, def SplitDefinition, now time.Time) models.Entity {
	child := models.Entity{
		ID:              uuid.New().String(),
		TenantID:        original.TenantID,
		EntityType:      original.EntityType,
		Name:            def.Name,
		NormalizedName:  normalize.Normalize(def.Name),
		Description:     original.Description,
		ConfidenceScore: original.ConfidenceScore,
		SourcePageID:    original.SourcePageID,
		SourceText:      original.SourceText,
		IsCanonical:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if def.EntityType != "" {
		child.EntityType = def.EntityType
	}
	if def.Description != "" {
		child.Description = def.Description
	}
	if def.Properties != nil {
		child.Properties = deepCopyMap(def.Properties)
	} else {
		child.Properties = deepCopyMap(original.Properties)
	}
	if def.ExternalIDs != nil {
		child.ExternalIDs = deepCopyMap(def.ExternalIDs)
	} else {
		child.ExternalIDs = deepCopyMap(original.ExternalIDs)
	}
	if def.ConfidenceScore != nil {
		child.ConfidenceScore = *def.ConfidenceScore
	}
	if def.SourceText != "" {
		child.SourceText = def.SourceText
	}
	delete(child.Properties, "_split_into")
	return child
}

// assignmentIndex resolves a record's destination index, defaulting to 0 and
// clamping out-of-range values to 0.
func assignmentIndex(assignments map[string]int, id string, count int) int {
	idx, ok := assignments[id]
	if !ok || idx < 0 || idx >= count {
		return 0
	}
	return idx
}
