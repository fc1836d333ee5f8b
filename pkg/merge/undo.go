package merge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// UndoRequest asks for a prior merge to be reversed. RestoreEntityIDs limits
// the undo to the named original entities; empty means restore everything.
type UndoRequest struct {
	TenantID         string
	MergeEventID     string
	Reason           string
	PerformedBy      string
	RestoreEntityIDs []string
}

// UndoResult reports what an undo restored. RestoredEntities maps each
// original entity id to the id of its freshly created replacement.
type UndoResult struct {
	CanonicalEntityID     string
	RestoredEntities      map[string]string
	RelationshipsReplayed int
	HistoryID             string
	EventID               string
}

// UndoMerge reverses a prior merge by rebuilding the merged-away entities from
// their alias snapshots. Restored entities get new ids; the old ids stay dead.
func (s *Service) UndoMerge(ctx context.Context, req UndoRequest) (*UndoResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Service.UndoMerge")
	defer span.End()

	log := s.logger.With(
		zap.String("tenant_id", req.TenantID),
		zap.String("merge_event_id", req.MergeEventID),
	)

	record, err := s.history.GetByID(ctx, req.TenantID, req.MergeEventID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &UndoError{MergeEventID: req.MergeEventID, Reason: "merge event not found"}
	}
	if !record.CanUndo() {
		return nil, &UndoError{MergeEventID: req.MergeEventID, Reason: "merge event has already been undone or is not a merge"}
	}

	aliases, err := s.aliases.ListByMergeEvent(ctx, req.TenantID, req.MergeEventID)
	if err != nil {
		return nil, err
	}
	aliases = filterAliases(aliases, req.RestoreEntityIDs)
	if len(aliases) == 0 {
		return nil, &UndoError{MergeEventID: req.MergeEventID, Reason: "no entities to restore"}
	}
	if len(aliases) < expectedRestoreCount(record, req.RestoreEntityIDs) {
		// Some aliases may have been consumed by a later merge. Restore what
		// is still available.
		log.Warn("Fewer aliases than expected, restoring available subset",
			zap.Int("found", len(aliases)))
	}

	result, err := s.applyUndo(ctx, req, record, aliases)
	if err != nil {
		log.Error("Undo failed during mutation", zap.Error(err))
		return nil, &UndoError{MergeEventID: req.MergeEventID, Reason: "mutation failed", Err: err}
	}

	log.Info("Merge undone",
		zap.Int("entities_restored", len(result.RestoredEntities)),
		zap.Int("relationships_replayed", result.RelationshipsReplayed))

	return result, nil
}

func (s *Service) applyUndo(ctx context.Context, req UndoRequest, record *models.MergeHistory, aliases []models.EntityAlias) (*UndoResult, error) {
	now := time.Now().UTC()
	undoHistoryID := uuid.New().String()
	outbox := events.NewOutbox()

	restored := make(map[string]string, len(aliases))
	for i := range aliases {
		alias := aliases[i]
		newID := uuid.New().String()
		entity := alias.RestoreEntity(newID, now)
		if err := s.entities.Create(ctx, &entity); err != nil {
			return nil, err
		}
		restored[alias.OriginalEntityID] = newID
	}

	replayed, err := s.replayRelationships(ctx, req.TenantID, record, restored, now)
	if err != nil {
		return nil, err
	}

	if err := s.history.MarkUndone(ctx, req.TenantID, record.ID, req.PerformedBy, req.Reason, now); err != nil {
		return nil, err
	}

	for i := range aliases {
		if err := s.aliases.Delete(ctx, req.TenantID, aliases[i].ID); err != nil {
			return nil, err
		}
	}

	restoredIDs := make([]string, 0, len(restored))
	for _, newID := range restored {
		restoredIDs = append(restoredIDs, newID)
	}
	undoRecord := &models.MergeHistory{
		ID:                undoHistoryID,
		TenantID:          req.TenantID,
		EventType:         models.MergeEventMergeUndone,
		CanonicalEntityID: record.CanonicalEntityID,
		AffectedEntityIDs: restoredIDs,
		MergeReason:       req.Reason,
		Details: map[string]any{
			"undone_merge_event_id":  record.ID,
			"restored_entity_ids":    restored,
			"relationships_replayed": replayed,
		},
		PerformedBy: req.PerformedBy,
		CreatedAt:   now,
	}
	if err := s.history.Create(ctx, undoRecord); err != nil {
		return nil, err
	}

	undoneEvent := events.MergeUndoneEvent{
		BaseEvent:         events.NewBaseEvent(events.EventTypeMergeUndone, req.TenantID),
		MergeEventID:      record.ID,
		UndoEventID:       undoHistoryID,
		CanonicalEntityID: record.CanonicalEntityID,
		RestoredEntityIDs: restored,
		UndoReason:        req.Reason,
	}
	outbox.Add(undoneEvent)

	if err := outbox.Flush(ctx, s.publisher); err != nil {
		outbox.Discard()
		return nil, err
	}

	return &UndoResult{
		CanonicalEntityID:     record.CanonicalEntityID,
		RestoredEntities:      restored,
		RelationshipsReplayed: replayed,
		HistoryID:             undoHistoryID,
		EventID:               undoneEvent.CorrelationID,
	}, nil
}

// replayRelationships rebuilds the pre-merge edges captured in the history
// record, remapping restored original ids to the new entity ids. Edges that
// do not touch a restored original are left alone; edges that would become
// self-referential are skipped.
func (s *Service) replayRelationships(ctx context.Context, tenantID string, record *models.MergeHistory, restored map[string]string, now time.Time) (int, error) {
	snapshot, err := decodeRelationshipSnapshot(record.Details)
	if err != nil {
		s.logger.Warn("Unreadable relationship snapshot, skipping replay",
			zap.String("merge_event_id", record.ID),
			zap.Error(err))
		return 0, nil
	}
	if len(snapshot) == 0 {
		return 0, nil
	}

	replayed := 0
	for _, rel := range snapshot {
		newSource, sourceRestored := restored[rel.SourceEntityID]
		newTarget, targetRestored := restored[rel.TargetEntityID]
		if !sourceRestored && !targetRestored {
			continue
		}
		if sourceRestored {
			rel.SourceEntityID = newSource
		}
		if targetRestored {
			rel.TargetEntityID = newTarget
		}
		if rel.SourceEntityID == rel.TargetEntityID {
			continue
		}

		rel.ID = uuid.New().String()
		rel.TenantID = tenantID
		rel.CreatedAt = now
		rel.UpdatedAt = now
		if err := s.relationships.Create(ctx, &rel); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// decodeRelationshipSnapshot pulls the relationship snapshot out of the
// history details. A JSON round trip normalizes both the in-memory form (a
// typed slice) and the persisted form (generic maps from JSONB).
func decodeRelationshipSnapshot(details map[string]any) ([]models.EntityRelationship, error) {
	raw, ok := details["relationship_snapshot"]
	if !ok || raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var snapshot []models.EntityRelationship
	if err := json.Unmarshal(encoded, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func filterAliases(aliases []models.EntityAlias, restoreEntityIDs []string) []models.EntityAlias {
	if len(restoreEntityIDs) == 0 {
		return aliases
	}
	wanted := make(map[string]bool, len(restoreEntityIDs))
	for _, id := range restoreEntityIDs {
		wanted[id] = true
	}
	filtered := aliases[:0]
	for _, alias := range aliases {
		if wanted[alias.OriginalEntityID] {
			filtered = append(filtered, alias)
		}
	}
	return filtered
}

func expectedRestoreCount(record *models.MergeHistory, restoreEntityIDs []string) int {
	if len(restoreEntityIDs) > 0 {
		return len(restoreEntityIDs)
	}
	return len(record.AffectedEntityIDs)
}
