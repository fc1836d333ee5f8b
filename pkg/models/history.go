package models

import (
	"time"
)

// MergeEventType identifies the kind of consolidation mutation a history
// record describes.
type MergeEventType string

const (
	MergeEventEntitiesMerged MergeEventType = "ENTITIES_MERGED"
	MergeEventMergeUndone    MergeEventType = "MERGE_UNDONE"
	MergeEventEntitySplit    MergeEventType = "ENTITY_SPLIT"
)

// MergeHistory is the append-only audit record for merge/undo/split. Only the
// Undone* fields mutate after insert, and they are set exactly once.
type MergeHistory struct {
	ID                string             `json:"id" db:"id"`
	TenantID          string             `json:"tenant_id" db:"tenant_id"`
	EventType         MergeEventType     `json:"event_type" db:"event_type"`
	CanonicalEntityID string             `json:"canonical_entity_id" db:"canonical_entity_id"`
	AffectedEntityIDs []string           `json:"affected_entity_ids" db:"affected_entity_ids"`
	MergeReason       string             `json:"merge_reason" db:"merge_reason"`
	SimilarityScores  map[string]float64 `json:"similarity_scores,omitempty" db:"similarity_scores"`
	Details           map[string]any     `json:"details,omitempty" db:"details"`
	PerformedBy       string             `json:"performed_by,omitempty" db:"performed_by"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`

	Undone     bool       `json:"undone" db:"undone"`
	UndoneBy   *string    `json:"undone_by,omitempty" db:"undone_by"`
	UndoneAt   *time.Time `json:"undone_at,omitempty" db:"undone_at"`
	UndoReason *string    `json:"undo_reason,omitempty" db:"undo_reason"`
}

// CanUndo reports whether this record is an un-undone merge.
func (h *MergeHistory) CanUndo() bool {
	return h.EventType == MergeEventEntitiesMerged && !h.Undone
}
