package models

import (
	"time"
)

// EntityAlias is the durable record of a merge. It snapshots the merged-away
// entity's full pre-merge state so an undo can rebuild it (under a new id).
type EntityAlias struct {
	ID                string         `json:"id" db:"id"`
	TenantID          string         `json:"tenant_id" db:"tenant_id"`
	OriginalEntityID  string         `json:"original_entity_id" db:"original_entity_id"`
	CanonicalEntityID string         `json:"canonical_entity_id" db:"canonical_entity_id"`
	Name              string         `json:"name" db:"name"`
	NormalizedName    string         `json:"normalized_name" db:"normalized_name"`
	EntityType        string         `json:"entity_type" db:"entity_type"`
	Description       string         `json:"description,omitempty" db:"description"`
	Properties        map[string]any `json:"properties" db:"properties"`
	ExternalIDs       map[string]any `json:"external_ids" db:"external_ids"`
	ConfidenceScore   float64        `json:"confidence_score" db:"confidence_score"`
	SourcePageID      *string        `json:"source_page_id,omitempty" db:"source_page_id"`
	SourceText        string         `json:"source_text,omitempty" db:"source_text"`
	Fingerprint       string         `json:"fingerprint" db:"fingerprint"`
	MergeEventID      string         `json:"merge_event_id" db:"merge_event_id"`
	MergeReason       string         `json:"merge_reason" db:"merge_reason"`
	MergedAt          time.Time      `json:"merged_at" db:"merged_at"`
}

// SnapshotFromEntity captures the pre-merge state of an entity.
func SnapshotFromEntity(e *Entity) EntityAlias {
	return EntityAlias{
		TenantID:         e.TenantID,
		OriginalEntityID: e.ID,
		Name:             e.Name,
		NormalizedName:   e.NormalizedName,
		EntityType:       e.EntityType,
		Description:      e.Description,
		Properties:       e.Properties,
		ExternalIDs:      e.ExternalIDs,
		ConfidenceScore:  e.ConfidenceScore,
		SourcePageID:     e.SourcePageID,
		SourceText:       e.SourceText,
	}
}

// RestoreEntity builds a fresh canonical entity from the snapshot. The caller
// assigns the new id; the old id is never resurrected.
func (a *EntityAlias) RestoreEntity(newID string, now time.Time) Entity {
	return Entity{
		ID:              newID,
		TenantID:        a.TenantID,
		EntityType:      a.EntityType,
		Name:            a.Name,
		NormalizedName:  a.NormalizedName,
		Description:     a.Description,
		Properties:      a.Properties,
		ExternalIDs:     a.ExternalIDs,
		ConfidenceScore: a.ConfidenceScore,
		SourcePageID:    a.SourcePageID,
		SourceText:      a.SourceText,
		IsCanonical:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
