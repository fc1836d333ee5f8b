package models

import (
	"time"
)

// Entity is an extracted knowledge-graph node. Canonical entities are the
// authoritative records; non-canonical entities point at the canonical record
// that absorbed them via IsAliasOf.
type Entity struct {
	ID              string         `json:"id" db:"id"`
	TenantID        string         `json:"tenant_id" db:"tenant_id"`
	EntityType      string         `json:"entity_type" db:"entity_type"`
	Name            string         `json:"name" db:"name"`
	NormalizedName  string         `json:"normalized_name" db:"normalized_name"`
	Description     string         `json:"description,omitempty" db:"description"`
	Properties      map[string]any `json:"properties" db:"properties"`
	ExternalIDs     map[string]any `json:"external_ids" db:"external_ids"`
	ConfidenceScore float64        `json:"confidence_score" db:"confidence_score"`
	SourcePageID    *string        `json:"source_page_id,omitempty" db:"source_page_id"`
	SourceText      string         `json:"source_text,omitempty" db:"source_text"`
	IsCanonical     bool           `json:"is_canonical" db:"is_canonical"`
	IsAliasOf       *string        `json:"is_alias_of,omitempty" db:"is_alias_of"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// SharesSourcePage reports whether both entities carry the same non-empty
// source page reference.
func (e *Entity) SharesSourcePage(other *Entity) bool {
	if e.SourcePageID == nil || other.SourcePageID == nil {
		return false
	}
	return *e.SourcePageID == *other.SourcePageID
}

// EntityRelationship is a directed edge between two entities within a tenant.
// Self-loops are never created; transfer and redistribution drop them.
type EntityRelationship struct {
	ID               string         `json:"id" db:"id"`
	TenantID         string         `json:"tenant_id" db:"tenant_id"`
	SourceEntityID   string         `json:"source_entity_id" db:"source_entity_id"`
	TargetEntityID   string         `json:"target_entity_id" db:"target_entity_id"`
	RelationshipType string         `json:"relationship_type" db:"relationship_type"`
	Properties       map[string]any `json:"properties,omitempty" db:"properties"`
	ConfidenceScore  float64        `json:"confidence_score" db:"confidence_score"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}
