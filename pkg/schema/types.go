// Package schema validates entity property bags against per-tenant entity
// type schemas. The registry caches compiled validators per schema version and
// reloads on demand.
package schema

import "encoding/json"

// EntityType is a tenant-scoped schema definition for one entity type key.
type EntityType struct {
	Key     string          `json:"key" db:"key"`
	Version int             `json:"version" db:"version"`
	Schema  json.RawMessage `json:"schema" db:"schema"`
}

// EntityTypeSchema is the parsed form of an entity type's schema document.
type EntityTypeSchema struct {
	Required              []string                      `json:"required,omitempty"`
	Properties            map[string]PropertyDefinition `json:"properties,omitempty"`
	FingerprintExclusions []string                      `json:"fingerprint_exclusions,omitempty"`
}

// PropertyDefinition describes one property's expected shape.
type PropertyDefinition struct {
	Type       string                        `json:"type"`
	Format     string                        `json:"format,omitempty"`
	Properties map[string]PropertyDefinition `json:"properties,omitempty"`
	Items      *PropertyDefinition           `json:"items,omitempty"`
}

// GetFingerprintExclusions returns the exclusion paths as a lookup set.
func (s *EntityTypeSchema) GetFingerprintExclusions() map[string]bool {
	if len(s.FingerprintExclusions) == 0 {
		return nil
	}
	out := make(map[string]bool, len(s.FingerprintExclusions))
	for _, path := range s.FingerprintExclusions {
		out[path] = true
	}
	return out
}
