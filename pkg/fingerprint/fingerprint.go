// Package fingerprint produces deterministic content hashes for entities.
// Two entities with the same semantic content hash identically regardless of
// map ordering. Alias snapshots carry the fingerprint of the entity they
// absorbed, and Match compares two bags for change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// volatileFields are excluded from entity fingerprints. They change on every
// write without changing what the entity is.
var volatileFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"properties._split_into": true,
}

// Entity hashes the identifying content of an entity.
func Entity(e *models.Entity) string {
	data := map[string]any{
		"tenant_id":        e.TenantID,
		"entity_type":      e.EntityType,
		"normalized_name":  e.NormalizedName,
		"description":      e.Description,
		"properties":       e.Properties,
		"external_ids":     e.ExternalIDs,
		"confidence_score": e.ConfidenceScore,
	}
	if e.SourcePageID != nil {
		data["source_page_id"] = *e.SourcePageID
	}
	return GenerateWithExclusions(data, volatileFields)
}

// Generate hashes arbitrary structured data.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions hashes structured data, skipping the given
// dot-notation paths (e.g. "updated_at", "properties._split_into").
func GenerateWithExclusions(data map[string]any, excludeFields map[string]bool) string {
	canonical := canonicalize(data, excludeFields, "")
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// Match reports whether two fingerprints describe identical content.
func Match(a, b string) bool {
	return a != "" && a == b
}

// canonicalize renders data as deterministic JSON-ish text with sorted keys.
func canonicalize(data any, excludeFields map[string]bool, currentPath string) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v, excludeFields, currentPath)
	case []any:
		return canonicalizeArray(v, excludeFields, currentPath)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any, excludeFields map[string]bool, currentPath string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, k := range keys {
		fieldPath := k
		if currentPath != "" {
			fieldPath = currentPath + "." + k
		}
		if excluded(fieldPath, excludeFields) {
			continue
		}

		if !first {
			sb.WriteString(",")
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		sb.Write(keyJSON)
		sb.WriteString(":")
		sb.WriteString(canonicalize(m[k], excludeFields, fieldPath))
	}
	sb.WriteString("}")
	return sb.String()
}

func canonicalizeArray(arr []any, excludeFields map[string]bool, currentPath string) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range arr {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(canonicalize(v, excludeFields, currentPath))
	}
	sb.WriteString("]")
	return sb.String()
}

func excluded(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}
	if excludeFields[fieldPath] {
		return true
	}
	for path := range excludeFields {
		if strings.HasPrefix(fieldPath, path+".") {
			return true
		}
	}
	return false
}
