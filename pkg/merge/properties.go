package merge

import (
	"encoding/json"
	"sort"
)

// FieldStrategy controls how a canonical field absorbs the merged entity's
// value during reconciliation.
type FieldStrategy string

const (
	// StrategyDeepMerge recursively merges nested maps. Canonical wins on
	// scalar conflicts; lists are concatenated and deduplicated preserving
	// first-seen order.
	StrategyDeepMerge FieldStrategy = "deep_merge"
	// StrategyCanonicalWins keeps the canonical value untouched.
	StrategyCanonicalWins FieldStrategy = "canonical_wins"
	// StrategyAdoptIfEmpty takes the merged value only when the canonical
	// value is empty.
	StrategyAdoptIfEmpty FieldStrategy = "adopt_if_empty"
	// StrategyMax keeps the larger numeric value.
	StrategyMax FieldStrategy = "max"
)

// fieldStrategies is the per-field reconciliation table. Fields not listed
// default to StrategyCanonicalWins.
var fieldStrategies = map[string]FieldStrategy{
	"properties":       StrategyDeepMerge,
	"external_ids":     StrategyDeepMerge,
	"description":      StrategyAdoptIfEmpty,
	"confidence_score": StrategyMax,
}

// StrategyForField returns the reconciliation strategy for a named field.
func StrategyForField(field string) FieldStrategy {
	if s, ok := fieldStrategies[field]; ok {
		return s
	}
	return StrategyCanonicalWins
}

// PropertyMergeDetail records what reconciliation changed for one merged
// entity. It ends up in the merge history for auditing.
type PropertyMergeDetail struct {
	MergedEntityID      string   `json:"merged_entity_id"`
	PropertyKeysAdded   []string `json:"property_keys_added,omitempty"`
	ExternalIDKeysAdded []string `json:"external_id_keys_added,omitempty"`
	AdoptedDescription  bool     `json:"adopted_description,omitempty"`
	ConfidenceBefore    float64  `json:"confidence_before"`
	ConfidenceAfter     float64  `json:"confidence_after"`
}

// deepMergeMaps merges merged into canonical without mutating either input.
// Canonical values win on scalar conflicts; nested maps recurse; lists are
// concatenated and deduplicated preserving first-seen order.
func deepMergeMaps(canonical, merged map[string]any) map[string]any {
	result := make(map[string]any, len(canonical)+len(merged))
	for k, v := range canonical {
		result[k] = v
	}
	for k, mergedVal := range merged {
		canonicalVal, exists := result[k]
		if !exists {
			result[k] = mergedVal
			continue
		}
		result[k] = deepMergeValue(canonicalVal, mergedVal)
	}
	return result
}

func deepMergeValue(canonical, merged any) any {
	switch cv := canonical.(type) {
	case map[string]any:
		if mv, ok := merged.(map[string]any); ok {
			return deepMergeMaps(cv, mv)
		}
		return canonical
	case []any:
		if mv, ok := merged.([]any); ok {
			return mergeLists(cv, mv)
		}
		return canonical
	default:
		// Scalar conflict: canonical wins.
		return canonical
	}
}

func mergeLists(canonical, merged []any) []any {
	result := make([]any, 0, len(canonical)+len(merged))
	seen := make(map[string]bool, len(canonical)+len(merged))
	for _, item := range append(append([]any{}, canonical...), merged...) {
		key := dedupKey(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, item)
	}
	return result
}

// dedupKey renders a list item deterministically. encoding/json sorts map keys
// so structurally equal items collapse to the same key.
func dedupKey(item any) string {
	b, err := json.Marshal(item)
	if err != nil {
		return ""
	}
	return string(b)
}

// deepCopyMap clones a property bag including nested maps and lists, so the
// copy can be mutated without aliasing the source.
func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// addedKeys returns the keys present in after but not in before, sorted.
func addedKeys(before, after map[string]any) []string {
	var added []string
	for k := range after {
		if _, ok := before[k]; !ok {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	return added
}
