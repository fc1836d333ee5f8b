package scoring

import "strings"

// WeightConfig weights the signals that feed the combined score. Binary
// signals (soundex, type match) only contribute when they fire.
type WeightConfig struct {
	JaroWinkler     float64 `json:"jaro_winkler"`
	NormalizedExact float64 `json:"normalized_exact"`
	Trigram         float64 `json:"trigram"`
	Soundex         float64 `json:"soundex"`
	TypeMatch       float64 `json:"type_match"`
}

// DefaultWeights is the general-purpose preset.
func DefaultWeights() WeightConfig {
	return WeightConfig{
		JaroWinkler:     1.2,
		NormalizedExact: 0.6,
		Trigram:         0.7,
		Soundex:         0.9,
		TypeMatch:       0.6,
	}
}

// PersonWeights favors Jaro-Winkler and phonetics; person names vary in
// spelling more than in sound.
func PersonWeights() WeightConfig {
	return WeightConfig{
		JaroWinkler:     1.5,
		NormalizedExact: 0.5,
		Trigram:         0.5,
		Soundex:         1.2,
		TypeMatch:       0.5,
	}
}

// OrganizationWeights favors exact and trigram matches; org names are
// distinctive strings where phonetic collisions mislead.
func OrganizationWeights() WeightConfig {
	return WeightConfig{
		JaroWinkler:     1.0,
		NormalizedExact: 1.4,
		Trigram:         1.2,
		Soundex:         0.3,
		TypeMatch:       0.5,
	}
}

// TechnicalWeights favors exact matches for code-like names (classes,
// functions, identifiers) where near-misses are usually distinct symbols.
func TechnicalWeights() WeightConfig {
	return WeightConfig{
		JaroWinkler:     0.8,
		NormalizedExact: 1.6,
		Trigram:         1.0,
		Soundex:         0.2,
		TypeMatch:       0.6,
	}
}

// WeightsForEntityType picks the preset for an entity type key. The lookup is
// case-insensitive so "PERSON" and "person" resolve to the same preset.
func WeightsForEntityType(entityType string) WeightConfig {
	switch strings.ToLower(entityType) {
	case "person":
		return PersonWeights()
	case "organization", "company":
		return OrganizationWeights()
	case "class", "function", "module", "technology", "concept":
		return TechnicalWeights()
	default:
		return DefaultWeights()
	}
}
