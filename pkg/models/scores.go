package models

// Map keys for the flattened similarity-score snapshot stored on history and
// review records.
const (
	ScoreKeyJaroWinkler        = "jaro_winkler"
	ScoreKeyNormalizedExact    = "normalized_exact"
	ScoreKeyLevenshteinRatio   = "levenshtein_ratio"
	ScoreKeyDamerauRatio       = "damerau_levenshtein_ratio"
	ScoreKeyTrigramJaccard     = "trigram_jaccard"
	ScoreKeySoundexMatch       = "soundex_match"
	ScoreKeyMetaphoneMatch     = "metaphone_match"
	ScoreKeyNYSIISMatch        = "nysiis_match"
	ScoreKeySameSourcePage     = "same_source_page"
	ScoreKeyExactTypeMatch     = "exact_type_match"
	ScoreKeyPropertyKeyJaccard = "property_key_jaccard"
	ScoreKeyCombinedScore      = "combined_score"
	ScoreKeyConfidence         = "confidence"
	ScoreKeyUncertainty        = "uncertainty"
)

// SimilarityScores is the transient result of comparing an entity pair.
// Jaro-Winkler and normalized-exact are always computed; the remaining
// signals are optional and nil when the scorer did not compute them.
type SimilarityScores struct {
	JaroWinkler     float64 `json:"jaro_winkler"`
	NormalizedExact float64 `json:"normalized_exact"`

	LevenshteinRatio        *float64 `json:"levenshtein_ratio,omitempty"`
	DamerauLevenshteinRatio *float64 `json:"damerau_levenshtein_ratio,omitempty"`
	TrigramJaccard          *float64 `json:"trigram_jaccard,omitempty"`
	SoundexMatch            *float64 `json:"soundex_match,omitempty"`
	MetaphoneMatch          *float64 `json:"metaphone_match,omitempty"`
	NYSIISMatch             *float64 `json:"nysiis_match,omitempty"`
	SameSourcePage          *float64 `json:"same_source_page,omitempty"`
	ExactTypeMatch          *float64 `json:"exact_type_match,omitempty"`
	PropertyKeyJaccard      *float64 `json:"property_key_jaccard,omitempty"`

	CombinedScore float64 `json:"combined_score"`
	Confidence    float64 `json:"confidence"`
	Uncertainty   float64 `json:"uncertainty"`

	// BlockingKeys records which blocking strategies surfaced the candidate.
	BlockingKeys []string `json:"blocking_keys,omitempty"`
}

// ToMap flattens the scores into a numeric map for audit storage. Optional
// signals appear only when populated. BlockingKeys is not carried: the flat
// form is numeric only, so a ScoresFromMap round-trip drops it.
func (s *SimilarityScores) ToMap() map[string]float64 {
	m := map[string]float64{
		ScoreKeyJaroWinkler:     s.JaroWinkler,
		ScoreKeyNormalizedExact: s.NormalizedExact,
		ScoreKeyCombinedScore:   s.CombinedScore,
		ScoreKeyConfidence:      s.Confidence,
		ScoreKeyUncertainty:     s.Uncertainty,
	}

	setIf := func(key string, v *float64) {
		if v != nil {
			m[key] = *v
		}
	}
	setIf(ScoreKeyLevenshteinRatio, s.LevenshteinRatio)
	setIf(ScoreKeyDamerauRatio, s.DamerauLevenshteinRatio)
	setIf(ScoreKeyTrigramJaccard, s.TrigramJaccard)
	setIf(ScoreKeySoundexMatch, s.SoundexMatch)
	setIf(ScoreKeyMetaphoneMatch, s.MetaphoneMatch)
	setIf(ScoreKeyNYSIISMatch, s.NYSIISMatch)
	setIf(ScoreKeySameSourcePage, s.SameSourcePage)
	setIf(ScoreKeyExactTypeMatch, s.ExactTypeMatch)
	setIf(ScoreKeyPropertyKeyJaccard, s.PropertyKeyJaccard)

	return m
}

// ScoresFromMap rebuilds a SimilarityScores from its flattened form.
func ScoresFromMap(m map[string]float64) SimilarityScores {
	s := SimilarityScores{
		JaroWinkler:     m[ScoreKeyJaroWinkler],
		NormalizedExact: m[ScoreKeyNormalizedExact],
		CombinedScore:   m[ScoreKeyCombinedScore],
		Confidence:      m[ScoreKeyConfidence],
		Uncertainty:     m[ScoreKeyUncertainty],
	}

	getIf := func(key string) *float64 {
		if v, ok := m[key]; ok {
			return &v
		}
		return nil
	}
	s.LevenshteinRatio = getIf(ScoreKeyLevenshteinRatio)
	s.DamerauLevenshteinRatio = getIf(ScoreKeyDamerauRatio)
	s.TrigramJaccard = getIf(ScoreKeyTrigramJaccard)
	s.SoundexMatch = getIf(ScoreKeySoundexMatch)
	s.MetaphoneMatch = getIf(ScoreKeyMetaphoneMatch)
	s.NYSIISMatch = getIf(ScoreKeyNYSIISMatch)
	s.SameSourcePage = getIf(ScoreKeySameSourcePage)
	s.ExactTypeMatch = getIf(ScoreKeyExactTypeMatch)
	s.PropertyKeyJaccard = getIf(ScoreKeyPropertyKeyJaccard)

	return s
}

// AnyPhoneticMatch reports whether a phonetic signal fired with a match.
func (s *SimilarityScores) AnyPhoneticMatch() bool {
	for _, v := range []*float64{s.SoundexMatch, s.MetaphoneMatch, s.NYSIISMatch} {
		if v != nil && *v >= 1.0 {
			return true
		}
	}
	return false
}
