// Package scoring computes multi-signal similarity between entity pairs:
// string distances, phonetic equality, and contextual signals, combined into
// a weighted score plus a conservative confidence estimate.
package scoring

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/phonetic"
)

// Config selects which optional signals the scorer computes. Jaro-Winkler and
// normalized-exact are always computed.
type Config struct {
	ComputeLevenshtein bool
	ComputeDamerau     bool
	ComputeTrigram     bool
	ComputePhonetic    bool
	ComputeContextual  bool
	Weights            WeightConfig
}

// DefaultConfig enables every signal with the default weight preset.
func DefaultConfig() Config {
	return Config{
		ComputeLevenshtein: true,
		ComputeDamerau:     true,
		ComputeTrigram:     true,
		ComputePhonetic:    true,
		ComputeContextual:  true,
		Weights:            DefaultWeights(),
	}
}

// Scorer compares entity pairs. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	config Config
}

func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings,
// case-insensitive. Empty input on either side scores 0.
func (s *Scorer) JaroWinkler(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	// Winkler scaling factor is typically 0.1
	scalingFactor := 0.1
	return clamp01(jaro + float64(prefixLen)*scalingFactor*(1.0-jaro))
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	// Find matches
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// NormalizedExact returns 1.0 when both normalized names are identical and
// non-empty.
func (s *Scorer) NormalizedExact(a, b string) float64 {
	na := normalize.Normalize(a)
	nb := normalize.Normalize(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return 0.0
}

// LevenshteinRatio returns 1 - distance/maxLen. Two empty strings are
// identical (1.0); empty vs non-empty is 0.0.
func (s *Scorer) LevenshteinRatio(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return clamp01(1.0 - float64(distance)/float64(maxLen))
}

// DamerauRatio is the transposition-aware variant of LevenshteinRatio.
func (s *Scorer) DamerauRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}
	distance := damerauDistance(ra, rb)
	return clamp01(1.0 - float64(distance)/float64(maxLen))
}

// damerauDistance computes the optimal-string-alignment distance with three
// rolling rows.
func damerauDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	row := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prev[j]+1), prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				row[j] = min(row[j], prev2[j-2]+1)
			}
		}
		prev2, prev, row = prev, row, prev2
	}

	return prev[len(b)]
}

// TrigramJaccard computes Jaccard similarity over padded 3-grams of the
// normalized strings. Empty input on either side scores 0.
func (s *Scorer) TrigramJaccard(a, b string) float64 {
	na := normalize.Normalize(a)
	nb := normalize.Normalize(b)
	if na == "" || nb == "" {
		return 0.0
	}

	gramsA := trigrams(na)
	gramsB := trigrams(nb)

	intersection := 0
	for g := range gramsA {
		if gramsB[g] {
			intersection++
		}
	}
	union := len(gramsA) + len(gramsB) - intersection
	if union == 0 {
		return 0.0
	}

	return clamp01(float64(intersection) / float64(union))
}

func trigrams(s string) map[string]bool {
	padded := []rune("  " + s + "  ")
	grams := make(map[string]bool, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		grams[string(padded[i:i+3])] = true
	}
	return grams
}

// SoundexMatch returns 1.0 if both Soundex codes are non-empty and equal.
func (s *Scorer) SoundexMatch(a, b string) float64 {
	ca := phonetic.Soundex(a)
	cb := phonetic.Soundex(b)
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return 1.0
	}
	return 0.0
}

// MetaphoneMatch returns 1.0 if both Metaphone codes are non-empty and equal.
func (s *Scorer) MetaphoneMatch(a, b string) float64 {
	ca := phonetic.Metaphone(a)
	cb := phonetic.Metaphone(b)
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return 1.0
	}
	return 0.0
}

// NYSIISMatch returns 1.0 if both NYSIIS codes are non-empty and equal.
func (s *Scorer) NYSIISMatch(a, b string) float64 {
	ca := phonetic.NYSIIS(a)
	cb := phonetic.NYSIIS(b)
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return 1.0
	}
	return 0.0
}

// PropertyKeyJaccard measures overlap between two property bags' key sets.
func (s *Scorer) PropertyKeyJaccard(a, b map[string]any) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection

	return clamp01(float64(intersection) / float64(union))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
