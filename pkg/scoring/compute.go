package scoring

import (
	"math"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ScoredCandidate pairs a candidate entity with its computed scores.
type ScoredCandidate struct {
	Candidate *models.Entity
	Scores    models.SimilarityScores
}

// ComputeAll scores an entity against one candidate. blockingKeys records
// which blocking strategies surfaced the candidate and is carried through to
// the audit snapshot.
func (s *Scorer) ComputeAll(entity, candidate *models.Entity, blockingKeys []string) models.SimilarityScores {
	scores := models.SimilarityScores{
		BlockingKeys: blockingKeys,
	}

	scores.JaroWinkler = s.JaroWinkler(entity.Name, candidate.Name)
	scores.NormalizedExact = s.NormalizedExact(entity.Name, candidate.Name)

	if s.config.ComputeLevenshtein {
		v := s.LevenshteinRatio(entity.Name, candidate.Name)
		scores.LevenshteinRatio = &v
	}
	if s.config.ComputeDamerau {
		v := s.DamerauRatio(entity.Name, candidate.Name)
		scores.DamerauLevenshteinRatio = &v
	}
	if s.config.ComputeTrigram {
		v := s.TrigramJaccard(entity.Name, candidate.Name)
		scores.TrigramJaccard = &v
	}
	if s.config.ComputePhonetic {
		sx := s.SoundexMatch(entity.Name, candidate.Name)
		mp := s.MetaphoneMatch(entity.Name, candidate.Name)
		ny := s.NYSIISMatch(entity.Name, candidate.Name)
		scores.SoundexMatch = &sx
		scores.MetaphoneMatch = &mp
		scores.NYSIISMatch = &ny
	}
	if s.config.ComputeContextual {
		if entity.SourcePageID != nil && candidate.SourcePageID != nil {
			v := 0.0
			if *entity.SourcePageID == *candidate.SourcePageID {
				v = 1.0
			}
			scores.SameSourcePage = &v
		}
		if entity.EntityType != "" && candidate.EntityType != "" {
			v := 0.0
			if entity.EntityType == candidate.EntityType {
				v = 1.0
			}
			scores.ExactTypeMatch = &v
		}
		if len(entity.Properties) > 0 && len(candidate.Properties) > 0 {
			v := s.PropertyKeyJaccard(entity.Properties, candidate.Properties)
			scores.PropertyKeyJaccard = &v
		}
	}

	scores.CombinedScore = s.combinedScore(&scores, s.weightsFor(entity, candidate))
	scores.Confidence = s.confidence(&scores)
	scores.Uncertainty = s.uncertainty(&scores)

	return scores
}

// weightsFor resolves the weight preset for a pair. Pairs sharing an entity
// type use that type's preset; cross-type and untyped pairs fall back to the
// configured weights.
func (s *Scorer) weightsFor(entity, candidate *models.Entity) WeightConfig {
	if entity.EntityType != "" && entity.EntityType == candidate.EntityType {
		return WeightsForEntityType(entity.EntityType)
	}
	return s.config.Weights
}

// combinedScore is the weighted mean over the available core signals. Binary
// signals contribute only when they fired with a match.
func (s *Scorer) combinedScore(scores *models.SimilarityScores, w WeightConfig) float64 {

	weightedSum := scores.JaroWinkler*w.JaroWinkler + scores.NormalizedExact*w.NormalizedExact
	totalWeight := w.JaroWinkler + w.NormalizedExact

	if scores.TrigramJaccard != nil {
		weightedSum += *scores.TrigramJaccard * w.Trigram
		totalWeight += w.Trigram
	}
	if scores.SoundexMatch != nil && *scores.SoundexMatch >= 1.0 {
		weightedSum += w.Soundex
		totalWeight += w.Soundex
	}
	if scores.ExactTypeMatch != nil && *scores.ExactTypeMatch >= 1.0 {
		weightedSum += w.TypeMatch
		totalWeight += w.TypeMatch
	}

	if totalWeight == 0 {
		return 0.0
	}

	return clamp01(weightedSum / totalWeight)
}

// confidence is the geometric mean of the fired confidence factors. It is
// deliberately more conservative than the combined score: one weak factor
// drags the mean down harder than an arithmetic average would.
func (s *Scorer) confidence(scores *models.SimilarityScores) float64 {
	var factors []float64

	if scores.NormalizedExact >= 1.0 {
		factors = append(factors, 0.95)
	}
	if scores.JaroWinkler > 0 {
		if scores.JaroWinkler > 0.7 {
			factors = append(factors, scores.JaroWinkler)
		} else {
			factors = append(factors, scores.JaroWinkler/2)
		}
	}
	if scores.AnyPhoneticMatch() {
		factors = append(factors, 0.8)
	}
	if scores.ExactTypeMatch != nil && *scores.ExactTypeMatch >= 1.0 {
		factors = append(factors, 0.7)
	}
	// Co-location reads as a de-confidence signal: similar names on one page
	// are usually distinct entities mentioned together.
	if scores.SameSourcePage != nil && *scores.SameSourcePage >= 1.0 {
		factors = append(factors, 0.5)
	}

	if len(factors) == 0 {
		return scores.CombinedScore
	}

	logSum := 0.0
	for _, f := range factors {
		if f <= 0 {
			return 0.0
		}
		logSum += math.Log(f)
	}

	return clamp01(math.Exp(logSum / float64(len(factors))))
}

// uncertainty is the population standard deviation of the computed signals.
// High disagreement between signals reads as high uncertainty.
func (s *Scorer) uncertainty(scores *models.SimilarityScores) float64 {
	signals := []float64{scores.JaroWinkler, scores.NormalizedExact}
	for _, v := range []*float64{
		scores.LevenshteinRatio,
		scores.DamerauLevenshteinRatio,
		scores.TrigramJaccard,
		scores.SoundexMatch,
		scores.MetaphoneMatch,
		scores.NYSIISMatch,
		scores.SameSourcePage,
		scores.ExactTypeMatch,
		scores.PropertyKeyJaccard,
	} {
		if v != nil {
			signals = append(signals, *v)
		}
	}

	mean := 0.0
	for _, v := range signals {
		mean += v
	}
	mean /= float64(len(signals))

	variance := 0.0
	for _, v := range signals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(signals))

	return clamp01(math.Sqrt(variance))
}

// ComputeBatch scores the entity against every candidate and returns results
// sorted by combined score descending.
func (s *Scorer) ComputeBatch(entity *models.Entity, candidates []*models.Entity) []ScoredCandidate {
	results := make([]ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, ScoredCandidate{
			Candidate: candidate,
			Scores:    s.ComputeAll(entity, candidate, nil),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scores.CombinedScore > results[j].Scores.CombinedScore
	})

	return results
}

// FilterCandidates scores all candidates and drops results whose combined
// score is below threshold, sorted descending.
func (s *Scorer) FilterCandidates(entity *models.Entity, candidates []*models.Entity, threshold float64) []ScoredCandidate {
	scored := s.ComputeBatch(entity, candidates)

	filtered := scored[:0]
	for _, sc := range scored {
		if sc.Scores.CombinedScore >= threshold {
			filtered = append(filtered, sc)
		}
	}

	return filtered
}
