// Package blocking narrows the full entity set to a small per-entity
// candidate set sharing at least one blocking key, so scoring never has to
// consider O(n²) pairs.
package blocking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/phonetic"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Strategy names a blocking key family.
type Strategy string

const (
	StrategyPrefix     Strategy = "PREFIX"
	StrategyEntityType Strategy = "ENTITY_TYPE"
	StrategySoundex    Strategy = "SOUNDEX"
)

// Config bounds candidate generation.
type Config struct {
	MaxBlockSize    int
	MinPrefixLength int
	Strategies      []Strategy
}

// DefaultConfig enables every strategy with the standard bounds.
func DefaultConfig() Config {
	return Config{
		MaxBlockSize:    500,
		MinPrefixLength: 4,
		Strategies:      []Strategy{StrategyPrefix, StrategyEntityType, StrategySoundex},
	}
}

// Candidate is a canonical entity reachable through one or more blocking keys.
type Candidate struct {
	Entity       *models.Entity
	BlockingKeys []string
}

// BlockingResult reports one entity's candidate set and how it was produced.
type BlockingResult struct {
	Candidates      []Candidate
	TotalCandidates int
	ExecutionTime   time.Duration
	BlockSizes      map[Strategy]int
	StrategiesUsed  []Strategy
}

// BlockStatistics is an observational snapshot of the blocking space.
type BlockStatistics struct {
	TotalCanonical       int            `json:"total_canonical"`
	CountByType          map[string]int `json:"count_by_type"`
	DistinctSoundexCodes int            `json:"distinct_soundex_codes"`
	Config               Config         `json:"config"`
}

// CandidateStore is the persistence surface the engine queries. Every lookup
// is tenant-scoped, canonical-only, and excludes the source entity id.
type CandidateStore interface {
	FindByNamePrefix(ctx context.Context, tenantID, prefix, excludeID string, limit int) ([]*models.Entity, error)
	FindByEntityType(ctx context.Context, tenantID, entityType, excludeID string, limit int) ([]*models.Entity, error)
	FindBySoundex(ctx context.Context, tenantID, code, excludeID string, limit int) ([]*models.Entity, error)
	CountCanonical(ctx context.Context, tenantID string) (int, error)
	CountByEntityType(ctx context.Context, tenantID string) (map[string]int, error)
	CountDistinctSoundex(ctx context.Context, tenantID string) (int, error)
}

// Engine generates blocking candidates for entities.
type Engine struct {
	store  CandidateStore
	config Config
	logger *zap.Logger
}

func NewEngine(store CandidateStore, config Config, logger *zap.Logger) *Engine {
	if config.MaxBlockSize <= 0 {
		config.MaxBlockSize = 500
	}
	if config.MinPrefixLength <= 0 {
		config.MinPrefixLength = 4
	}
	if len(config.Strategies) == 0 {
		config.Strategies = []Strategy{StrategyPrefix, StrategyEntityType, StrategySoundex}
	}
	return &Engine{
		store:  store,
		config: config,
		logger: logger,
	}
}

// FindCandidates returns the union of all enabled strategies' blocks for one
// entity. Short, empty, and non-alphabetic names never error; they just yield
// weaker or empty signal sets.
func (e *Engine) FindCandidates(ctx context.Context, entity *models.Entity, tenantID string) (*BlockingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "blocking.Engine.FindCandidates")
	defer span.End()

	start := time.Now()

	result := &BlockingResult{
		BlockSizes: make(map[Strategy]int),
	}

	seen := make(map[string]*Candidate)
	order := make([]string, 0)

	addBlock := func(strategy Strategy, entities []*models.Entity) {
		result.BlockSizes[strategy] = len(entities)
		result.StrategiesUsed = append(result.StrategiesUsed, strategy)
		for _, candidate := range entities {
			if existing, ok := seen[candidate.ID]; ok {
				existing.BlockingKeys = append(existing.BlockingKeys, string(strategy))
				continue
			}
			seen[candidate.ID] = &Candidate{
				Entity:       candidate,
				BlockingKeys: []string{string(strategy)},
			}
			order = append(order, candidate.ID)
		}
	}

	for _, strategy := range e.config.Strategies {
		switch strategy {
		case StrategyPrefix:
			prefix := e.prefixKey(entity)
			if prefix == "" {
				continue
			}
			block, err := e.store.FindByNamePrefix(ctx, tenantID, prefix, entity.ID, e.config.MaxBlockSize)
			if err != nil {
				return nil, err
			}
			addBlock(StrategyPrefix, block)

		case StrategyEntityType:
			if entity.EntityType == "" {
				continue
			}
			block, err := e.store.FindByEntityType(ctx, tenantID, entity.EntityType, entity.ID, e.config.MaxBlockSize)
			if err != nil {
				return nil, err
			}
			addBlock(StrategyEntityType, block)

		case StrategySoundex:
			code := phonetic.Soundex(normalize.Normalize(entity.Name))
			if code == "" {
				continue
			}
			block, err := e.store.FindBySoundex(ctx, tenantID, code, entity.ID, e.config.MaxBlockSize)
			if err != nil {
				return nil, err
			}
			addBlock(StrategySoundex, block)
		}
	}

	result.TotalCandidates = len(order)

	limit := len(order)
	if limit > e.config.MaxBlockSize {
		limit = e.config.MaxBlockSize
	}
	result.Candidates = make([]Candidate, 0, limit)
	for _, id := range order[:limit] {
		result.Candidates = append(result.Candidates, *seen[id])
	}

	result.ExecutionTime = time.Since(start)

	return result, nil
}

// prefixKey derives the PREFIX blocking key. Names shorter than the
// configured prefix length use the whole normalized name; blocking just
// yields a smaller block in that case.
func (e *Engine) prefixKey(entity *models.Entity) string {
	name := entity.NormalizedName
	if name == "" {
		name = normalize.Normalize(entity.Name)
	}
	runes := []rune(name)
	if len(runes) > e.config.MinPrefixLength {
		runes = runes[:e.config.MinPrefixLength]
	}
	return string(runes)
}

// FindCandidatesBatch runs FindCandidates independently per entity. A failing
// entity is logged and skipped so one bad record cannot abort the batch.
func (e *Engine) FindCandidatesBatch(ctx context.Context, entities []*models.Entity, tenantID string) map[string]*BlockingResult {
	ctx, span := tracing.StartSpan(ctx, "blocking.Engine.FindCandidatesBatch")
	defer span.End()

	results := make(map[string]*BlockingResult, len(entities))
	for _, entity := range entities {
		result, err := e.FindCandidates(ctx, entity, tenantID)
		if err != nil {
			e.logger.Warn("blocking failed for entity",
				zap.String("entity_id", entity.ID),
				zap.String("tenant_id", tenantID),
				zap.Error(err))
			continue
		}
		results[entity.ID] = result
	}

	return results
}

// GetBlockStatistics reports the tenant's blocking space without side
// effects.
func (e *Engine) GetBlockStatistics(ctx context.Context, tenantID string) (*BlockStatistics, error) {
	ctx, span := tracing.StartSpan(ctx, "blocking.Engine.GetBlockStatistics")
	defer span.End()

	total, err := e.store.CountCanonical(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byType, err := e.store.CountByEntityType(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	distinctCodes, err := e.store.CountDistinctSoundex(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &BlockStatistics{
		TotalCanonical:       total,
		CountByType:          byType,
		DistinctSoundexCodes: distinctCodes,
		Config:               e.config,
	}, nil
}
