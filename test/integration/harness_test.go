package integration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/consolidation"
	"github.com/Ramsey-B/fern/pkg/decision"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/phonetic"
	"github.com/Ramsey-B/fern/pkg/scoring"
)

// memStore is an in-memory backend for the whole pipeline: entity, alias,
// relationship, and history storage plus candidate lookup for blocking.
type memStore struct {
	mu            sync.Mutex
	entities      map[string]*models.Entity
	relationships map[string]*models.EntityRelationship
	aliases       map[string]*models.EntityAlias
	history       map[string]*models.MergeHistory
}

func newMemStore() *memStore {
	return &memStore{
		entities:      map[string]*models.Entity{},
		relationships: map[string]*models.EntityRelationship{},
		aliases:       map[string]*models.EntityAlias{},
		history:       map[string]*models.MergeHistory{},
	}
}

func copyEntity(e *models.Entity) *models.Entity {
	c := *e
	return &c
}

// EntityStore

func (s *memStore) GetByID(_ context.Context, tenantID, id string) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok || e.TenantID != tenantID {
		return nil, nil
	}
	return copyEntity(e), nil
}

func (s *memStore) Create(_ context.Context, e *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(e)
	return nil
}

func (s *memStore) Update(_ context.Context, e *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(e)
	return nil
}

// EntityLoader

func (s *memStore) ListCanonical(_ context.Context, tenantID string, scope models.ConsolidationScope) ([]*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Entity
	for _, e := range s.entities {
		if e.TenantID != tenantID || !e.IsCanonical {
			continue
		}
		if len(scope.EntityIDs) > 0 && !contains(scope.EntityIDs, e.ID) {
			continue
		}
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// blocking.CandidateStore

func (s *memStore) findCandidates(tenantID, excludeID string, limit int, match func(*models.Entity) bool) []*models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Entity
	for _, e := range s.entities {
		if e.TenantID != tenantID || !e.IsCanonical || e.ID == excludeID {
			continue
		}
		if match(e) {
			out = append(out, copyEntity(e))
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (s *memStore) FindByNamePrefix(_ context.Context, tenantID, prefix, excludeID string, limit int) ([]*models.Entity, error) {
	return s.findCandidates(tenantID, excludeID, limit, func(e *models.Entity) bool {
		return strings.HasPrefix(e.NormalizedName, prefix)
	}), nil
}

func (s *memStore) FindByEntityType(_ context.Context, tenantID, entityType, excludeID string, limit int) ([]*models.Entity, error) {
	return s.findCandidates(tenantID, excludeID, limit, func(e *models.Entity) bool {
		return e.EntityType == entityType
	}), nil
}

func (s *memStore) FindBySoundex(_ context.Context, tenantID, code, excludeID string, limit int) ([]*models.Entity, error) {
	return s.findCandidates(tenantID, excludeID, limit, func(e *models.Entity) bool {
		return phonetic.Soundex(e.NormalizedName) == code
	}), nil
}

func (s *memStore) CountCanonical(_ context.Context, tenantID string) (int, error) {
	return len(s.findCandidates(tenantID, "", len(s.entities)+1, func(*models.Entity) bool { return true })), nil
}

func (s *memStore) CountByEntityType(_ context.Context, tenantID string) (map[string]int, error) {
	out := map[string]int{}
	for _, e := range s.findCandidates(tenantID, "", len(s.entities)+1, func(*models.Entity) bool { return true }) {
		out[e.EntityType]++
	}
	return out, nil
}

func (s *memStore) CountDistinctSoundex(_ context.Context, tenantID string) (int, error) {
	codes := map[string]bool{}
	for _, e := range s.findCandidates(tenantID, "", len(s.entities)+1, func(*models.Entity) bool { return true }) {
		codes[phonetic.Soundex(e.NormalizedName)] = true
	}
	return len(codes), nil
}

// relationshipStore adapts memStore to merge.RelationshipStore.
type relationshipStore struct{ store *memStore }

func (r *relationshipStore) ListByEntity(_ context.Context, tenantID, entityID string) ([]models.EntityRelationship, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.EntityRelationship
	for _, rel := range r.store.relationships {
		if rel.TenantID != tenantID {
			continue
		}
		if rel.SourceEntityID == entityID || rel.TargetEntityID == entityID {
			out = append(out, *rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *relationshipStore) Create(_ context.Context, rel *models.EntityRelationship) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *rel
	r.store.relationships[rel.ID] = &c
	return nil
}

func (r *relationshipStore) Update(_ context.Context, rel *models.EntityRelationship) error {
	return r.Create(context.Background(), rel)
}

func (r *relationshipStore) Delete(_ context.Context, tenantID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if rel, ok := r.store.relationships[id]; ok && rel.TenantID == tenantID {
		delete(r.store.relationships, id)
	}
	return nil
}

// aliasStore adapts memStore to merge.AliasStore.
type aliasStore struct{ store *memStore }

func (a *aliasStore) Create(_ context.Context, alias *models.EntityAlias) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	c := *alias
	a.store.aliases[alias.ID] = &c
	return nil
}

func (a *aliasStore) list(tenantID string, match func(*models.EntityAlias) bool) []models.EntityAlias {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	var out []models.EntityAlias
	for _, al := range a.store.aliases {
		if al.TenantID == tenantID && match(al) {
			out = append(out, *al)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *aliasStore) ListByMergeEvent(_ context.Context, tenantID, mergeEventID string) ([]models.EntityAlias, error) {
	return a.list(tenantID, func(al *models.EntityAlias) bool { return al.MergeEventID == mergeEventID }), nil
}

func (a *aliasStore) ListByCanonical(_ context.Context, tenantID, canonicalEntityID string) ([]models.EntityAlias, error) {
	return a.list(tenantID, func(al *models.EntityAlias) bool { return al.CanonicalEntityID == canonicalEntityID }), nil
}

func (a *aliasStore) Update(_ context.Context, alias *models.EntityAlias) error {
	return a.Create(context.Background(), alias)
}

func (a *aliasStore) Delete(_ context.Context, tenantID, id string) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if al, ok := a.store.aliases[id]; ok && al.TenantID == tenantID {
		delete(a.store.aliases, id)
	}
	return nil
}

// historyStore adapts memStore to merge.HistoryStore.
type historyStore struct{ store *memStore }

func (h *historyStore) Create(_ context.Context, record *models.MergeHistory) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	c := *record
	h.store.history[record.ID] = &c
	return nil
}

func (h *historyStore) GetByID(_ context.Context, tenantID, id string) (*models.MergeHistory, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	record, ok := h.store.history[id]
	if !ok || record.TenantID != tenantID {
		return nil, nil
	}
	c := *record
	return &c, nil
}

func (h *historyStore) MarkUndone(_ context.Context, tenantID, id string, undoneBy, reason string, at time.Time) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	record, ok := h.store.history[id]
	if !ok || record.TenantID != tenantID {
		return nil
	}
	record.Undone = true
	record.UndoneBy = &undoneBy
	record.UndoReason = &reason
	record.UndoneAt = &at
	return nil
}

// reviewQueue adapts an in-memory list to consolidation.ReviewQueue.
type reviewQueue struct {
	mu    sync.Mutex
	items []*models.MergeReviewItem
}

func (q *reviewQueue) pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func (q *reviewQueue) PendingPairExists(_ context.Context, _, entityID, candidateEntityID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Status == models.ReviewStatusPending &&
			q.pairKey(item.EntityID, item.CandidateEntityID) == q.pairKey(entityID, candidateEntityID) {
			return true, nil
		}
	}
	return false, nil
}

func (q *reviewQueue) Enqueue(_ context.Context, item *models.MergeReviewItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

// eventSink collects every published event.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) Publish(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *eventSink) countByType() map[events.EventType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[events.EventType]int{}
	for _, e := range s.events {
		out[e.Base().EventType]++
	}
	return out
}

// pipeline wires the real consolidation stack over the in-memory backend.
type pipeline struct {
	store        *memStore
	aliases      *aliasStore
	history      *historyStore
	reviews      *reviewQueue
	sink         *eventSink
	merger       *merge.Service
	orchestrator *consolidation.Orchestrator
}

func newPipeline() *pipeline {
	logger := zap.NewNop()
	store := newMemStore()
	rels := &relationshipStore{store: store}
	aliases := &aliasStore{store: store}
	history := &historyStore{store: store}
	reviews := &reviewQueue{}
	sink := &eventSink{}

	merger := merge.NewService(store, rels, aliases, history, nil, sink, logger)
	engine := blocking.NewEngine(store, blocking.DefaultConfig(), logger)
	scorer := scoring.NewScorer(scoring.DefaultConfig())
	router, err := decision.NewRouter(decision.DefaultThresholds())
	if err != nil {
		panic(err)
	}

	return &pipeline{
		store:        store,
		aliases:      aliases,
		history:      history,
		reviews:      reviews,
		sink:         sink,
		merger:       merger,
		orchestrator: consolidation.NewOrchestrator(store, engine, scorer, router, merger, reviews, sink, logger),
	}
}

func (p *pipeline) addEntity(id, tenantID, name string, props map[string]any) *models.Entity {
	e := &models.Entity{
		ID:             id,
		TenantID:       tenantID,
		EntityType:     "PERSON",
		Name:           name,
		NormalizedName: normalize.Normalize(name),
		Properties:     props,
		IsCanonical:    true,
	}
	_ = p.store.Create(context.Background(), e)
	return e
}

func (p *pipeline) addRelationship(id, tenantID, source, target, relType string) {
	_ = (&relationshipStore{store: p.store}).Create(context.Background(), &models.EntityRelationship{
		ID:               id,
		TenantID:         tenantID,
		SourceEntityID:   source,
		TargetEntityID:   target,
		RelationshipType: relType,
	})
}
