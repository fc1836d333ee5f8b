package merge

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
)

type memSchemaValidator struct {
	result        schema.ValidationResult
	err           error
	gotEntityType string
	gotProperties map[string]any
}

func (v *memSchemaValidator) ValidateProperties(_ context.Context, _, entityType string, properties map[string]any) (schema.ValidationResult, error) {
	v.gotEntityType = entityType
	v.gotProperties = properties
	return v.result, v.err
}

type memEntityStore struct {
	entities map[string]*models.Entity
}

func newMemEntityStore(entities ...*models.Entity) *memEntityStore {
	store := &memEntityStore{entities: make(map[string]*models.Entity)}
	for _, e := range entities {
		store.entities[e.ID] = e
	}
	return store
}

func (s *memEntityStore) GetByID(_ context.Context, tenantID, id string) (*models.Entity, error) {
	e, ok := s.entities[id]
	if !ok || e.TenantID != tenantID {
		return nil, nil
	}
	return e, nil
}

func (s *memEntityStore) Create(_ context.Context, entity *models.Entity) error {
	s.entities[entity.ID] = entity
	return nil
}

func (s *memEntityStore) Update(_ context.Context, entity *models.Entity) error {
	s.entities[entity.ID] = entity
	return nil
}

type memRelationshipStore struct {
	rels map[string]*models.EntityRelationship
}

func newMemRelationshipStore(rels ...*models.EntityRelationship) *memRelationshipStore {
	store := &memRelationshipStore{rels: make(map[string]*models.EntityRelationship)}
	for _, r := range rels {
		store.rels[r.ID] = r
	}
	return store
}

func (s *memRelationshipStore) ListByEntity(_ context.Context, tenantID, entityID string) ([]models.EntityRelationship, error) {
	var out []models.EntityRelationship
	for _, r := range s.rels {
		if r.TenantID != tenantID {
			continue
		}
		if r.SourceEntityID == entityID || r.TargetEntityID == entityID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRelationshipStore) Create(_ context.Context, rel *models.EntityRelationship) error {
	copied := *rel
	s.rels[rel.ID] = &copied
	return nil
}

func (s *memRelationshipStore) Update(_ context.Context, rel *models.EntityRelationship) error {
	copied := *rel
	s.rels[rel.ID] = &copied
	return nil
}

func (s *memRelationshipStore) Delete(_ context.Context, _, id string) error {
	delete(s.rels, id)
	return nil
}

type memAliasStore struct {
	aliases map[string]*models.EntityAlias
}

func newMemAliasStore() *memAliasStore {
	return &memAliasStore{aliases: make(map[string]*models.EntityAlias)}
}

func (s *memAliasStore) Create(_ context.Context, alias *models.EntityAlias) error {
	copied := *alias
	s.aliases[alias.ID] = &copied
	return nil
}

func (s *memAliasStore) ListByMergeEvent(_ context.Context, tenantID, mergeEventID string) ([]models.EntityAlias, error) {
	var out []models.EntityAlias
	for _, a := range s.aliases {
		if a.TenantID == tenantID && a.MergeEventID == mergeEventID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalEntityID < out[j].OriginalEntityID })
	return out, nil
}

func (s *memAliasStore) ListByCanonical(_ context.Context, tenantID, canonicalEntityID string) ([]models.EntityAlias, error) {
	var out []models.EntityAlias
	for _, a := range s.aliases {
		if a.TenantID == tenantID && a.CanonicalEntityID == canonicalEntityID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalEntityID < out[j].OriginalEntityID })
	return out, nil
}

func (s *memAliasStore) Update(_ context.Context, alias *models.EntityAlias) error {
	copied := *alias
	s.aliases[alias.ID] = &copied
	return nil
}

func (s *memAliasStore) Delete(_ context.Context, _, id string) error {
	delete(s.aliases, id)
	return nil
}

type memHistoryStore struct {
	records map[string]*models.MergeHistory
}

func newMemHistoryStore() *memHistoryStore {
	return &memHistoryStore{records: make(map[string]*models.MergeHistory)}
}

func (s *memHistoryStore) Create(_ context.Context, record *models.MergeHistory) error {
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *memHistoryStore) GetByID(_ context.Context, tenantID, id string) (*models.MergeHistory, error) {
	r, ok := s.records[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (s *memHistoryStore) MarkUndone(_ context.Context, tenantID, id string, undoneBy, reason string, at time.Time) error {
	r, ok := s.records[id]
	if !ok || r.TenantID != tenantID {
		return nil
	}
	r.Undone = true
	r.UndoneBy = &undoneBy
	r.UndoReason = &reason
	r.UndoneAt = &at
	return nil
}

type memPublisher struct {
	published []events.Event
	err       error
}

func (p *memPublisher) Publish(_ context.Context, event events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *memPublisher) eventTypes() []events.EventType {
	out := make([]events.EventType, 0, len(p.published))
	for _, e := range p.published {
		out = append(out, e.Base().EventType)
	}
	return out
}
