package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
)

func testEntity(id, tenantID, name string) *models.Entity {
	now := time.Now().UTC()
	return &models.Entity{
		ID:             id,
		TenantID:       tenantID,
		EntityType:     "PERSON",
		Name:           name,
		NormalizedName: name,
		Properties:     map[string]any{},
		ExternalIDs:    map[string]any{},
		IsCanonical:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

type fixture struct {
	entities      *memEntityStore
	relationships *memRelationshipStore
	aliases       *memAliasStore
	history       *memHistoryStore
	publisher     *memPublisher
	service       *Service
}

func newFixture(entities *memEntityStore, relationships *memRelationshipStore) *fixture {
	f := &fixture{
		entities:      entities,
		relationships: relationships,
		aliases:       newMemAliasStore(),
		history:       newMemHistoryStore(),
		publisher:     &memPublisher{},
	}
	f.service = NewService(f.entities, f.relationships, f.aliases, f.history, nil, f.publisher, zap.NewNop())
	return f
}

func (f *fixture) withSchemas(schemas PropertyValidator) *fixture {
	f.service = NewService(f.entities, f.relationships, f.aliases, f.history, schemas, f.publisher, zap.NewNop())
	return f
}

func TestMergeEntities(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	canonical.Properties = map[string]any{"a": 1, "tags": []any{"x"}}
	canonical.ConfidenceScore = 0.8

	duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")
	duplicate.Properties = map[string]any{"b": 2, "tags": []any{"x", "y"}}
	duplicate.Description = "A person named Jon"
	duplicate.ConfidenceScore = 0.9

	other := testEntity("ent-c", "tenant-1", "Acme Corp")
	manager := testEntity("ent-d", "tenant-1", "Jane Lee")

	rels := newMemRelationshipStore(
		// Duplicate of the canonical's existing ent-a -> ent-c edge.
		&models.EntityRelationship{ID: "r1", TenantID: "tenant-1", SourceEntityID: "ent-b", TargetEntityID: "ent-c", RelationshipType: "KNOWS"},
		// Would become a self-loop after repointing.
		&models.EntityRelationship{ID: "r2", TenantID: "tenant-1", SourceEntityID: "ent-b", TargetEntityID: "ent-a", RelationshipType: "KNOWS"},
		// Genuinely transferable.
		&models.EntityRelationship{ID: "r3", TenantID: "tenant-1", SourceEntityID: "ent-d", TargetEntityID: "ent-b", RelationshipType: "MANAGES"},
		&models.EntityRelationship{ID: "r4", TenantID: "tenant-1", SourceEntityID: "ent-a", TargetEntityID: "ent-c", RelationshipType: "KNOWS"},
	)

	f := newFixture(newMemEntityStore(canonical, duplicate, other, manager), rels)

	result, err := f.service.MergeEntities(context.Background(), MergeRequest{
		TenantID:          "tenant-1",
		CanonicalEntityID: "ent-a",
		MergedEntityIDs:   []string{"ent-b"},
		Reason:            "high similarity",
		SimilarityScores:  map[string]float64{"combined_score": 0.93},
		PerformedBy:       "system",
	})
	require.NoError(t, err)

	assert.Equal(t, "ent-a", result.CanonicalEntityID)
	assert.Equal(t, []string{"ent-b"}, result.MergedEntityIDs)
	assert.Equal(t, 1, result.RelationshipsTransferred)
	assert.NotEmpty(t, result.HistoryID)
	assert.NotEmpty(t, result.EventID)

	// Properties deep-merged, canonical wins; lists deduplicated.
	assert.Equal(t, 1, canonical.Properties["a"])
	assert.Equal(t, 2, canonical.Properties["b"])
	assert.Equal(t, []any{"x", "y"}, canonical.Properties["tags"])
	assert.Equal(t, "A person named Jon", canonical.Description)
	assert.Equal(t, 0.9, canonical.ConfidenceScore)

	// Merged entity flipped to alias.
	assert.False(t, duplicate.IsCanonical)
	require.NotNil(t, duplicate.IsAliasOf)
	assert.Equal(t, "ent-a", *duplicate.IsAliasOf)

	// Self-loop and duplicate edges are gone; the genuine edge moved.
	assert.NotContains(t, rels.rels, "r1")
	assert.NotContains(t, rels.rels, "r2")
	assert.Equal(t, "ent-a", rels.rels["r3"].TargetEntityID)

	// Alias snapshots the pre-merge state.
	require.Len(t, result.Aliases, 1)
	alias := result.Aliases[0]
	assert.Equal(t, "ent-b", alias.OriginalEntityID)
	assert.Equal(t, "ent-a", alias.CanonicalEntityID)
	assert.Equal(t, "Jon Smith", alias.Name)
	assert.Equal(t, result.HistoryID, alias.MergeEventID)
	assert.NotEmpty(t, alias.Fingerprint)

	// History recorded.
	record, err := f.history.GetByID(context.Background(), "tenant-1", result.HistoryID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.MergeEventEntitiesMerged, record.EventType)
	assert.Equal(t, []string{"ent-b"}, record.AffectedEntityIDs)
	assert.False(t, record.Undone)

	// Events published only after success, merged first.
	assert.Equal(t, []events.EventType{events.EventTypeEntitiesMerged, events.EventTypeAliasCreated}, f.publisher.eventTypes())
}

func TestMergeValidation(t *testing.T) {
	tests := []struct {
		name    string
		request MergeRequest
	}{
		{
			name: "self merge",
			request: MergeRequest{
				TenantID:          "tenant-1",
				CanonicalEntityID: "ent-a",
				MergedEntityIDs:   []string{"ent-a"},
			},
		},
		{
			name: "no entities to merge",
			request: MergeRequest{
				TenantID:          "tenant-1",
				CanonicalEntityID: "ent-a",
			},
		},
		{
			name: "merged entity from another tenant",
			request: MergeRequest{
				TenantID:          "tenant-1",
				CanonicalEntityID: "ent-a",
				MergedEntityIDs:   []string{"ent-other-tenant"},
			},
		},
		{
			name: "merged entity already an alias",
			request: MergeRequest{
				TenantID:          "tenant-1",
				CanonicalEntityID: "ent-a",
				MergedEntityIDs:   []string{"ent-alias"},
			},
		},
		{
			name: "canonical is not canonical",
			request: MergeRequest{
				TenantID:          "tenant-1",
				CanonicalEntityID: "ent-alias",
				MergedEntityIDs:   []string{"ent-b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical := testEntity("ent-a", "tenant-1", "John Smith")
			duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")
			foreign := testEntity("ent-other-tenant", "tenant-2", "Jon Smith")
			aliased := testEntity("ent-alias", "tenant-1", "J Smith")
			aliased.IsCanonical = false

			f := newFixture(newMemEntityStore(canonical, duplicate, foreign, aliased), newMemRelationshipStore())

			_, err := f.service.MergeEntities(context.Background(), tt.request)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.NotEmpty(t, validationErr.Issues)

			// Nothing mutated, nothing published.
			assert.True(t, duplicate.IsCanonical)
			assert.Empty(t, f.publisher.published)
			assert.Empty(t, f.aliases.aliases)
		})
	}
}

func TestMergeValidatesReconciledPropertiesAgainstSchema(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	canonical.Properties = map[string]any{"email": "john@example.com"}
	duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")
	duplicate.Properties = map[string]any{"age": "not a number"}

	schemas := &memSchemaValidator{
		result: schema.ValidationResult{
			Valid:  false,
			Errors: []schema.FieldError{{Field: "age", Message: "expected type integer, got string"}},
		},
	}
	f := newFixture(newMemEntityStore(canonical, duplicate), newMemRelationshipStore()).withSchemas(schemas)

	_, err := f.service.MergeEntities(context.Background(), MergeRequest{
		TenantID:          "tenant-1",
		CanonicalEntityID: "ent-a",
		MergedEntityIDs:   []string{"ent-b"},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Issues, 1)
	assert.Contains(t, validationErr.Issues[0], "age")

	// The validator saw the projected post-merge bag, not either input alone.
	assert.Equal(t, "PERSON", schemas.gotEntityType)
	assert.Equal(t, "john@example.com", schemas.gotProperties["email"])
	assert.Equal(t, "not a number", schemas.gotProperties["age"])

	// Rejected before any write: nothing mutated, nothing published.
	assert.True(t, duplicate.IsCanonical)
	assert.Equal(t, map[string]any{"email": "john@example.com"}, canonical.Properties)
	assert.Empty(t, f.aliases.aliases)
	assert.Empty(t, f.publisher.published)
}

func TestMergeProceedsWhenSchemaAccepts(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")

	schemas := &memSchemaValidator{result: schema.ValidationResult{Valid: true}}
	f := newFixture(newMemEntityStore(canonical, duplicate), newMemRelationshipStore()).withSchemas(schemas)

	result, err := f.service.MergeEntities(context.Background(), MergeRequest{
		TenantID:          "tenant-1",
		CanonicalEntityID: "ent-a",
		MergedEntityIDs:   []string{"ent-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ent-b"}, result.MergedEntityIDs)
	assert.False(t, duplicate.IsCanonical)
}

func TestIsMergeable(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")
	aliased := testEntity("ent-alias", "tenant-1", "J Smith")
	aliased.IsCanonical = false

	f := newFixture(newMemEntityStore(canonical, duplicate, aliased), newMemRelationshipStore())

	assert.True(t, f.service.IsMergeable(context.Background(), "tenant-1", "ent-a", "ent-b"))
	assert.False(t, f.service.IsMergeable(context.Background(), "tenant-1", "ent-a", "ent-a"))
	assert.False(t, f.service.IsMergeable(context.Background(), "tenant-1", "ent-a", "ent-alias"))
	assert.False(t, f.service.IsMergeable(context.Background(), "tenant-2", "ent-a", "ent-b"))
}

func TestValidateMergeCollectsIssues(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	f := newFixture(newMemEntityStore(canonical), newMemRelationshipStore())

	issues, err := f.service.ValidateMerge(context.Background(), MergeRequest{
		TenantID:          "tenant-1",
		CanonicalEntityID: "ent-a",
		MergedEntityIDs:   []string{"ent-a", "ent-missing"},
	})
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestMergePublishFailureSurfaces(t *testing.T) {
	canonical := testEntity("ent-a", "tenant-1", "John Smith")
	duplicate := testEntity("ent-b", "tenant-1", "Jon Smith")

	f := newFixture(newMemEntityStore(canonical, duplicate), newMemRelationshipStore())
	f.publisher.err = errors.New("broker unavailable")

	_, err := f.service.MergeEntities(context.Background(), MergeRequest{
		TenantID:          "tenant-1",
		CanonicalEntityID: "ent-a",
		MergedEntityIDs:   []string{"ent-b"},
	})

	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Empty(t, f.publisher.published)
}

func TestStrategyForField(t *testing.T) {
	assert.Equal(t, StrategyDeepMerge, StrategyForField("properties"))
	assert.Equal(t, StrategyDeepMerge, StrategyForField("external_ids"))
	assert.Equal(t, StrategyAdoptIfEmpty, StrategyForField("description"))
	assert.Equal(t, StrategyMax, StrategyForField("confidence_score"))
	assert.Equal(t, StrategyCanonicalWins, StrategyForField("name"))
}

func TestDeepMergeNestedMaps(t *testing.T) {
	canonical := map[string]any{
		"contact": map[string]any{"email": "john@example.com"},
		"role":    "engineer",
	}
	merged := map[string]any{
		"contact": map[string]any{"email": "jon@example.com", "phone": "555-0100"},
		"role":    "developer",
		"team":    "platform",
	}

	result := deepMergeMaps(canonical, merged)

	contact := result["contact"].(map[string]any)
	assert.Equal(t, "john@example.com", contact["email"])
	assert.Equal(t, "555-0100", contact["phone"])
	assert.Equal(t, "engineer", result["role"])
	assert.Equal(t, "platform", result["team"])
}
