package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestSplitEntity(t *testing.T) {
	original := testEntity("ent-x", "tenant-1", "Platform Team")
	original.EntityType = "ORGANIZATION"
	original.Description = "An over-merged team entity"
	team := testEntity("ent-m", "tenant-1", "Core Services")
	lead := testEntity("ent-l", "tenant-1", "Dana Ortiz")

	rels := newMemRelationshipStore(
		&models.EntityRelationship{ID: "r1", TenantID: "tenant-1", SourceEntityID: "ent-x", TargetEntityID: "ent-m", RelationshipType: "MEMBER_OF"},
		&models.EntityRelationship{ID: "r2", TenantID: "tenant-1", SourceEntityID: "ent-l", TargetEntityID: "ent-x", RelationshipType: "LEADS"},
	)
	f := newFixture(newMemEntityStore(original, team, lead), rels)

	// Seed an alias pointing at the original so redistribution has work.
	require.NoError(t, f.aliases.Create(context.Background(), &models.EntityAlias{
		ID:                "alias-1",
		TenantID:          "tenant-1",
		OriginalEntityID:  "ent-old",
		CanonicalEntityID: "ent-x",
		Name:              "Platform",
	}))

	result, err := f.service.SplitEntity(context.Background(), SplitRequest{
		TenantID: "tenant-1",
		EntityID: "ent-x",
		Definitions: []SplitDefinition{
			{Name: "Platform Infra"},
			{Name: "Platform Apps", EntityType: "TEAM", Description: "Application side"},
		},
		RelationshipAssignments: map[string]int{"r2": 1},
		Reason:                  "two distinct teams were merged",
		PerformedBy:             "reviewer",
	})
	require.NoError(t, err)
	require.Len(t, result.NewEntityIDs, 2)

	firstID, secondID := result.NewEntityIDs[0], result.NewEntityIDs[1]

	first, err := f.entities.GetByID(context.Background(), "tenant-1", firstID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Platform Infra", first.Name)
	assert.Equal(t, "ORGANIZATION", first.EntityType)
	assert.Equal(t, "An over-merged team entity", first.Description)
	assert.True(t, first.IsCanonical)

	second, err := f.entities.GetByID(context.Background(), "tenant-1", secondID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "TEAM", second.EntityType)
	assert.Equal(t, "Application side", second.Description)

	// Unassigned relationship goes to index 0, assigned one to index 1.
	assert.Equal(t, firstID, rels.rels["r1"].SourceEntityID)
	assert.Equal(t, secondID, rels.rels["r2"].TargetEntityID)
	assert.Equal(t, 2, result.RelationshipsRedistributed)

	// Alias follows the default assignment.
	assert.Equal(t, firstID, f.aliases.aliases["alias-1"].CanonicalEntityID)
	assert.Equal(t, 1, result.AliasesRedistributed)

	// Original is demoted and stamped.
	assert.False(t, original.IsCanonical)
	stamp, ok := original.Properties["_split_into"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{firstID, secondID}, stamp["entity_ids"])

	record, err := f.history.GetByID(context.Background(), "tenant-1", result.HistoryID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.MergeEventEntitySplit, record.EventType)
	assert.Equal(t, result.NewEntityIDs, record.AffectedEntityIDs)
}

func TestSplitEntityClampsOutOfRangeAssignment(t *testing.T) {
	original := testEntity("ent-x", "tenant-1", "Platform Team")
	other := testEntity("ent-m", "tenant-1", "Core Services")

	rels := newMemRelationshipStore(
		&models.EntityRelationship{ID: "r1", TenantID: "tenant-1", SourceEntityID: "ent-x", TargetEntityID: "ent-m", RelationshipType: "MEMBER_OF"},
	)
	f := newFixture(newMemEntityStore(original, other), rels)

	result, err := f.service.SplitEntity(context.Background(), SplitRequest{
		TenantID: "tenant-1",
		EntityID: "ent-x",
		Definitions: []SplitDefinition{
			{Name: "One"},
			{Name: "Two"},
		},
		RelationshipAssignments: map[string]int{"r1": 99},
	})
	require.NoError(t, err)

	assert.Equal(t, result.NewEntityIDs[0], rels.rels["r1"].SourceEntityID)
}

func TestSplitDoesNotAliasPropertyBags(t *testing.T) {
	original := testEntity("ent-x", "tenant-1", "Platform Team")
	original.Properties = map[string]any{
		"contact":     map[string]any{"email": "team@example.com"},
		"_split_into": map[string]any{"entity_ids": []string{"stale"}},
	}

	defProps := map[string]any{
		"owner":       map[string]any{"name": "Dana"},
		"_split_into": map[string]any{"entity_ids": []string{"stale"}},
	}

	f := newFixture(newMemEntityStore(original), newMemRelationshipStore())

	result, err := f.service.SplitEntity(context.Background(), SplitRequest{
		TenantID: "tenant-1",
		EntityID: "ent-x",
		Definitions: []SplitDefinition{
			{Name: "Platform Infra", Properties: defProps},
			{Name: "Platform Apps"},
		},
	})
	require.NoError(t, err)

	// The caller's definition map is untouched, including the stale stamp.
	assert.Contains(t, defProps, "_split_into")

	first, err := f.entities.GetByID(context.Background(), "tenant-1", result.NewEntityIDs[0])
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := f.entities.GetByID(context.Background(), "tenant-1", result.NewEntityIDs[1])
	require.NoError(t, err)
	require.NotNil(t, second)

	// Neither child carries the stale stamp forward.
	assert.NotContains(t, first.Properties, "_split_into")
	assert.NotContains(t, second.Properties, "_split_into")

	// Nested maps are copies, not shared references: mutating one child's bag
	// leaves the other child and the original alone.
	owner := first.Properties["owner"].(map[string]any)
	owner["name"] = "changed"
	assert.Equal(t, "Dana", defProps["owner"].(map[string]any)["name"])

	contact := second.Properties["contact"].(map[string]any)
	contact["email"] = "changed@example.com"
	assert.Equal(t, "team@example.com", original.Properties["contact"].(map[string]any)["email"])
}

func TestSplitEntityValidation(t *testing.T) {
	original := testEntity("ent-x", "tenant-1", "Platform Team")

	tests := []struct {
		name    string
		request SplitRequest
	}{
		{
			name: "entity not found",
			request: SplitRequest{
				TenantID:    "tenant-1",
				EntityID:    "ent-missing",
				Definitions: []SplitDefinition{{Name: "One"}, {Name: "Two"}},
			},
		},
		{
			name: "fewer than two definitions",
			request: SplitRequest{
				TenantID:    "tenant-1",
				EntityID:    "ent-x",
				Definitions: []SplitDefinition{{Name: "One"}},
			},
		},
		{
			name: "definition without a name",
			request: SplitRequest{
				TenantID:    "tenant-1",
				EntityID:    "ent-x",
				Definitions: []SplitDefinition{{Name: "One"}, {}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newMemEntityStore(original), newMemRelationshipStore())

			_, err := f.service.SplitEntity(context.Background(), tt.request)

			var splitErr *SplitError
			require.ErrorAs(t, err, &splitErr)
			assert.True(t, original.IsCanonical)
			assert.Empty(t, f.publisher.published)
		})
	}
}
