package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tenantID = "tenant-int"

// Two identical person records extracted from different pages are merged
// automatically: the duplicate is absorbed, its relationship moves to the
// survivor, and the merge is fully auditable.
func TestConsolidationMergesDuplicatesEndToEnd(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	p.addEntity("ent-a", tenantID, "John Smith", map[string]any{"title": "engineer"})
	p.addEntity("ent-b", tenantID, "John Smith", map[string]any{"team": "platform"})
	p.addEntity("ent-c", tenantID, "Acme Corporation", nil)
	p.addRelationship("rel-1", tenantID, "ent-b", "ent-c", "WORKS_AT")

	summary, err := p.orchestrator.RunConsolidation(ctx, tenantID, models.ConsolidationScope{}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ConsolidationStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.AutoMerged)
	assert.Equal(t, 0, summary.QueuedForReview)

	// The duplicate was demoted and points at the survivor.
	absorbed, err := p.store.GetByID(ctx, tenantID, "ent-b")
	require.NoError(t, err)
	require.NotNil(t, absorbed)
	assert.False(t, absorbed.IsCanonical)
	require.NotNil(t, absorbed.IsAliasOf)
	assert.Equal(t, "ent-a", *absorbed.IsAliasOf)

	// Properties from both records survive on the canonical entity.
	canonical, err := p.store.GetByID(ctx, tenantID, "ent-a")
	require.NoError(t, err)
	assert.Equal(t, "engineer", canonical.Properties["title"])
	assert.Equal(t, "platform", canonical.Properties["team"])

	// The WORKS_AT edge now hangs off the canonical entity.
	rels, err := (&relationshipStore{store: p.store}).ListByEntity(ctx, tenantID, "ent-a")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "ent-a", rels[0].SourceEntityID)
	assert.Equal(t, "ent-c", rels[0].TargetEntityID)

	// A snapshot alias records what was merged away.
	aliases, err := p.aliases.ListByCanonical(ctx, tenantID, "ent-a")
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "ent-b", aliases[0].OriginalEntityID)
	assert.NotEmpty(t, aliases[0].Fingerprint)

	counts := p.sink.countByType()
	assert.Equal(t, 1, counts[events.EventTypeEntitiesMerged])
	assert.Equal(t, 1, counts[events.EventTypeAliasCreated])
	assert.Equal(t, 1, counts[events.EventTypeConsolidationCompleted])
}

// An auto-merge can be reversed: the absorbed entity comes back under a fresh
// id with its relationships replayed, and the audit record flips to undone.
func TestConsolidationThenUndoRestores(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	p.addEntity("ent-a", tenantID, "John Smith", nil)
	p.addEntity("ent-b", tenantID, "John Smith", map[string]any{"team": "platform"})
	p.addEntity("ent-c", tenantID, "Acme Corporation", nil)
	p.addRelationship("rel-1", tenantID, "ent-b", "ent-c", "WORKS_AT")

	_, err := p.orchestrator.RunConsolidation(ctx, tenantID, models.ConsolidationScope{}, nil)
	require.NoError(t, err)

	aliases, err := p.aliases.ListByCanonical(ctx, tenantID, "ent-a")
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	mergeEventID := aliases[0].MergeEventID

	result, err := p.merger.UndoMerge(ctx, merge.UndoRequest{
		TenantID:     tenantID,
		MergeEventID: mergeEventID,
		Reason:       "false positive",
		PerformedBy:  "reviewer",
	})
	require.NoError(t, err)

	newID, ok := result.RestoredEntities["ent-b"]
	require.True(t, ok)
	assert.NotEqual(t, "ent-b", newID, "restored entities must get fresh ids")

	restored, err := p.store.GetByID(ctx, tenantID, newID)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.True(t, restored.IsCanonical)
	assert.Equal(t, "John Smith", restored.Name)
	assert.Equal(t, "platform", restored.Properties["team"])

	// The replayed relationship targets the restored entity, not the old id.
	rels, err := (&relationshipStore{store: p.store}).ListByEntity(ctx, tenantID, newID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, newID, rels[0].SourceEntityID)
	assert.Equal(t, "ent-c", rels[0].TargetEntityID)

	record, err := p.history.GetByID(ctx, tenantID, mergeEventID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.Undone)

	// The merge can only be undone once.
	_, err = p.merger.UndoMerge(ctx, merge.UndoRequest{
		TenantID:     tenantID,
		MergeEventID: mergeEventID,
		Reason:       "again",
		PerformedBy:  "reviewer",
	})
	require.Error(t, err)

	counts := p.sink.countByType()
	assert.Equal(t, 1, counts[events.EventTypeMergeUndone])
}

// Near-duplicates land in the review queue instead of merging; a human
// approval then drives the merge through the same service.
func TestBorderlinePairQueuedThenApproved(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	p.addEntity("ent-a", tenantID, "John Smith", nil)
	p.addEntity("ent-b", tenantID, "Jon Smith", nil)

	summary, err := p.orchestrator.RunConsolidation(ctx, tenantID, models.ConsolidationScope{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.AutoMerged)
	assert.Equal(t, 1, summary.QueuedForReview)
	require.Len(t, p.reviews.items, 1)
	item := p.reviews.items[0]
	assert.Equal(t, models.ReviewStatusPending, item.Status)
	assert.NotEmpty(t, item.SimilarityScores)

	// Reviewer approves the pair.
	result, err := p.merger.MergeEntities(ctx, merge.MergeRequest{
		TenantID:          tenantID,
		CanonicalEntityID: item.EntityID,
		MergedEntityIDs:   []string{item.CandidateEntityID},
		Reason:            "approved by reviewer",
		SimilarityScores:  item.SimilarityScores,
		PerformedBy:       "reviewer",
	})
	require.NoError(t, err)
	assert.Len(t, result.Aliases, 1)

	absorbed, err := p.store.GetByID(ctx, tenantID, item.CandidateEntityID)
	require.NoError(t, err)
	assert.False(t, absorbed.IsCanonical)
}

// An over-merged entity is split back apart, with each relationship routed to
// the definition its assignment names.
func TestSplitAfterOverMerge(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	p.addEntity("ent-a", tenantID, "J. Smith", map[string]any{"source": "directory"})
	p.addEntity("ent-c", tenantID, "Acme Corporation", nil)
	p.addEntity("ent-d", tenantID, "Globex LLC", nil)
	p.addRelationship("rel-1", tenantID, "ent-a", "ent-c", "WORKS_AT")
	p.addRelationship("rel-2", tenantID, "ent-a", "ent-d", "WORKS_AT")

	result, err := p.merger.SplitEntity(ctx, merge.SplitRequest{
		TenantID: tenantID,
		EntityID: "ent-a",
		Definitions: []merge.SplitDefinition{
			{Name: "John Smith", EntityType: "PERSON"},
			{Name: "Jane Smith", EntityType: "PERSON"},
		},
		RelationshipAssignments: map[string]int{"rel-2": 1},
		Reason:                  "two different people",
		PerformedBy:             "reviewer",
	})
	require.NoError(t, err)
	require.Len(t, result.NewEntityIDs, 2)
	assert.Equal(t, 2, result.RelationshipsRedistributed)

	first, err := p.store.GetByID(ctx, tenantID, result.NewEntityIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "John Smith", first.Name)
	assert.True(t, first.IsCanonical)

	// rel-1 was unassigned and defaults to the first definition; rel-2 was
	// explicitly routed to the second.
	relStore := &relationshipStore{store: p.store}
	firstRels, err := relStore.ListByEntity(ctx, tenantID, result.NewEntityIDs[0])
	require.NoError(t, err)
	require.Len(t, firstRels, 1)
	assert.Equal(t, "ent-c", firstRels[0].TargetEntityID)

	secondRels, err := relStore.ListByEntity(ctx, tenantID, result.NewEntityIDs[1])
	require.NoError(t, err)
	require.Len(t, secondRels, 1)
	assert.Equal(t, "ent-d", secondRels[0].TargetEntityID)

	// The original is demoted and stamped with where it went.
	original, err := p.store.GetByID(ctx, tenantID, "ent-a")
	require.NoError(t, err)
	assert.False(t, original.IsCanonical)
	assert.Contains(t, original.Properties, "_split_into")

	counts := p.sink.countByType()
	assert.Equal(t, 1, counts[events.EventTypeEntitySplit])
}

// Re-running consolidation after everything settled produces no new merges
// and no duplicate review items.
func TestConsolidationRerunIsStable(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	p.addEntity("ent-a", tenantID, "John Smith", nil)
	p.addEntity("ent-b", tenantID, "John Smith", nil)
	p.addEntity("ent-c", tenantID, "Jon Smith", nil)

	first, err := p.orchestrator.RunConsolidation(ctx, tenantID, models.ConsolidationScope{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AutoMerged)
	firstQueued := len(p.reviews.items)

	second, err := p.orchestrator.RunConsolidation(ctx, tenantID, models.ConsolidationScope{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, second.AutoMerged)
	assert.Equal(t, 0, second.QueuedForReview, "pending pairs must not be re-queued")
	assert.Len(t, p.reviews.items, firstQueued)
}
