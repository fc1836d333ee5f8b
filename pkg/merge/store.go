package merge

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EntityStore is the slice of entity persistence the merge service needs.
// Implementations are expected to participate in the caller's transaction via
// the context (see pkg/database.GetTx).
type EntityStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Entity, error)
	Create(ctx context.Context, entity *models.Entity) error
	Update(ctx context.Context, entity *models.Entity) error
}

// RelationshipStore manages directed entity edges.
type RelationshipStore interface {
	ListByEntity(ctx context.Context, tenantID, entityID string) ([]models.EntityRelationship, error)
	Create(ctx context.Context, rel *models.EntityRelationship) error
	Update(ctx context.Context, rel *models.EntityRelationship) error
	Delete(ctx context.Context, tenantID, id string) error
}

// AliasStore manages merge snapshots.
type AliasStore interface {
	Create(ctx context.Context, alias *models.EntityAlias) error
	ListByMergeEvent(ctx context.Context, tenantID, mergeEventID string) ([]models.EntityAlias, error)
	ListByCanonical(ctx context.Context, tenantID, canonicalEntityID string) ([]models.EntityAlias, error)
	Update(ctx context.Context, alias *models.EntityAlias) error
	Delete(ctx context.Context, tenantID, id string) error
}

// HistoryStore manages the append-only merge audit log.
type HistoryStore interface {
	Create(ctx context.Context, record *models.MergeHistory) error
	GetByID(ctx context.Context, tenantID, id string) (*models.MergeHistory, error)
	MarkUndone(ctx context.Context, tenantID, id string, undoneBy, reason string, at time.Time) error
}
