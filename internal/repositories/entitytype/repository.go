// Package entitytype persists per-tenant entity type schemas.
package entitytype

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "entity_types"

var columns = []string{"id", "tenant_id", "key", "version", "schema", "created_at", "updated_at"}

// Repository handles entity type schema persistence. It implements
// schema.Source for the registry.
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new entity type repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type entityTypeRow struct {
	ID        string          `db:"id"`
	TenantID  string          `db:"tenant_id"`
	Key       string          `db:"key"`
	Version   int             `db:"version"`
	Schema    json.RawMessage `db:"schema"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (row *entityTypeRow) toModel() *schema.EntityType {
	return &schema.EntityType{
		Key:     row.Key,
		Version: row.Version,
		Schema:  row.Schema,
	}
}

// GetByKey fetches the schema registered for an entity type key. Returns
// nil when no schema is registered.
func (r *Repository) GetByKey(ctx context.Context, tenantID, key string) (*schema.EntityType, error) {
	ctx, span := tracing.StartSpan(ctx, "entitytype.Repository.GetByKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("key", key),
	)

	query, args := sb.Build()
	var row entityTypeRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.Error("Failed to get entity type", zap.String("key", key), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity type")
	}

	return row.toModel(), nil
}

// Upsert registers a schema for an entity type key, bumping the version when
// the key already exists.
func (r *Repository) Upsert(ctx context.Context, tenantID, key string, schemaJSON json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "entitytype.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(uuid.New().String(), tenantID, key, 1, schemaJSON, now, now)

	ub := ib.OnConflict("tenant_id", "key")
	ub.Set(
		ub.Assign("schema", database.Excluded("schema")),
		"version = "+table+".version + 1",
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to upsert entity type", zap.String("key", key), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert entity type")
	}

	return nil
}
