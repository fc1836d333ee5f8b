// Package entity persists canonical and alias entities. It backs both the
// merge service's entity store and the blocking engine's candidate store.
package entity

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalize"
	"github.com/Ramsey-B/fern/pkg/phonetic"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "entities"

var columns = []string{
	"id", "tenant_id", "entity_type", "name", "normalized_name", "description",
	"properties", "external_ids", "confidence_score", "source_page_id",
	"source_text", "soundex_code", "is_canonical", "is_alias_of",
	"created_at", "updated_at",
}

// Repository handles entity persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

type entityRow struct {
	ID              string                          `db:"id"`
	TenantID        string                          `db:"tenant_id"`
	EntityType      string                          `db:"entity_type"`
	Name            string                          `db:"name"`
	NormalizedName  string                          `db:"normalized_name"`
	Description     string                          `db:"description"`
	Properties      database.JSONB[map[string]any]  `db:"properties"`
	ExternalIDs     database.JSONB[map[string]any]  `db:"external_ids"`
	ConfidenceScore float64                         `db:"confidence_score"`
	SourcePageID    *string                         `db:"source_page_id"`
	SourceText      string                          `db:"source_text"`
	SoundexCode     string                          `db:"soundex_code"`
	IsCanonical     bool                            `db:"is_canonical"`
	IsAliasOf       *string                         `db:"is_alias_of"`
	CreatedAt       time.Time                       `db:"created_at"`
	UpdatedAt       time.Time                       `db:"updated_at"`
}

func (row *entityRow) toModel() *models.Entity {
	return &models.Entity{
		ID:              row.ID,
		TenantID:        row.TenantID,
		EntityType:      row.EntityType,
		Name:            row.Name,
		NormalizedName:  row.NormalizedName,
		Description:     row.Description,
		Properties:      row.Properties.GetValue(),
		ExternalIDs:     row.ExternalIDs.GetValue(),
		ConfidenceScore: row.ConfidenceScore,
		SourcePageID:    row.SourcePageID,
		SourceText:      row.SourceText,
		IsCanonical:     row.IsCanonical,
		IsAliasOf:       row.IsAliasOf,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// Create inserts a new entity. The normalized name and soundex blocking key
// are derived here so every write keeps the blocking columns consistent.
func (r *Repository) Create(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	if entity.NormalizedName == "" {
		entity.NormalizedName = normalize.Normalize(entity.Name)
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	entity.UpdatedAt = entity.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		entity.ID, entity.TenantID, entity.EntityType, entity.Name,
		entity.NormalizedName, entity.Description,
		database.JSONB[map[string]any]{Data: entity.Properties},
		database.JSONB[map[string]any]{Data: entity.ExternalIDs},
		entity.ConfidenceScore, entity.SourcePageID, entity.SourceText,
		phonetic.Soundex(entity.NormalizedName),
		entity.IsCanonical, entity.IsAliasOf,
		entity.CreatedAt, entity.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to create entity", zap.String("id", entity.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create entity")
	}

	return nil
}

// GetByID retrieves an entity. Returns nil without error when no row matches.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var row entityRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.Error("Failed to get entity", zap.String("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}

	return row.toModel(), nil
}

// Update writes every mutable column, keeping the soundex blocking key in sync
// with the normalized name.
func (r *Repository) Update(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Update")
	defer span.End()

	if entity.NormalizedName == "" {
		entity.NormalizedName = normalize.Normalize(entity.Name)
	}
	entity.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("entity_type", entity.EntityType),
		sb.Assign("name", entity.Name),
		sb.Assign("normalized_name", entity.NormalizedName),
		sb.Assign("description", entity.Description),
		sb.Assign("properties", database.JSONB[map[string]any]{Data: entity.Properties}),
		sb.Assign("external_ids", database.JSONB[map[string]any]{Data: entity.ExternalIDs}),
		sb.Assign("confidence_score", entity.ConfidenceScore),
		sb.Assign("source_page_id", entity.SourcePageID),
		sb.Assign("source_text", entity.SourceText),
		sb.Assign("soundex_code", phonetic.Soundex(entity.NormalizedName)),
		sb.Assign("is_canonical", entity.IsCanonical),
		sb.Assign("is_alias_of", entity.IsAliasOf),
		sb.Assign("updated_at", entity.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", entity.ID),
		sb.Equal("tenant_id", entity.TenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update entity", zap.String("id", entity.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}

	return nil
}

// ListCanonical returns the canonical entities in scope for a consolidation
// run, oldest first so earlier records win as merge targets.
func (r *Repository) ListCanonical(ctx context.Context, tenantID string, scope models.ConsolidationScope) ([]*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_canonical", true),
	)
	if len(scope.EntityIDs) > 0 {
		sb.Where(sb.In("id", sqlbuilder.Flatten(scope.EntityIDs)...))
	}
	if len(scope.SourcePageIDs) > 0 {
		sb.Where(sb.In("source_page_id", sqlbuilder.Flatten(scope.SourcePageIDs)...))
	}
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var rows []entityRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list canonical entities", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}

	return rowsToModels(rows), nil
}

// FindByNamePrefix returns canonical entities whose normalized name starts
// with the given prefix.
func (r *Repository) FindByNamePrefix(ctx context.Context, tenantID, prefix, excludeID string, limit int) ([]*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindByNamePrefix")
	defer span.End()

	return r.findCandidates(ctx, tenantID, excludeID, limit, func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Like("normalized_name", likeEscape(prefix)+"%"))
	})
}

// FindByEntityType returns canonical entities of the given type.
func (r *Repository) FindByEntityType(ctx context.Context, tenantID, entityType, excludeID string, limit int) ([]*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindByEntityType")
	defer span.End()

	return r.findCandidates(ctx, tenantID, excludeID, limit, func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("entity_type", entityType))
	})
}

// FindBySoundex returns canonical entities sharing a soundex blocking key.
func (r *Repository) FindBySoundex(ctx context.Context, tenantID, code, excludeID string, limit int) ([]*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindBySoundex")
	defer span.End()

	return r.findCandidates(ctx, tenantID, excludeID, limit, func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("soundex_code", code))
	})
}

func (r *Repository) findCandidates(ctx context.Context, tenantID, excludeID string, limit int, apply func(*sqlbuilder.SelectBuilder)) ([]*models.Entity, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_canonical", true),
		sb.NotEqual("id", excludeID),
	)
	apply(sb)
	sb.OrderBy("created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []entityRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to find blocking candidates", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidates")
	}

	return rowsToModels(rows), nil
}

// CountCanonical returns the number of canonical entities in a tenant.
func (r *Repository) CountCanonical(ctx context.Context, tenantID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.CountCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_canonical", true),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.Error("Failed to count canonical entities", zap.String("tenant_id", tenantID), zap.Error(err))
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count entities")
	}

	return count, nil
}

// CountByEntityType returns canonical entity counts grouped by type.
func (r *Repository) CountByEntityType(ctx context.Context, tenantID string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.CountByEntityType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("entity_type", "COUNT(*) AS count")
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_canonical", true),
	)
	sb.GroupBy("entity_type")

	query, args := sb.Build()
	var rows []struct {
		EntityType string `db:"entity_type"`
		Count      int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to count entities by type", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count entities by type")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.EntityType] = row.Count
	}
	return counts, nil
}

// CountDistinctSoundex returns how many distinct soundex blocking keys exist
// among a tenant's canonical entities.
func (r *Repository) CountDistinctSoundex(ctx context.Context, tenantID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.CountDistinctSoundex")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(DISTINCT soundex_code)")
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_canonical", true),
		sb.NotEqual("soundex_code", ""),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.Error("Failed to count distinct soundex codes", zap.String("tenant_id", tenantID), zap.Error(err))
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count soundex codes")
	}

	return count, nil
}

func rowsToModels(rows []entityRow) []*models.Entity {
	out := make([]*models.Entity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

// likeEscape neutralizes LIKE wildcards in user-derived prefixes.
func likeEscape(s string) string {
	escaped := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, r)
	}
	return string(escaped)
}
