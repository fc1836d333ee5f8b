// Package alias persists merge snapshots.
package alias

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
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "entity_aliases"

var columns = []string{
	"id", "tenant_id", "original_entity_id", "canonical_entity_id",
	"name", "normalized_name", "entity_type", "description",
	"properties", "external_ids", "confidence_score", "source_page_id",
	"source_text", "fingerprint", "merge_event_id", "merge_reason", "merged_at",
}

// Repository handles entity alias persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type aliasRow struct {
	ID                string                         `db:"id"`
	TenantID          string                         `db:"tenant_id"`
	OriginalEntityID  string                         `db:"original_entity_id"`
	CanonicalEntityID string                         `db:"canonical_entity_id"`
	Name              string                         `db:"name"`
	NormalizedName    string                         `db:"normalized_name"`
	EntityType        string                         `db:"entity_type"`
	Description       string                         `db:"description"`
	Properties        database.JSONB[map[string]any] `db:"properties"`
	ExternalIDs       database.JSONB[map[string]any] `db:"external_ids"`
	ConfidenceScore   float64                        `db:"confidence_score"`
	SourcePageID      *string                        `db:"source_page_id"`
	SourceText        string                         `db:"source_text"`
	Fingerprint       string                         `db:"fingerprint"`
	MergeEventID      string                         `db:"merge_event_id"`
	MergeReason       string                         `db:"merge_reason"`
	MergedAt          time.Time                      `db:"merged_at"`
}

func (row *aliasRow) toModel() models.EntityAlias {
	return models.EntityAlias{
		ID:                row.ID,
		TenantID:          row.TenantID,
		OriginalEntityID:  row.OriginalEntityID,
		CanonicalEntityID: row.CanonicalEntityID,
		Name:              row.Name,
		NormalizedName:    row.NormalizedName,
		EntityType:        row.EntityType,
		Description:       row.Description,
		Properties:        row.Properties.GetValue(),
		ExternalIDs:       row.ExternalIDs.GetValue(),
		ConfidenceScore:   row.ConfidenceScore,
		SourcePageID:      row.SourcePageID,
		SourceText:        row.SourceText,
		Fingerprint:       row.Fingerprint,
		MergeEventID:      row.MergeEventID,
		MergeReason:       row.MergeReason,
		MergedAt:          row.MergedAt,
	}
}

// Create inserts an alias snapshot.
func (r *Repository) Create(ctx context.Context, alias *models.EntityAlias) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Create")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	if alias.MergedAt.IsZero() {
		alias.MergedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		alias.ID, alias.TenantID, alias.OriginalEntityID, alias.CanonicalEntityID,
		alias.Name, alias.NormalizedName, alias.EntityType, alias.Description,
		database.JSONB[map[string]any]{Data: alias.Properties},
		database.JSONB[map[string]any]{Data: alias.ExternalIDs},
		alias.ConfidenceScore, alias.SourcePageID, alias.SourceText,
		alias.Fingerprint, alias.MergeEventID, alias.MergeReason, alias.MergedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to create alias", zap.String("id", alias.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create alias")
	}

	return nil
}

// ListByMergeEvent returns the aliases created by one merge event.
func (r *Repository) ListByMergeEvent(ctx context.Context, tenantID, mergeEventID string) ([]models.EntityAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByMergeEvent")
	defer span.End()

	return r.list(ctx, tenantID, func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("merge_event_id", mergeEventID))
	})
}

// ListByCanonical returns every alias currently pointing at a canonical
// entity.
func (r *Repository) ListByCanonical(ctx context.Context, tenantID, canonicalEntityID string) ([]models.EntityAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByCanonical")
	defer span.End()

	return r.list(ctx, tenantID, func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("canonical_entity_id", canonicalEntityID))
	})
}

func (r *Repository) list(ctx context.Context, tenantID string, apply func(*sqlbuilder.SelectBuilder)) ([]models.EntityAlias, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("tenant_id", tenantID))
	apply(sb)
	sb.OrderBy("merged_at ASC")

	query, args := sb.Build()
	var rows []aliasRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list aliases", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	out := make([]models.EntityAlias, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// Update rewrites an alias's canonical pointer, used during splits.
func (r *Repository) Update(ctx context.Context, alias *models.EntityAlias) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Update")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("canonical_entity_id", alias.CanonicalEntityID),
		sb.Assign("merge_reason", alias.MergeReason),
	)
	sb.Where(
		sb.Equal("id", alias.ID),
		sb.Equal("tenant_id", alias.TenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update alias", zap.String("id", alias.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update alias")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "alias not found")
	}

	return nil
}

// Delete removes a consumed alias after an undo.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to delete alias", zap.String("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete alias")
	}

	return nil
}
