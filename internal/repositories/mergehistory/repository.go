// Package mergehistory persists the append-only merge audit log.
package mergehistory

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "merge_history"

var columns = []string{
	"id", "tenant_id", "event_type", "canonical_entity_id",
	"affected_entity_ids", "merge_reason", "similarity_scores", "details",
	"performed_by", "created_at", "undone", "undone_by", "undone_at", "undo_reason",
}

// Repository handles merge history persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new merge history repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type historyRow struct {
	ID                string                             `db:"id"`
	TenantID          string                             `db:"tenant_id"`
	EventType         string                             `db:"event_type"`
	CanonicalEntityID string                             `db:"canonical_entity_id"`
	AffectedEntityIDs pq.StringArray                     `db:"affected_entity_ids"`
	MergeReason       string                             `db:"merge_reason"`
	SimilarityScores  database.JSONB[map[string]float64] `db:"similarity_scores"`
	Details           database.JSONB[map[string]any]     `db:"details"`
	PerformedBy       string                             `db:"performed_by"`
	CreatedAt         time.Time                          `db:"created_at"`
	Undone            bool                               `db:"undone"`
	UndoneBy          *string                            `db:"undone_by"`
	UndoneAt          *time.Time                         `db:"undone_at"`
	UndoReason        *string                            `db:"undo_reason"`
}

func (row *historyRow) toModel() *models.MergeHistory {
	return &models.MergeHistory{
		ID:                row.ID,
		TenantID:          row.TenantID,
		EventType:         models.MergeEventType(row.EventType),
		CanonicalEntityID: row.CanonicalEntityID,
		AffectedEntityIDs: row.AffectedEntityIDs,
		MergeReason:       row.MergeReason,
		SimilarityScores:  row.SimilarityScores.GetValue(),
		Details:           row.Details.GetValue(),
		PerformedBy:       row.PerformedBy,
		CreatedAt:         row.CreatedAt,
		Undone:            row.Undone,
		UndoneBy:          row.UndoneBy,
		UndoneAt:          row.UndoneAt,
		UndoReason:        row.UndoReason,
	}
}

// Create appends a history record.
func (r *Repository) Create(ctx context.Context, record *models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		record.ID, record.TenantID, string(record.EventType), record.CanonicalEntityID,
		pq.StringArray(record.AffectedEntityIDs), record.MergeReason,
		database.JSONB[map[string]float64]{Data: record.SimilarityScores},
		database.JSONB[map[string]any]{Data: record.Details},
		record.PerformedBy, record.CreatedAt,
		record.Undone, record.UndoneBy, record.UndoneAt, record.UndoReason,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to create merge history record", zap.String("id", record.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge history record")
	}

	return nil
}

// GetByID retrieves a history record. Returns nil without error when no row
// matches.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var row historyRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.Error("Failed to get merge history record", zap.String("id", id), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge history record")
	}

	return row.toModel(), nil
}

// ListByCanonical returns the audit trail for one canonical entity, newest
// first.
func (r *Repository) ListByCanonical(ctx context.Context, tenantID, canonicalEntityID string, limit int) ([]*models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.ListByCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("canonical_entity_id", canonicalEntityID),
	)
	sb.OrderBy("created_at DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list merge history", zap.String("canonical_entity_id", canonicalEntityID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge history")
	}

	out := make([]*models.MergeHistory, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// MarkUndone flips the undone flag exactly once. The undone=false predicate
// makes a second writer lose the race instead of double-undoing.
func (r *Repository) MarkUndone(ctx context.Context, tenantID, id string, undoneBy, reason string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.MarkUndone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("undone", true),
		sb.Assign("undone_by", undoneBy),
		sb.Assign("undone_at", at),
		sb.Assign("undo_reason", reason),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("undone", false),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to mark merge history undone", zap.String("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark merge undone")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, "merge history record already undone or not found")
	}

	return nil
}
