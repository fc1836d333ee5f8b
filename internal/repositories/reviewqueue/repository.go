// Package reviewqueue persists candidate pairs awaiting human review.
package reviewqueue

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

const table = "merge_review_queue"

var columns = []string{
	"id", "tenant_id", "entity_id", "candidate_entity_id", "confidence",
	"similarity_scores", "status", "priority", "resolved_by", "resolved_at",
	"created_at", "updated_at",
}

// Repository handles merge review queue persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type reviewRow struct {
	ID                string                             `db:"id"`
	TenantID          string                             `db:"tenant_id"`
	EntityID          string                             `db:"entity_id"`
	CandidateEntityID string                             `db:"candidate_entity_id"`
	Confidence        float64                            `db:"confidence"`
	SimilarityScores  database.JSONB[map[string]float64] `db:"similarity_scores"`
	Status            string                             `db:"status"`
	Priority          int                                `db:"priority"`
	ResolvedBy        *string                            `db:"resolved_by"`
	ResolvedAt        *time.Time                         `db:"resolved_at"`
	CreatedAt         time.Time                          `db:"created_at"`
	UpdatedAt         time.Time                          `db:"updated_at"`
}

func (row *reviewRow) toModel() *models.MergeReviewItem {
	return &models.MergeReviewItem{
		ID:                row.ID,
		TenantID:          row.TenantID,
		EntityID:          row.EntityID,
		CandidateEntityID: row.CandidateEntityID,
		Confidence:        row.Confidence,
		SimilarityScores:  row.SimilarityScores.GetValue(),
		Status:            models.ReviewStatus(row.Status),
		Priority:          row.Priority,
		ResolvedBy:        row.ResolvedBy,
		ResolvedAt:        row.ResolvedAt,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

// PendingPairExists reports whether a pending item already covers the pair in
// either id order.
func (r *Repository) PendingPairExists(ctx context.Context, tenantID, entityID, candidateEntityID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.PendingPairExists")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", string(models.ReviewStatusPending)),
		sb.Or(
			sb.And(sb.Equal("entity_id", entityID), sb.Equal("candidate_entity_id", candidateEntityID)),
			sb.And(sb.Equal("entity_id", candidateEntityID), sb.Equal("candidate_entity_id", entityID)),
		),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.Error("Failed to check pending review pair", zap.String("entity_id", entityID), zap.Error(err))
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check review queue")
	}

	return count > 0, nil
}

// Enqueue inserts a review item.
func (r *Repository) Enqueue(ctx context.Context, item *models.MergeReviewItem) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Enqueue")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = models.ReviewStatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(
		item.ID, item.TenantID, item.EntityID, item.CandidateEntityID,
		item.Confidence,
		database.JSONB[map[string]float64]{Data: item.SimilarityScores},
		string(item.Status), item.Priority,
		item.ResolvedBy, item.ResolvedAt,
		item.CreatedAt, item.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to enqueue review item", zap.String("id", item.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue review item")
	}

	return nil
}

// ListPending returns pending items, highest priority first.
func (r *Repository) ListPending(ctx context.Context, tenantID string, limit int) ([]*models.MergeReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.ListPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", string(models.ReviewStatusPending)),
	)
	sb.OrderBy("priority DESC", "created_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []reviewRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list pending review items", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review items")
	}

	out := make([]*models.MergeReviewItem, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// Resolve stamps a pending item approved or rejected.
func (r *Repository) Resolve(ctx context.Context, tenantID, id string, status models.ReviewStatus, resolvedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("status", string(status)),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", string(models.ReviewStatusPending)),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to resolve review item", zap.String("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve review item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "pending review item not found")
	}

	return nil
}
