// Package relationship persists directed entity edges.
package relationship

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

const table = "entity_relationships"

var columns = []string{
	"id", "tenant_id", "source_entity_id", "target_entity_id",
	"relationship_type", "properties", "confidence_score",
	"created_at", "updated_at",
}

// relationshipNamespace seeds deterministic edge ids so the same logical edge
// always maps to the same row across re-extractions.
var relationshipNamespace = uuid.MustParse("9f2c1a34-5b8d-4e7f-9a21-3c6d8e0f4b57")

// DeterministicID derives a stable id for a logical edge.
func DeterministicID(tenantID, relationshipType, sourceEntityID, targetEntityID string) string {
	name := tenantID + "|" + relationshipType + "|" + sourceEntityID + "|" + targetEntityID
	return uuid.NewSHA1(relationshipNamespace, []byte(name)).String()
}

// Repository handles relationship persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new relationship repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type relationshipRow struct {
	ID               string                         `db:"id"`
	TenantID         string                         `db:"tenant_id"`
	SourceEntityID   string                         `db:"source_entity_id"`
	TargetEntityID   string                         `db:"target_entity_id"`
	RelationshipType string                         `db:"relationship_type"`
	Properties       database.JSONB[map[string]any] `db:"properties"`
	ConfidenceScore  float64                        `db:"confidence_score"`
	CreatedAt        time.Time                      `db:"created_at"`
	UpdatedAt        time.Time                      `db:"updated_at"`
}

func (row *relationshipRow) toModel() models.EntityRelationship {
	return models.EntityRelationship{
		ID:               row.ID,
		TenantID:         row.TenantID,
		SourceEntityID:   row.SourceEntityID,
		TargetEntityID:   row.TargetEntityID,
		RelationshipType: row.RelationshipType,
		Properties:       row.Properties.GetValue(),
		ConfidenceScore:  row.ConfidenceScore,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

// ListByEntity returns every edge where the entity is source or target.
func (r *Repository) ListByEntity(ctx context.Context, tenantID, entityID string) ([]models.EntityRelationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.Equal("source_entity_id", entityID),
			sb.Equal("target_entity_id", entityID),
		),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var rows []relationshipRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list relationships", zap.String("entity_id", entityID), zap.Error(err))
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationships")
	}

	out := make([]models.EntityRelationship, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// Create inserts an edge, deriving a deterministic id when none is set.
func (r *Repository) Create(ctx context.Context, rel *models.EntityRelationship) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Create")
	defer span.End()

	if rel.ID == "" {
		rel.ID = DeterministicID(rel.TenantID, rel.RelationshipType, rel.SourceEntityID, rel.TargetEntityID)
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	rel.UpdatedAt = rel.CreatedAt

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(
		rel.ID, rel.TenantID, rel.SourceEntityID, rel.TargetEntityID,
		rel.RelationshipType,
		database.JSONB[map[string]any]{Data: rel.Properties},
		rel.ConfidenceScore, rel.CreatedAt, rel.UpdatedAt,
	)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to create relationship", zap.String("id", rel.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create relationship")
	}

	return nil
}

// Update rewrites an edge's endpoints and payload.
func (r *Repository) Update(ctx context.Context, rel *models.EntityRelationship) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Update")
	defer span.End()

	rel.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(table)
	sb.Set(
		sb.Assign("source_entity_id", rel.SourceEntityID),
		sb.Assign("target_entity_id", rel.TargetEntityID),
		sb.Assign("relationship_type", rel.RelationshipType),
		sb.Assign("properties", database.JSONB[map[string]any]{Data: rel.Properties}),
		sb.Assign("confidence_score", rel.ConfidenceScore),
		sb.Assign("updated_at", rel.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", rel.ID),
		sb.Equal("tenant_id", rel.TenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update relationship", zap.String("id", rel.ID), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update relationship")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "relationship not found")
	}

	return nil
}

// Delete removes an edge.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(table)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to delete relationship", zap.String("id", id), zap.Error(err))
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete relationship")
	}

	return nil
}
