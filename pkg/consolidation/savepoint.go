package consolidation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Execer is the SQL surface the savepoint merger needs. The database wrapper
// satisfies it and routes statements into the context-bound transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SavepointMerger scopes every merge attempt to a SQL savepoint inside the
// caller's transaction. A run processes many pairs in one transaction; when
// one merge fails partway through its writes, rolling back to the savepoint
// discards only that attempt, so the run can demote the pair to review and
// still commit everything else cleanly.
type SavepointMerger struct {
	db    Execer
	inner Merger
}

// NewSavepointMerger wraps a merger with per-attempt savepoint scoping.
func NewSavepointMerger(db Execer, inner Merger) *SavepointMerger {
	return &SavepointMerger{
		db:    db,
		inner: inner,
	}
}

// MergeEntities runs one merge attempt inside a savepoint. On failure the
// savepoint is rolled back before the error is returned, so none of the
// attempt's writes survive into the surrounding transaction.
func (m *SavepointMerger) MergeEntities(ctx context.Context, req merge.MergeRequest) (*merge.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "consolidation.SavepointMerger.MergeEntities")
	defer span.End()

	if _, err := m.db.ExecContext(ctx, "SAVEPOINT merge_attempt"); err != nil {
		return nil, fmt.Errorf("failed to create merge savepoint: %w", err)
	}

	result, err := m.inner.MergeEntities(ctx, req)
	if err != nil {
		if _, rbErr := m.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT merge_attempt"); rbErr != nil {
			return nil, fmt.Errorf("failed to roll back merge attempt: %v: %w", rbErr, err)
		}
		return nil, err
	}

	if _, err := m.db.ExecContext(ctx, "RELEASE SAVEPOINT merge_attempt"); err != nil {
		return nil, fmt.Errorf("failed to release merge savepoint: %w", err)
	}

	return result, nil
}
