package merge

import (
	"fmt"
	"strings"
)

// ValidationError reports precondition failures. Nothing has been mutated when
// one of these is returned.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("merge validation failed: %s", strings.Join(e.Issues, "; "))
}

// MergeError wraps a failure during the mutation phase of a merge.
type MergeError struct {
	CanonicalEntityID string
	Err               error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge into entity %s failed: %v", e.CanonicalEntityID, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// UndoError reports a failed or invalid undo.
type UndoError struct {
	MergeEventID string
	Reason       string
	Err          error
}

func (e *UndoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("undo of merge event %s failed: %s: %v", e.MergeEventID, e.Reason, e.Err)
	}
	return fmt.Sprintf("undo of merge event %s failed: %s", e.MergeEventID, e.Reason)
}

func (e *UndoError) Unwrap() error {
	return e.Err
}

// SplitError reports a failed or invalid split.
type SplitError struct {
	EntityID string
	Reason   string
	Err      error
}

func (e *SplitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("split of entity %s failed: %s: %v", e.EntityID, e.Reason, e.Err)
	}
	return fmt.Sprintf("split of entity %s failed: %s", e.EntityID, e.Reason)
}

func (e *SplitError) Unwrap() error {
	return e.Err
}
