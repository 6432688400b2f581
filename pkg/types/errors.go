package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	ErrInvalidRowID   = errors.New("invalid search row ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidRowKind = errors.New("invalid search row kind")
)

// ErrSyncInProgress is returned when a reconciliation pass is already
// running for the requested project.
var ErrSyncInProgress = errors.New("sync already in progress for project")

// ConflictError reports a slug or path uniqueness violation that persisted
// through the bounded retry budget. It is surfaced to the caller and not
// retried further.
type ConflictError struct {
	Field string // "slug" or "file_path"
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %q after retries", e.Field, e.Value)
}

// QueryError reports malformed query syntax together with a suggested
// corrected form, instead of leaking a raw FTS parser failure.
type QueryError struct {
	Query      string
	Suggestion string
	Err        error
}

func (e *QueryError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("malformed query %q: %v (try %q)", e.Query, e.Err, e.Suggestion)
	}
	return fmt.Sprintf("malformed query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// DimensionError reports a mismatch between the configured embedding
// dimension and the dimension already present in the index. Fatal at
// startup; requires an explicit rebuild.
type DimensionError struct {
	Configured int
	Stored     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: configured %d, index holds %d (rebuild required)",
		e.Configured, e.Stored)
}
