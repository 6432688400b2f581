package types

import "time"

// RowKind discriminates the denormalized search projection rows.
type RowKind string

const (
	RowEntity RowKind = "entity"
	RowFact   RowKind = "fact"
	RowLink   RowKind = "link"
)

// SearchResult is a single ranked hit returned by the query engine.
type SearchResult struct {
	RowID   int64
	Kind    RowKind
	Rank    int // 1-based position in the fused result set
	Score   float64
	Title   string
	Excerpt string

	// Source reference back through the projection.
	EntityID   int64
	EntitySlug string
	FilePath   string
	EntityKind string
	CreatedAt  time.Time
}

// Validate checks structural result invariants.
func (sr *SearchResult) Validate() error {
	if sr.RowID == 0 {
		return ErrInvalidRowID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	switch sr.Kind {
	case RowEntity, RowFact, RowLink:
	default:
		return ErrInvalidRowKind
	}
	return nil
}
