package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/seals/core"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// SearchResult represents a single nearest-neighbor hit.
type SearchResult struct {
	// ID is the identifier of the matched item.
	ID core.ID

	// Distance is the distance between the query vector and the matched vector.
	Distance float32
}

// SearchOptions contains per-query configuration.
type SearchOptions struct {
	// EFSearch is the exploration factor for graph-based search.
	// Ignored by exact indexes. Zero means the index default.
	EFSearch int

	// Filter excludes items from the result set. Filtered items are
	// still visited during traversal so the graph stays navigable.
	Filter func(id core.ID) bool
}

// WithEFSearch sets the exploration factor for a single query.
func WithEFSearch(ef int) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.EFSearch = ef
	}
}

// WithFilter sets the result filter for a single query.
func WithFilter(filter func(id core.ID) bool) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.Filter = filter
	}
}

// Index is a nearest-neighbor index over a fixed-dimension corpus.
//
// Implementations are append-only: IDs are dense and assigned in
// insertion order, and once building has finished KNNSearch is safe
// for concurrent use.
type Index interface {
	// Insert adds a vector and returns its assigned ID.
	Insert(v []float32) (core.ID, error)

	// BatchInsert adds vectors in order and returns their IDs.
	BatchInsert(vectors [][]float32) ([]core.ID, error)

	// KNNSearch returns the k nearest neighbors of q, sorted by
	// ascending distance with ties broken by ascending ID. Fewer than
	// k results are returned when the (filtered) corpus is smaller.
	KNNSearch(ctx context.Context, q []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error)

	// Dimension returns the vector dimension enforced by the index.
	Dimension() int

	// Len returns the number of indexed vectors.
	Len() int
}
