// Package pool maintains the candidate pool that selection draws from:
// the union of k-NN neighborhoods of every positive example labeled so
// far. Restricting selection to this pool is what keeps each round
// sublinear in the corpus size.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/index"
)

// ErrMissingVector is returned when a labeled positive has no
// embedding in the vector source.
var ErrMissingVector = errors.New("vector missing from source")

// ErrQuery indicates a failed neighborhood query. Expansion cannot
// continue without the neighborhood, so callers treat this as fatal
// for the run.
//
// The underlying error can be accessed via errors.Unwrap.
type ErrQuery struct {
	Positive core.ID // the positive whose expansion failed
	K        int
	cause    error
}

func (e *ErrQuery) Error() string {
	return fmt.Sprintf("neighborhood query for positive %d (k=%d) failed: %v", e.Positive, e.K, e.cause)
}

func (e *ErrQuery) Unwrap() error { return e.cause }

// VectorSource provides read access to corpus embeddings.
type VectorSource interface {
	GetVector(id core.ID) ([]float32, bool)
}

// Options contains configuration options for the candidate pool.
type Options struct {
	// EFSearch overrides the index's default exploration factor for
	// expansion queries. Zero keeps the index default.
	EFSearch int
}

// DefaultOptions contains the default configuration options for the
// candidate pool.
var DefaultOptions = Options{}

// Candidate tracks the candidate pool of one repetition.
//
// Two bitmaps carry the state: members is the current pool, expanded
// records positives whose neighborhoods were already fetched so
// re-growing with known positives is a no-op. Not safe for concurrent
// use; each repetition owns its pool.
type Candidate struct {
	idx      index.Index
	k        int
	opts     Options
	members  *roaring.Bitmap
	expanded *roaring.Bitmap
}

// New creates an empty candidate pool over idx, fetching k neighbors
// per expanded positive.
func New(idx index.Index, k int, optFns ...func(o *Options)) (*Candidate, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	return &Candidate{
		idx:      idx,
		k:        k,
		opts:     opts,
		members:  roaring.New(),
		expanded: roaring.New(),
	}, nil
}

// Grow expands the pool with the neighborhoods of all positives not
// expanded yet. IDs in exclude (the labeled set) and IDs already in
// the pool never count against a positive's k neighbors, so every
// expansion contributes up to k new members even when neighborhoods
// overlap. Positives are processed in ascending ID order, so growth
// is deterministic. Returns the number of new pool members.
//
// Neighborhoods already merged before a failure are kept: pool
// membership only ever grows.
func (c *Candidate) Grow(ctx context.Context, positives *roaring.Bitmap, source VectorSource, exclude *roaring.Bitmap) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var added int

	it := positives.Iterator()
	for it.HasNext() {
		pid := core.ID(it.Next())
		if c.expanded.Contains(uint32(pid)) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return added, err
		}

		vec, ok := source.GetVector(pid)
		if !ok {
			return added, &ErrQuery{Positive: pid, K: c.k, cause: ErrMissingVector}
		}

		optFns := []func(o *index.SearchOptions){
			index.WithFilter(func(id core.ID) bool {
				if exclude != nil && exclude.Contains(uint32(id)) {
					return false
				}
				return !c.members.Contains(uint32(id))
			}),
		}
		if c.opts.EFSearch > 0 {
			optFns = append(optFns, index.WithEFSearch(c.opts.EFSearch))
		}

		results, err := c.idx.KNNSearch(ctx, vec, c.k, optFns...)
		if err != nil {
			return added, &ErrQuery{Positive: pid, K: c.k, cause: err}
		}

		c.expanded.Add(uint32(pid))
		for _, r := range results {
			if !c.members.Contains(uint32(r.ID)) {
				c.members.Add(uint32(r.ID))
				added++
			}
		}
	}

	return added, nil
}

// Remove drops ids from the pool. Called after labeling so selected
// items never come up again.
func (c *Candidate) Remove(ids ...core.ID) {
	for _, id := range ids {
		c.members.Remove(uint32(id))
	}
}

// Contains reports whether id is currently in the pool.
func (c *Candidate) Contains(id core.ID) bool {
	return c.members.Contains(uint32(id))
}

// Members returns a copy of the current pool membership.
func (c *Candidate) Members() *roaring.Bitmap {
	return c.members.Clone()
}

// IDs returns the current pool members in ascending order.
func (c *Candidate) IDs() []core.ID {
	arr := c.members.ToArray()
	ids := make([]core.ID, len(arr))
	for i, v := range arr {
		ids[i] = core.ID(v)
	}
	return ids
}

// Expanded returns a copy of the set of positives whose neighborhoods
// have been fetched.
func (c *Candidate) Expanded() *roaring.Bitmap {
	return c.expanded.Clone()
}

// Len returns the current pool size.
func (c *Candidate) Len() int {
	return int(c.members.GetCardinality())
}

// K returns the neighborhood size used for expansion.
func (c *Candidate) K() int { return c.k }
