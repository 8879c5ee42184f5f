// Package flat provides an exact brute-force nearest-neighbor index.
// Searches scan every vector, so results are exact and serve as the
// reference semantics for the approximate indexes.
package flat

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/distance"
	"github.com/hupe1980/seals/index"
	"github.com/hupe1980/seals/internal/queue"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// Metric selects the distance function.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the
// flat index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricL2,
}

// flatState is the snapshot readers operate on. Vectors are stored in
// one contiguous slab: data[id*dim : (id+1)*dim].
type flatState struct {
	data  []float32
	count int
}

// Flat is an exact nearest-neighbor index over a contiguous vector
// slab. Writes are serialized; searches read an atomic state snapshot
// and never block inserts.
type Flat struct {
	state    atomic.Pointer[flatState]
	writeMu  sync.Mutex // serializes writes only
	dim      int
	distFunc distance.Func
	opts     Options
}

// New creates a new flat index. Dimension is required.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: opts.Dimension}
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	f := &Flat{
		dim:      opts.Dimension,
		distFunc: distFunc,
		opts:     opts,
	}
	f.state.Store(&flatState{})

	return f, nil
}

// Insert adds a vector and returns its assigned ID. IDs are dense and
// assigned in insertion order.
func (f *Flat) Insert(v []float32) (core.ID, error) {
	if len(v) != f.dim {
		return 0, &core.ErrDimensionMismatch{Expected: f.dim, Actual: len(v)}
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()
	id := core.ID(old.count)

	// Readers hold the old snapshot and never look past old.count, so
	// appending in place is safe even when the slab does not reallocate.
	data := append(old.data, v...)
	f.state.Store(&flatState{data: data, count: old.count + 1})

	return id, nil
}

// BatchInsert adds vectors in order and returns their IDs.
func (f *Flat) BatchInsert(vectors [][]float32) ([]core.ID, error) {
	for _, v := range vectors {
		if len(v) != f.dim {
			return nil, &core.ErrDimensionMismatch{Expected: f.dim, Actual: len(v)}
		}
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()
	data := old.data
	ids := make([]core.ID, len(vectors))
	for i, v := range vectors {
		ids[i] = core.ID(old.count + i)
		data = append(data, v...)
	}
	f.state.Store(&flatState{data: data, count: old.count + len(vectors)})

	return ids, nil
}

// parallelThreshold is the corpus size above which KNNSearch fans the
// scan out across CPUs. Variable so tests can exercise the parallel
// path on small corpora.
var parallelThreshold = 4096

// KNNSearch performs an exact K-nearest-neighbor scan.
func (f *Flat) KNNSearch(ctx context.Context, q []float32, k int, optFns ...func(o *index.SearchOptions)) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	var opts index.SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	st := f.state.Load()
	if st.count == 0 {
		return nil, nil
	}
	if len(q) != f.dim {
		return nil, &core.ErrDimensionMismatch{Expected: f.dim, Actual: len(q)}
	}

	actualK := k
	if actualK > st.count {
		actualK = st.count
	}

	if st.count >= parallelThreshold {
		return f.parallelScan(st, q, actualK, opts.Filter), nil
	}

	return f.scanRange(st, q, 0, st.count, actualK, opts.Filter), nil
}

// scanRange scans ids [lo, hi) and returns up to k results in
// ascending (distance, ID) order.
func (f *Flat) scanRange(st *flatState, q []float32, lo, hi, k int, filter func(core.ID) bool) []index.SearchResult {
	top := queue.NewMax(k)

	for i := lo; i < hi; i++ {
		id := core.ID(i)
		if filter != nil && !filter(id) {
			continue
		}

		vec := st.data[i*f.dim : (i+1)*f.dim]
		item := queue.Item{Node: id, Distance: f.distFunc(q, vec)}

		if top.Len() < k {
			top.Push(item)
			continue
		}

		// Replace the current worst when the new item ranks strictly
		// better under (distance, ID) order.
		if worst, ok := top.Top(); ok && top.Before(worst, item) {
			top.Pop()
			top.Push(item)
		}
	}

	// Popping the max-heap yields descending order; fill backwards for
	// ascending (distance, ID).
	results := make([]index.SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := top.Pop()
		results[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}

	return results
}

// parallelScan splits the slab into one chunk per CPU, scans the
// chunks concurrently, and folds the per-chunk top-k lists with
// index.MergeSearchResults. Chunk boundaries do not affect the result:
// the merge is total under (distance, ID) order.
func (f *Flat) parallelScan(st *flatState, q []float32, k int, filter func(core.ID) bool) []index.SearchResult {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		return f.scanRange(st, q, 0, st.count, k, filter)
	}

	chunk := (st.count + workers - 1) / workers
	parts := make([][]index.SearchResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, st.count)
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			parts[w] = f.scanRange(st, q, lo, hi, k, filter)
		}(w, lo, hi)
	}
	wg.Wait()

	merged := parts[0]
	for _, part := range parts[1:] {
		merged = index.MergeSearchResults(merged, part, k)
	}

	return merged
}

// VectorByID returns the stored vector for id. The returned slice is a
// view into the slab; callers must not mutate it.
func (f *Flat) VectorByID(id core.ID) ([]float32, bool) {
	st := f.state.Load()
	if int(id) >= st.count {
		return nil, false
	}
	idx := int(id) * f.dim
	return st.data[idx : idx+f.dim], true
}

// Dimension returns the vector dimension enforced by the index.
func (f *Flat) Dimension() int { return f.dim }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return f.state.Load().count }
