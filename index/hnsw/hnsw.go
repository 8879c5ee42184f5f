// Package hnsw provides an approximate nearest-neighbor index based on
// the Hierarchical Navigable Small World graph.
//
// Vectors are organized into a multi-layer graph. Higher layers contain
// exponentially fewer nodes and act as express lanes for traversal;
// layer 0 contains all nodes for precise local search. Level assignment
// is driven by a seeded RNG, so a fixed seed and insertion order yield
// an identical graph.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/distance"
	"github.com/hupe1980/seals/index"
	"github.com/hupe1980/seals/internal/queue"
	"github.com/hupe1980/seals/internal/visited"
)

// Compile-time check to ensure HNSW satisfies the index interface.
var _ index.Index = (*HNSW)(nil)

// Options contains configuration options for the HNSW index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// M is the maximum number of connections per node per layer
	// (except layer 0, which allows 2*M). Higher values improve recall
	// but increase memory usage and insertion time.
	M int

	// EFConstruction is the size of the dynamic candidate list during
	// index building. Higher values produce a higher-quality graph at
	// the cost of slower insertion.
	EFConstruction int

	// EFSearch is the default size of the dynamic candidate list
	// during search. Can be overridden per query via
	// index.WithEFSearch.
	EFSearch int

	// Metric selects the distance function.
	Metric distance.Metric

	// RandomSeed drives level assignment. Runs with the same seed and
	// insertion order build identical graphs.
	RandomSeed int64
}

// DefaultOptions contains the default configuration options for the
// HNSW index.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       50,
	Metric:         distance.MetricL2,
	RandomSeed:     4711,
}

// node holds the graph metadata for one vector. friends[l] lists the
// neighbor IDs at layer l, for l <= level.
type node struct {
	level   int
	friends [][]core.ID
}

// HNSW is a Hierarchical Navigable Small World graph index.
//
// Inserts are serialized; searches take a read lock and may run
// concurrently with each other. The learning loop builds the index
// once up front, so searches dominate.
type HNSW struct {
	mu       sync.RWMutex
	opts     Options
	distFunc distance.Func
	data     []float32 // contiguous: data[id*dim : (id+1)*dim]
	nodes    []node
	entryID  int32 // -1 while empty
	maxLevel int
	levelMul float64
	rng      *rand.Rand
}

// New creates a new HNSW index. Dimension is required.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: opts.Dimension}
	}
	if opts.M < 2 {
		opts.M = DefaultOptions.M
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultOptions.EFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultOptions.EFSearch
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &HNSW{
		opts:     opts,
		distFunc: distFunc,
		entryID:  -1,
		levelMul: 1.0 / math.Log(float64(opts.M)),
		rng:      rand.New(rand.NewSource(opts.RandomSeed)),
	}, nil
}

// maxConns returns the connection limit at the given layer. Layer 0
// allows 2*M; higher layers allow M.
func (h *HNSW) maxConns(layer int) int {
	if layer == 0 {
		return h.opts.M * 2
	}
	return h.opts.M
}

func (h *HNSW) vecAt(id core.ID) []float32 {
	idx := int(id) * h.opts.Dimension
	return h.data[idx : idx+h.opts.Dimension]
}

// Insert adds a vector and returns its assigned ID. IDs are dense and
// assigned in insertion order.
func (h *HNSW) Insert(v []float32) (core.ID, error) {
	if len(v) != h.opts.Dimension {
		return 0, &core.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := core.ID(len(h.nodes))
	level := h.randomLevel()

	h.data = append(h.data, v...)
	h.nodes = append(h.nodes, node{
		level:   level,
		friends: make([][]core.ID, level+1),
	})

	// First node becomes the entry point.
	if h.entryID < 0 {
		h.entryID = int32(id)
		h.maxLevel = level
		return id, nil
	}

	// Phase 1: greedy descent from the top layer down to level+1,
	// tracking only the single closest node per layer.
	cur := core.ID(h.entryID)
	curDist := h.distFunc(v, h.vecAt(cur))

	for lev := h.maxLevel; lev > level; lev-- {
		cur, curDist = h.greedyStep(v, cur, curDist, lev)
	}

	// Phase 2: beam search per layer from min(level, maxLevel) down to
	// 0; select the closest neighbors and connect bidirectionally.
	topInsert := level
	if topInsert > h.maxLevel {
		topInsert = h.maxLevel
	}

	eps := []queue.Item{{Node: cur, Distance: curDist}}
	for lev := topInsert; lev >= 0; lev-- {
		candidates := h.searchLayer(v, eps, h.opts.EFConstruction, lev, nil)

		maxC := h.maxConns(lev)
		neighbors := h.selectNeighbors(candidates, maxC)

		links := make([]core.ID, len(neighbors))
		for i, n := range neighbors {
			links[i] = n.Node
		}
		h.nodes[id].friends[lev] = links

		for _, n := range neighbors {
			nb := &h.nodes[n.Node]
			nb.friends[lev] = append(nb.friends[lev], id)
			if len(nb.friends[lev]) > maxC {
				nb.friends[lev] = h.trimNeighbors(n.Node, nb.friends[lev], maxC)
			}
		}

		eps = candidates
	}

	if level > h.maxLevel {
		h.entryID = int32(id)
		h.maxLevel = level
	}

	return id, nil
}

// BatchInsert adds vectors in order and returns their IDs.
func (h *HNSW) BatchInsert(vectors [][]float32) ([]core.ID, error) {
	ids := make([]core.ID, len(vectors))
	for i, v := range vectors {
		id, err := h.Insert(v)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// KNNSearch performs an approximate K-nearest-neighbor search.
func (h *HNSW) KNNSearch(ctx context.Context, q []float32, k int, optFns ...func(o *index.SearchOptions)) ([]index.SearchResult, error) {
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

	ef := h.opts.EFSearch
	if opts.EFSearch > 0 {
		ef = opts.EFSearch
	}
	if ef < k {
		ef = k
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return nil, nil
	}
	if len(q) != h.opts.Dimension {
		return nil, &core.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(q)}
	}

	// Phase 1: greedy descent to layer 1.
	cur := core.ID(h.entryID)
	curDist := h.distFunc(q, h.vecAt(cur))
	for lev := h.maxLevel; lev > 0; lev-- {
		cur, curDist = h.greedyStep(q, cur, curDist, lev)
	}

	// Phase 2: beam search at layer 0. Filtered nodes are traversed
	// but excluded from the result set.
	eps := []queue.Item{{Node: cur, Distance: curDist}}
	candidates := h.searchLayer(q, eps, ef, 0, opts.Filter)

	best := selectClosest(candidates, k)
	results := make([]index.SearchResult, len(best))
	for i, item := range best {
		results[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	index.SortResults(results)

	return results, nil
}

// greedyStep walks one layer greedily until no neighbor improves the
// current distance. Caller must hold at least a read lock.
func (h *HNSW) greedyStep(q []float32, cur core.ID, curDist float32, lev int) (core.ID, float32) {
	for changed := true; changed; {
		changed = false
		nd := &h.nodes[cur]
		if lev >= len(nd.friends) {
			break
		}
		for _, fid := range nd.friends[lev] {
			d := h.distFunc(q, h.vecAt(fid))
			if d < curDist || (d == curDist && fid < cur) {
				cur = fid
				curDist = d
				changed = true
			}
		}
	}
	return cur, curDist
}

// searchLayer performs a beam search on a single layer. It returns up
// to ef items, closest first is not guaranteed (heap order). When
// filter is non-nil, filtered nodes still guide traversal but never
// enter the result set. Caller must hold at least a read lock.
func (h *HNSW) searchLayer(q []float32, entryPoints []queue.Item, ef, layer int, filter func(core.ID) bool) []queue.Item {
	vis := visited.New(len(h.nodes))

	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef)

	for _, ep := range entryPoints {
		if vis.Visited(ep.Node) {
			continue
		}
		vis.Visit(ep.Node)
		candidates.Push(ep)
		if filter == nil || filter(ep.Node) {
			results.Push(ep)
		}
	}

	for candidates.Len() > 0 {
		closest, _ := candidates.Pop()

		if worst, ok := results.Top(); ok && results.Len() >= ef && closest.Distance > worst.Distance {
			break
		}

		nd := &h.nodes[closest.Node]
		if layer >= len(nd.friends) {
			continue
		}

		for _, fid := range nd.friends[layer] {
			if vis.Visited(fid) {
				continue
			}
			vis.Visit(fid)

			d := h.distFunc(q, h.vecAt(fid))
			worst, hasWorst := results.Top()
			if results.Len() < ef || !hasWorst || d < worst.Distance {
				item := queue.Item{Node: fid, Distance: d}
				candidates.Push(item)
				if filter == nil || filter(fid) {
					results.Push(item)
					if results.Len() > ef {
						results.Pop()
					}
				}
			}
		}
	}

	out := make([]queue.Item, 0, results.Len())
	for results.Len() > 0 {
		item, _ := results.Pop()
		out = append(out, item)
	}
	return out
}

// trimNeighbors re-selects maxC neighbors of id after a new link pushed
// its list over the limit. Caller must hold the write lock.
func (h *HNSW) trimNeighbors(id core.ID, friends []core.ID, maxC int) []core.ID {
	items := make([]queue.Item, len(friends))
	base := h.vecAt(id)
	for i, fid := range friends {
		items[i] = queue.Item{Node: fid, Distance: h.distFunc(base, h.vecAt(fid))}
	}

	best := h.selectNeighbors(items, maxC)
	out := make([]core.ID, len(best))
	for i, item := range best {
		out[i] = item.Node
	}
	return out
}

// selectNeighbors picks up to maxC links from candidates, nearest
// first. A candidate is kept only when it is closer to the base node
// than to every neighbor kept before it; candidates dominated by an
// existing link are skipped. On clustered data this spreads links
// across directions instead of saturating them inside one tight
// cluster, which keeps distinct clusters mutually reachable. Remaining
// slots are filled with the nearest skipped candidates. Caller must
// hold the write lock.
func (h *HNSW) selectNeighbors(candidates []queue.Item, maxC int) []queue.Item {
	sorted := selectClosest(candidates, len(candidates))
	if len(sorted) <= maxC {
		return sorted
	}

	kept := make([]queue.Item, 0, maxC)
	skipped := make([]queue.Item, 0, len(sorted)-maxC)

	for _, cand := range sorted {
		if len(kept) == maxC {
			break
		}

		good := true
		cv := h.vecAt(cand.Node)
		for _, sel := range kept {
			if h.distFunc(cv, h.vecAt(sel.Node)) < cand.Distance {
				good = false
				break
			}
		}

		if good {
			kept = append(kept, cand)
		} else {
			skipped = append(skipped, cand)
		}
	}

	// Skipped candidates re-enter in distance order when the pruning
	// was too aggressive to fill maxC slots.
	for _, cand := range skipped {
		if len(kept) == maxC {
			break
		}
		kept = append(kept, cand)
	}

	return kept
}

// selectClosest returns up to maxN items ordered by (distance, ID).
func selectClosest(items []queue.Item, maxN int) []queue.Item {
	pq := queue.NewMin(len(items))
	for _, item := range items {
		pq.Push(item)
	}

	n := maxN
	if n > pq.Len() {
		n = pq.Len()
	}
	out := make([]queue.Item, 0, n)
	for len(out) < n {
		item, _ := pq.Pop()
		out = append(out, item)
	}
	return out
}

// randomLevel draws a layer for a new node from an exponential
// distribution: most nodes land on layer 0, higher layers are
// exponentially rarer. Caller must hold the write lock.
func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	level := int(-math.Log(r) * h.levelMul)
	if level > 31 {
		level = 31 // cap against pathological draws
	}
	return level
}

// Dimension returns the vector dimension enforced by the index.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}
