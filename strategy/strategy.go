// Package strategy implements batch selection: given classifier scores
// for the current candidates, pick which items to send to the oracle
// next.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/seals/core"
)

// ErrInvalidBatchSize is returned when the requested batch size is not
// positive.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// ErrInsufficientCandidates indicates there were fewer candidates
// than requested. The returned selection still contains every
// available candidate; callers may proceed with the short batch and
// mark the round degraded.
type ErrInsufficientCandidates struct {
	Requested int
	Available int
}

func (e *ErrInsufficientCandidates) Error() string {
	return fmt.Sprintf("insufficient candidates: requested %d, available %d", e.Requested, e.Available)
}

// Scored pairs a candidate with the classifier's positive-class
// probability.
type Scored struct {
	ID core.ID
	P  float32
}

// Strategy selects which candidates to label next.
type Strategy interface {
	// Select returns up to n candidate IDs. When fewer than n
	// candidates exist it returns all of them together with
	// *ErrInsufficientCandidates.
	//
	// Callers must pass only unlabeled candidates. Strategies have no
	// labeled-set knowledge and will happily re-select anything they
	// are given; the candidate pool upholds this by filtering labeled
	// IDs on growth and retiring every labeled batch via Remove.
	Select(ctx context.Context, candidates []Scored, n int) ([]core.ID, error)

	// Name identifies the strategy in logs.
	Name() string
}

// Compile-time checks to ensure strategies satisfy the interface.
var _ Strategy = (*MaxEntropy)(nil)
var _ Strategy = (*Random)(nil)

// probEps keeps probabilities away from 0 and 1 so the entropy stays
// finite for overconfident classifiers.
const probEps = 1e-7

// binaryEntropy returns H(p) = -p*log(p) - (1-p)*log(1-p) with p
// clamped to [probEps, 1-probEps].
func binaryEntropy(p float64) float64 {
	if p < probEps {
		p = probEps
	}
	if p > 1-probEps {
		p = 1 - probEps
	}
	return -p*math.Log(p) - (1-p)*math.Log(1-p)
}

// MaxEntropy selects the candidates the classifier is most uncertain
// about: highest binary entropy first, ties broken by ascending ID so
// selection is deterministic.
type MaxEntropy struct{}

// NewMaxEntropy creates a max-entropy selection strategy.
func NewMaxEntropy() *MaxEntropy {
	return &MaxEntropy{}
}

// Name implements Strategy.
func (s *MaxEntropy) Name() string { return "max_entropy" }

// Select implements Strategy.
func (s *MaxEntropy) Select(ctx context.Context, candidates []Scored, n int) ([]core.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidBatchSize
	}

	type entry struct {
		id core.ID
		h  float64
	}

	entries := make([]entry, len(candidates))
	for i, c := range candidates {
		entries[i] = entry{id: c.ID, h: binaryEntropy(float64(c.P))}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].h != entries[j].h {
			return entries[i].h > entries[j].h
		}
		return entries[i].id < entries[j].id
	})

	take := n
	if take > len(entries) {
		take = len(entries)
	}
	ids := make([]core.ID, take)
	for i := 0; i < take; i++ {
		ids[i] = entries[i].id
	}

	if len(candidates) < n {
		return ids, &ErrInsufficientCandidates{Requested: n, Available: len(candidates)}
	}
	return ids, nil
}

// Random selects candidates uniformly without replacement. The RNG is
// injected, so runs with the same seed select identically.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a random selection strategy seeded with seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Name implements Strategy.
func (s *Random) Name() string { return "random" }

// Select implements Strategy.
func (s *Random) Select(ctx context.Context, candidates []Scored, n int) ([]core.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidBatchSize
	}

	take := n
	if take > len(candidates) {
		take = len(candidates)
	}

	perm := s.rng.Perm(len(candidates))
	ids := make([]core.ID, take)
	for i := 0; i < take; i++ {
		ids[i] = candidates[perm[i]].ID
	}

	if len(candidates) < n {
		return ids, &ErrInsufficientCandidates{Requested: n, Available: len(candidates)}
	}
	return ids, nil
}
