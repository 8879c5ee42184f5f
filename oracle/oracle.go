// Package oracle simulates the human annotator: ground-truth class
// membership answered one ID at a time, optionally rate limited to
// model a bounded labeling budget.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/seals/core"
)

// ErrInvalidSeedRequest is returned when a seed request asks for fewer
// than one positive or one negative. The loop cannot start without
// both classes present.
var ErrInvalidSeedRequest = errors.New("seed request needs at least one positive and one negative")

// ErrInsufficientSeed indicates a class too small (or a corpus too
// full) to draw the requested seed set from. Fatal for the repetition.
type ErrInsufficientSeed struct {
	Class   string // empty when sampling outside a class index
	NeedPos int
	HavePos int
	NeedNeg int
	HaveNeg int
}

func (e *ErrInsufficientSeed) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("class %q cannot seed %d positives + %d negatives: have %d positives, %d negatives",
			e.Class, e.NeedPos, e.NeedNeg, e.HavePos, e.HaveNeg)
	}

	return fmt.Sprintf("cannot seed %d positives + %d negatives: have %d positives, %d negatives",
		e.NeedPos, e.NeedNeg, e.HavePos, e.HaveNeg)
}

// Oracle answers label queries for single items.
type Oracle interface {
	Label(ctx context.Context, id core.ID) (core.Label, error)
}

// membershipOracle labels by bitmap membership. The bitmap is shared
// with the owning ClassIndex and must never be mutated.
type membershipOracle struct {
	positives *roaring.Bitmap
}

// Compile-time check to ensure membershipOracle satisfies Oracle.
var _ Oracle = (*membershipOracle)(nil)

func (o *membershipOracle) Label(ctx context.Context, id core.ID) (core.Label, error) {
	if err := ctx.Err(); err != nil {
		return core.Negative, err
	}

	if o.positives.Contains(uint32(id)) {
		return core.Positive, nil
	}

	return core.Negative, nil
}

// rateLimitedOracle throttles labeling through a token bucket.
type rateLimitedOracle struct {
	inner   Oracle
	limiter *rate.Limiter
}

// Compile-time check to ensure rateLimitedOracle satisfies Oracle.
var _ Oracle = (*rateLimitedOracle)(nil)

// RateLimited wraps inner so every Label call first waits on limiter,
// modeling a bounded per-round labeling budget. A nil limiter returns
// inner unchanged.
func RateLimited(inner Oracle, limiter *rate.Limiter) Oracle {
	if limiter == nil {
		return inner
	}

	return &rateLimitedOracle{inner: inner, limiter: limiter}
}

func (o *rateLimitedOracle) Label(ctx context.Context, id core.ID) (core.Label, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return core.Negative, err
	}

	return o.inner.Label(ctx, id)
}

// SampleSeed draws the initial labeled set: numPos uniform draws from
// positives and numNeg uniform draws from the complement over a corpus
// of corpusSize dense IDs. Draws are without replacement and rng must
// not be nil; a fixed seed reproduces the sample.
func SampleSeed(rng *rand.Rand, positives *roaring.Bitmap, corpusSize, numPos, numNeg int) ([]core.ID, []core.ID, error) {
	if numPos < 1 || numNeg < 1 {
		return nil, nil, ErrInvalidSeedRequest
	}

	havePos := int(positives.GetCardinality())
	haveNeg := corpusSize - havePos

	if havePos < numPos || haveNeg < numNeg {
		return nil, nil, &ErrInsufficientSeed{
			NeedPos: numPos,
			HavePos: havePos,
			NeedNeg: numNeg,
			HaveNeg: haveNeg,
		}
	}

	pos := samplePositives(rng, positives, numPos)
	neg := sampleNegatives(rng, positives, corpusSize, numNeg)

	return pos, neg, nil
}

func samplePositives(rng *rand.Rand, positives *roaring.Bitmap, n int) []core.ID {
	members := positives.ToArray()

	out := make([]core.ID, n)
	for i, j := range rng.Perm(len(members))[:n] {
		out[i] = core.ID(members[j])
	}

	return out
}

// sampleNegatives rejection-samples the complement. Positives are rare
// by assumption, so nearly every draw is accepted; the cardinality
// guard in SampleSeed keeps the loop finite in expectation even when
// they are not.
func sampleNegatives(rng *rand.Rand, positives *roaring.Bitmap, corpusSize, n int) []core.ID {
	picked := roaring.New()

	out := make([]core.ID, 0, n)
	for len(out) < n {
		id := uint32(rng.Intn(corpusSize))
		if positives.Contains(id) || picked.Contains(id) {
			continue
		}

		picked.Add(id)
		out = append(out, core.ID(id))
	}

	return out
}
