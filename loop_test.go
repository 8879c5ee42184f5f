package seals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/classifier/logreg"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/embedstore"
	"github.com/hupe1980/seals/eval"
	"github.com/hupe1980/seals/index/flat"
	"github.com/hupe1980/seals/oracle"
	"github.com/hupe1980/seals/resource"
	"github.com/hupe1980/seals/strategy"
	"github.com/hupe1980/seals/testutil"
)

// scenario is the shared fixture: a planted corpus with a rare
// positive cluster, an exact index over it, and a held-out scorer
// built from the corpus ground truth.
type scenario struct {
	store     *embedstore.Memory
	idx       *flat.Flat
	orc       oracle.Oracle
	scorer    *eval.Scorer
	positives *roaring.Bitmap
	seed      *core.LabeledSet
}

// newScenario plants numPos positives in a corpus of n dim-d vectors
// and seeds seedPos positives plus seedNeg negatives.
func newScenario(t *testing.T, n, dim, numPos, seedPos, seedNeg int) *scenario {
	t.Helper()

	rng := testutil.NewRNG(42)

	vectors, positives := rng.PlantedCorpus(n, dim, numPos, 0.05)

	store, err := embedstore.MemoryFromRows(dim, vectors)
	require.NoError(t, err)

	idx, err := flat.New(func(o *flat.Options) { o.Dimension = dim })
	require.NoError(t, err)

	_, err = idx.BatchInsert(vectors)
	require.NoError(t, err)

	ci := oracle.NewClassIndex(map[string][]uint32{"target": positives.ToArray()})

	orc, ok := ci.Oracle("target")
	require.True(t, ok)

	truth := make([]core.Label, n)
	for i := range truth {
		if positives.Contains(uint32(i)) {
			truth[i] = core.Positive
		}
	}

	scorer, err := eval.NewScorer(eval.TestSet{Vectors: vectors, Truth: truth})
	require.NoError(t, err)

	seed := core.NewLabeledSet(dim)

	added := 0
	it := positives.Iterator()
	for it.HasNext() && added < seedPos {
		id := core.ID(it.Next())
		vec, ok := store.GetVector(id)
		require.True(t, ok)
		_, err := seed.Add(id, vec, core.Positive)
		require.NoError(t, err)
		added++
	}

	added = 0
	for i := 0; i < n && added < seedNeg; i++ {
		if positives.Contains(uint32(i)) {
			continue
		}
		vec, ok := store.GetVector(core.ID(i))
		require.True(t, ok)
		_, err := seed.Add(core.ID(i), vec, core.Negative)
		require.NoError(t, err)
		added++
	}

	return &scenario{
		store:     store,
		idx:       idx,
		orc:       orc,
		scorer:    scorer,
		positives: positives,
		seed:      seed,
	}
}

func (s *scenario) loop(t *testing.T, optFns ...Option) *Loop {
	t.Helper()

	l, err := NewLoop(s.seed, s.idx, s.store, s.orc,
		logreg.Factory(), strategy.NewMaxEntropy(), s.scorer, optFns...)
	require.NoError(t, err)

	return l
}

func TestNewLoopValidation(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	t.Run("nil dependencies", func(t *testing.T) {
		_, err := NewLoop(nil, s.idx, s.store, s.orc, logreg.Factory(), strategy.NewMaxEntropy(), s.scorer)
		assert.ErrorIs(t, err, ErrNilDependency)

		_, err = NewLoop(s.seed, nil, s.store, s.orc, logreg.Factory(), strategy.NewMaxEntropy(), s.scorer)
		assert.ErrorIs(t, err, ErrNilDependency)

		_, err = NewLoop(s.seed, s.idx, s.store, s.orc, nil, strategy.NewMaxEntropy(), s.scorer)
		assert.ErrorIs(t, err, ErrNilDependency)
	})

	t.Run("round budget", func(t *testing.T) {
		_, err := NewLoop(s.seed, s.idx, s.store, s.orc,
			logreg.Factory(), strategy.NewMaxEntropy(), s.scorer, WithRoundBudget(0))
		assert.ErrorIs(t, err, ErrInvalidRoundBudget)
	})

	t.Run("batch size", func(t *testing.T) {
		_, err := NewLoop(s.seed, s.idx, s.store, s.orc,
			logreg.Factory(), strategy.NewMaxEntropy(), s.scorer, WithBatchSize(-1))
		assert.ErrorIs(t, err, strategy.ErrInvalidBatchSize)
	})

	t.Run("single-class seed", func(t *testing.T) {
		seed := core.NewLabeledSet(4)
		vec, _ := s.store.GetVector(0)
		_, err := seed.Add(0, vec, core.Negative)
		require.NoError(t, err)

		_, err = NewLoop(seed, s.idx, s.store, s.orc,
			logreg.Factory(), strategy.NewMaxEntropy(), s.scorer)

		var insufficient *oracle.ErrInsufficientSeed
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 0, insufficient.HavePos)
	})
}

func TestLoopEndToEnd(t *testing.T) {
	s := newScenario(t, 1000, 4, 10, 2, 3)

	l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(3))

	res, err := l.Run(context.Background())
	require.NoError(t, err)

	// 5 seed + 3 rounds x 4 selected.
	assert.Equal(t, 17, res.Labeled.Len())
	assert.Equal(t, 3, res.Rounds)
	assert.Len(t, res.Scores, 3)
	assert.Equal(t, StateDone, l.State())

	// Positives found never decrease across rounds.
	for i := 1; i < len(res.Scores); i++ {
		assert.GreaterOrEqual(t, res.Scores[i].Positives, res.Scores[i-1].Positives)
	}

	for _, m := range res.Scores {
		assert.False(t, m.Degraded)
		assert.GreaterOrEqual(t, m.Precision, 0.0)
		assert.LessOrEqual(t, m.Precision, 1.0)
		assert.GreaterOrEqual(t, m.AveragePrecision, 0.0)
		assert.LessOrEqual(t, m.AveragePrecision, 1.0)
	}

	// No duplicate labels, ever.
	rows := res.Labeled.Rows()
	seen := roaring.New()
	for _, id := range rows {
		assert.False(t, seen.Contains(uint32(id)), "id %d labeled twice", id)
		seen.Add(uint32(id))
	}

	// The seed is untouched: the loop worked on its own copy.
	assert.Equal(t, 5, s.seed.Len())
}

func TestLoopDeterminism(t *testing.T) {
	s := newScenario(t, 1000, 4, 10, 2, 3)

	run := func() []core.ID {
		l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(3))
		res, err := l.Run(context.Background())
		require.NoError(t, err)
		return res.Labeled.Rows()
	}

	assert.Equal(t, run(), run(), "same seed, index, and strategy must select identically")
}

func TestLoopShortBatch(t *testing.T) {
	// A corpus of 12 with k=2 exhausts the neighbor graph quickly:
	// the pool cannot supply batches of 5 for long.
	s := newScenario(t, 12, 4, 4, 2, 3)

	l := s.loop(t, WithK(2), WithBatchSize(5), WithRoundBudget(3))

	res, err := l.Run(context.Background())
	require.NoError(t, err)

	// Short batches never cut the round count.
	assert.Equal(t, 3, res.Rounds)
	assert.Len(t, res.Scores, 3)

	// Once a batch came up short, a later score carries the marker.
	degraded := false
	for _, m := range res.Scores {
		degraded = degraded || m.Degraded
	}
	assert.True(t, degraded, "expected a degraded-round marker after pool exhaustion")

	assert.Less(t, res.Labeled.Len(), 5+3*5, "short batches label fewer items than the full budget")
}

func TestLoopResourceController(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	rc := resource.NewController(resource.Config{
		MaxConcurrentTraining: 1,
		LabelsPerSec:          10000,
	})
	l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(3),
		WithResourceController(rc))

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rounds)

	// Every fit must give its training slot back.
	assert.True(t, rc.TryAcquireTraining())
}

// failingClassifier always fails to fit.
type failingClassifier struct{}

func (failingClassifier) Fit(context.Context, [][]float32, []core.Label) error {
	return &classifier.ErrTraining{Reason: "singular input"}
}

func (failingClassifier) PredictProba(context.Context, [][]float32) ([]float32, error) {
	return nil, classifier.ErrNotFitted
}

func TestLoopTrainingFailureAborts(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	l, err := NewLoop(s.seed, s.idx, s.store, s.orc,
		func() classifier.Classifier { return failingClassifier{} },
		strategy.NewMaxEntropy(), s.scorer,
		WithK(5), WithBatchSize(4), WithRoundBudget(3))
	require.NoError(t, err)

	_, err = l.Run(context.Background())

	var trainingErr *classifier.ErrTraining
	assert.ErrorAs(t, err, &trainingErr)
}

func TestLoopRunsOnce(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(1))

	_, err := l.Run(context.Background())
	require.NoError(t, err)

	_, err = l.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestLoopContextCancellation(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopMetrics(t *testing.T) {
	s := newScenario(t, 1000, 4, 10, 2, 3)

	mc := &BasicMetricsCollector{}

	l := s.loop(t, WithK(5), WithBatchSize(4), WithRoundBudget(3), WithMetricsCollector(mc))

	_, err := l.Run(context.Background())
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(3), stats.RoundCount)
	assert.Equal(t, int64(0), stats.RoundErrors)
	assert.Equal(t, int64(3), stats.TrainingCount)
	assert.Equal(t, int64(3), stats.SelectionCount)
	assert.Equal(t, int64(12), stats.SelectionItems)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "seeded", StateSeeded.String())
	assert.Equal(t, "grow_pool", StateGrowPool.String())
	assert.Equal(t, "train", StateTrain.String())
	assert.Equal(t, "score", StateScore.String())
	assert.Equal(t, "select", StateSelect.String())
	assert.Equal(t, "label", StateLabel.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestLoopName(t *testing.T) {
	s := newScenario(t, 100, 4, 5, 2, 3)

	l := s.loop(t)
	assert.Equal(t, "seals-max_entropy", l.Name())
}

