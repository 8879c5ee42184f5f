package seals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/eval"
	"github.com/hupe1980/seals/oracle"
	"github.com/hupe1980/seals/pool"
	"github.com/hupe1980/seals/strategy"
)

// Corpus is read access to the full embedding corpus: per-ID lookup
// plus its extent. The embedstore implementations satisfy it.
type Corpus interface {
	pool.VectorSource

	// Dimension returns the vector dimension.
	Dimension() int

	// Len returns the corpus size; IDs are dense in [0, Len).
	Len() int
}

// All is the whole-corpus baseline: the same round cycle as the SEALS
// loop, but every unlabeled item in the corpus is a candidate each
// round. Comparing it against the loop isolates the effect of pool
// restriction, at O(corpus) scoring cost per round.
//
// NewMaxEntAll and NewRandomAll fix the strategy to the two reference
// baselines.
type All struct {
	labeled *core.LabeledSet
	corpus  Corpus
	orc     oracle.Oracle
	factory classifier.Factory
	strat   strategy.Strategy
	scorer  *eval.Scorer
	opts    options
	ran     bool
}

// NewAll creates a whole-corpus baseline starting from seed. Like the
// loop it works on its own copy of the seed.
func NewAll(seed *core.LabeledSet, corpus Corpus, orc oracle.Oracle,
	factory classifier.Factory, strat strategy.Strategy, scorer *eval.Scorer, optFns ...Option) (*All, error) {
	switch {
	case seed == nil:
		return nil, fmt.Errorf("%w: seed", ErrNilDependency)
	case corpus == nil:
		return nil, fmt.Errorf("%w: corpus", ErrNilDependency)
	case orc == nil:
		return nil, fmt.Errorf("%w: oracle", ErrNilDependency)
	case factory == nil:
		return nil, fmt.Errorf("%w: classifier factory", ErrNilDependency)
	case strat == nil:
		return nil, fmt.Errorf("%w: strategy", ErrNilDependency)
	case scorer == nil:
		return nil, fmt.Errorf("%w: scorer", ErrNilDependency)
	}

	opts := applyOptions(optFns)

	if opts.roundBudget <= 0 {
		return nil, ErrInvalidRoundBudget
	}

	if opts.batchSize <= 0 {
		return nil, strategy.ErrInvalidBatchSize
	}

	if !seed.HasBothClasses() {
		return nil, &oracle.ErrInsufficientSeed{
			NeedPos: 1,
			HavePos: seed.Positives(),
			NeedNeg: 1,
			HaveNeg: seed.Len() - seed.Positives(),
		}
	}

	return &All{
		labeled: seed.Clone(),
		corpus:  corpus,
		orc:     orc,
		factory: factory,
		strat:   strat,
		scorer:  scorer,
		opts:    opts,
	}, nil
}

// NewMaxEntAll creates the MaxEnt-All baseline: max-entropy selection
// over the entire unlabeled corpus.
func NewMaxEntAll(seed *core.LabeledSet, corpus Corpus, orc oracle.Oracle,
	factory classifier.Factory, scorer *eval.Scorer, optFns ...Option) (*All, error) {
	return NewAll(seed, corpus, orc, factory, strategy.NewMaxEntropy(), scorer, optFns...)
}

// NewRandomAll creates the Random-All baseline: uniform selection
// over the entire unlabeled corpus. rngSeed makes the draws
// reproducible.
func NewRandomAll(seed *core.LabeledSet, corpus Corpus, orc oracle.Oracle,
	factory classifier.Factory, scorer *eval.Scorer, rngSeed int64, optFns ...Option) (*All, error) {
	return NewAll(seed, corpus, orc, factory, strategy.NewRandom(rngSeed), scorer, optFns...)
}

// Name implements Algorithm.
func (a *All) Name() string {
	return a.strat.Name() + "-all"
}

// Run implements Algorithm.
func (a *All) Run(ctx context.Context) (*Result, error) {
	if a.ran {
		return nil, ErrAlreadyRun
	}
	a.ran = true

	res := &Result{Labeled: a.labeled}

	degraded := false

	for round := 0; round < a.opts.roundBudget; round++ {
		start := time.Now()

		m, short, err := a.round(ctx, round, degraded)

		a.opts.metrics.RecordRound(time.Since(start), err)

		if err != nil {
			a.opts.logger.LogRun(ctx, res.Rounds, a.labeled.Len(), err)

			return nil, err
		}

		res.Scores = append(res.Scores, m)
		res.Rounds++
		degraded = short
	}

	a.opts.logger.LogRun(ctx, res.Rounds, a.labeled.Len(), nil)

	return res, nil
}

func (a *All) round(ctx context.Context, round int, degraded bool) (eval.Metrics, bool, error) {
	if err := ctx.Err(); err != nil {
		return eval.Metrics{}, false, err
	}

	if err := a.opts.controller.AcquireTraining(ctx); err != nil {
		return eval.Metrics{}, false, err
	}

	clf := a.factory()

	start := time.Now()
	err := clf.Fit(ctx, a.labeled.Vectors(), a.labeled.Labels())
	a.opts.controller.ReleaseTraining()
	a.opts.metrics.RecordTraining(time.Since(start), err)

	if err != nil {
		return eval.Metrics{}, false, err
	}

	start = time.Now()
	m, err := a.scorer.Score(ctx, clf, a.labeled)
	a.opts.metrics.RecordEvaluation(time.Since(start), err)

	if err != nil {
		return eval.Metrics{}, false, err
	}

	m.Degraded = degraded
	a.opts.logger.LogScore(ctx, round, m)

	selected, short, err := a.selectBatch(ctx, round, clf)
	if err != nil {
		return eval.Metrics{}, false, err
	}

	for _, id := range selected {
		if err := a.opts.controller.WaitLabel(ctx); err != nil {
			return eval.Metrics{}, false, err
		}

		label, err := a.orc.Label(ctx, id)
		if err != nil {
			return eval.Metrics{}, false, err
		}

		vec, ok := a.corpus.GetVector(id)
		if !ok {
			return eval.Metrics{}, false, fmt.Errorf("labeled item %d: %w", id, pool.ErrMissingVector)
		}

		if _, err := a.labeled.Add(id, vec, label); err != nil {
			return eval.Metrics{}, false, err
		}
	}

	a.opts.logger.LogRound(ctx, round, len(selected), a.labeled.Len(), nil)

	return m, short, nil
}

// selectBatch scores every unlabeled corpus item. This is the
// exhaustive scan the SEALS pool exists to avoid.
func (a *All) selectBatch(ctx context.Context, round int, clf classifier.Classifier) ([]core.ID, bool, error) {
	n := a.corpus.Len()

	ids := make([]core.ID, 0, n-a.labeled.Len())
	vectors := make([][]float32, 0, n-a.labeled.Len())

	for i := 0; i < n; i++ {
		id := core.ID(i)
		if a.labeled.Contains(id) {
			continue
		}

		vec, ok := a.corpus.GetVector(id)
		if !ok {
			return nil, false, fmt.Errorf("candidate %d: %w", id, pool.ErrMissingVector)
		}

		ids = append(ids, id)
		vectors = append(vectors, vec)
	}

	scored := make([]strategy.Scored, len(ids))

	if len(ids) > 0 {
		probs, err := clf.PredictProba(ctx, vectors)
		if err != nil {
			return nil, false, err
		}

		for i, id := range ids {
			scored[i] = strategy.Scored{ID: id, P: probs[i]}
		}
	}

	start := time.Now()
	selected, err := a.strat.Select(ctx, scored, a.opts.batchSize)
	a.opts.metrics.RecordSelection(a.opts.batchSize, len(selected), time.Since(start))

	short := false

	if err != nil {
		var insufficient *strategy.ErrInsufficientCandidates
		if !errors.As(err, &insufficient) {
			return nil, false, err
		}

		short = true
		a.opts.logger.LogShortBatch(ctx, round, insufficient.Requested, len(selected))
	}

	return selected, short, nil
}

// FullSupervision is the skyline baseline: it labels the whole corpus
// through the oracle, trains once, and replicates the resulting score
// across the round budget. The trained flag is explicit per value;
// nothing is shared across repetitions or classes.
type FullSupervision struct {
	corpus  Corpus
	orc     oracle.Oracle
	factory classifier.Factory
	scorer  *eval.Scorer
	opts    options
	trained bool
	ran     bool
}

// NewFullSupervision creates the full-supervision baseline. It needs
// no seed and no strategy: the oracle labels everything.
func NewFullSupervision(corpus Corpus, orc oracle.Oracle,
	factory classifier.Factory, scorer *eval.Scorer, optFns ...Option) (*FullSupervision, error) {
	switch {
	case corpus == nil:
		return nil, fmt.Errorf("%w: corpus", ErrNilDependency)
	case orc == nil:
		return nil, fmt.Errorf("%w: oracle", ErrNilDependency)
	case factory == nil:
		return nil, fmt.Errorf("%w: classifier factory", ErrNilDependency)
	case scorer == nil:
		return nil, fmt.Errorf("%w: scorer", ErrNilDependency)
	}

	opts := applyOptions(optFns)

	if opts.roundBudget <= 0 {
		return nil, ErrInvalidRoundBudget
	}

	return &FullSupervision{
		corpus:  corpus,
		orc:     orc,
		factory: factory,
		scorer:  scorer,
		opts:    opts,
	}, nil
}

// Name implements Algorithm.
func (f *FullSupervision) Name() string {
	return "full-supervision"
}

// Run implements Algorithm. One training pass over the fully labeled
// corpus; the single score entry is replicated RoundBudget times so
// trajectories line up with the iterative algorithms.
func (f *FullSupervision) Run(ctx context.Context) (*Result, error) {
	if f.ran {
		return nil, ErrAlreadyRun
	}
	f.ran = true

	labeled, err := f.labelAll(ctx)
	if err != nil {
		f.opts.logger.LogRun(ctx, 0, 0, err)

		return nil, err
	}

	if err := f.opts.controller.AcquireTraining(ctx); err != nil {
		return nil, err
	}

	clf := f.factory()

	start := time.Now()
	err = clf.Fit(ctx, labeled.Vectors(), labeled.Labels())
	f.opts.controller.ReleaseTraining()
	f.opts.metrics.RecordTraining(time.Since(start), err)

	if err != nil {
		f.opts.logger.LogRun(ctx, 0, labeled.Len(), err)

		return nil, err
	}

	f.trained = true

	start = time.Now()
	m, err := f.scorer.Score(ctx, clf, labeled)
	f.opts.metrics.RecordEvaluation(time.Since(start), err)

	if err != nil {
		f.opts.logger.LogRun(ctx, 0, labeled.Len(), err)

		return nil, err
	}

	f.opts.logger.LogScore(ctx, 0, m)

	res := &Result{
		Scores:  make([]eval.Metrics, f.opts.roundBudget),
		Labeled: labeled,
		Rounds:  f.opts.roundBudget,
	}

	for i := range res.Scores {
		res.Scores[i] = m
	}

	f.opts.logger.LogRun(ctx, res.Rounds, labeled.Len(), nil)

	return res, nil
}

func (f *FullSupervision) labelAll(ctx context.Context) (*core.LabeledSet, error) {
	labeled := core.NewLabeledSet(f.corpus.Dimension())

	for i := 0; i < f.corpus.Len(); i++ {
		id := core.ID(i)

		if err := f.opts.controller.WaitLabel(ctx); err != nil {
			return nil, err
		}

		label, err := f.orc.Label(ctx, id)
		if err != nil {
			return nil, err
		}

		vec, ok := f.corpus.GetVector(id)
		if !ok {
			return nil, fmt.Errorf("corpus item %d: %w", id, pool.ErrMissingVector)
		}

		if _, err := labeled.Add(id, vec, label); err != nil {
			return nil, err
		}
	}

	return labeled, nil
}
