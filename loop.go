package seals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/eval"
	"github.com/hupe1980/seals/index"
	"github.com/hupe1980/seals/oracle"
	"github.com/hupe1980/seals/pool"
	"github.com/hupe1980/seals/strategy"
)

// State identifies the loop's position in its round cycle.
type State uint8

const (
	// StateSeeded is the initial state: the labeled set holds only
	// the seed sample.
	StateSeeded State = iota
	// StateGrowPool expands the candidate pool around the known
	// positives.
	StateGrowPool
	// StateTrain fits a fresh classifier on the labeled set.
	StateTrain
	// StateScore evaluates the classifier on the held-out split.
	StateScore
	// StateSelect ranks the pool and picks the next batch.
	StateSelect
	// StateLabel reveals true labels for the batch and merges it.
	StateLabel
	// StateDone is the terminal state after the round budget is
	// spent or a fatal error.
	StateDone
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateSeeded:
		return "seeded"
	case StateGrowPool:
		return "grow_pool"
	case StateTrain:
		return "train"
	case StateScore:
		return "score"
	case StateSelect:
		return "select"
	case StateLabel:
		return "label"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result is the outcome of one repetition.
type Result struct {
	// Scores holds one Metrics entry per completed round, in order.
	Scores []eval.Metrics

	// Labeled is the final labeled set: seed plus every batch the
	// oracle revealed.
	Labeled *core.LabeledSet

	// Rounds is the number of completed rounds.
	Rounds int
}

// Algorithm is one configured repetition of an experiment: seeded
// once, run once, yielding a score trajectory. The SEALS loop and the
// baselines all satisfy it, so a runner can drive them through one
// contract.
type Algorithm interface {
	// Name identifies the algorithm in reports and logs.
	Name() string

	// Run executes the repetition. A second call returns
	// ErrAlreadyRun.
	Run(ctx context.Context) (*Result, error)
}

// Compile-time checks to ensure all algorithms satisfy the interface.
var (
	_ Algorithm = (*Loop)(nil)
	_ Algorithm = (*All)(nil)
	_ Algorithm = (*FullSupervision)(nil)
)

// Loop is the SEALS active-learning loop. Each round it grows the
// candidate pool from the positives labeled so far, retrains a fresh
// classifier, scores the held-out split, and sends the batch the
// strategy picks from the pool to the oracle.
//
// A Loop owns exactly one repetition: the labeled set, pool, and
// state machine are private to it and it can run only once. Not safe
// for concurrent use; run concurrent repetitions on separate loops.
type Loop struct {
	labeled *core.LabeledSet
	source  pool.VectorSource
	orc     oracle.Oracle
	factory classifier.Factory
	strat   strategy.Strategy
	scorer  *eval.Scorer
	pool    *pool.Candidate
	opts    options
	state   State
	ran     bool
}

// NewLoop creates a SEALS loop starting from seed. The seed must
// contain at least one positive and one negative example; the loop
// works on its own copy, so callers may reuse seed for baselines.
func NewLoop(seed *core.LabeledSet, idx index.Index, source pool.VectorSource, orc oracle.Oracle,
	factory classifier.Factory, strat strategy.Strategy, scorer *eval.Scorer, optFns ...Option) (*Loop, error) {
	switch {
	case seed == nil:
		return nil, fmt.Errorf("%w: seed", ErrNilDependency)
	case idx == nil:
		return nil, fmt.Errorf("%w: index", ErrNilDependency)
	case source == nil:
		return nil, fmt.Errorf("%w: vector source", ErrNilDependency)
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

	p, err := pool.New(idx, opts.k, func(o *pool.Options) {
		o.EFSearch = opts.efSearch
	})
	if err != nil {
		return nil, err
	}

	return &Loop{
		labeled: seed.Clone(),
		source:  source,
		orc:     orc,
		factory: factory,
		strat:   strat,
		scorer:  scorer,
		pool:    p,
		opts:    opts,
		state:   StateSeeded,
	}, nil
}

// Name implements Algorithm.
func (l *Loop) Name() string {
	return "seals-" + l.strat.Name()
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return l.state
}

// Pool returns the current candidate pool size. Mostly useful for
// observability; selection never reaches outside the pool.
func (l *Loop) Pool() int {
	return l.pool.Len()
}

// Run implements Algorithm. It executes RoundBudget rounds and
// returns the score trajectory together with the final labeled set.
// Training and pool-query failures abort the repetition; a short
// batch does not (the next recorded score is marked Degraded
// instead).
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if l.ran {
		return nil, ErrAlreadyRun
	}
	l.ran = true

	res := &Result{Labeled: l.labeled}

	degraded := false

	for round := 0; round < l.opts.roundBudget; round++ {
		start := time.Now()

		m, short, err := l.round(ctx, round, degraded)

		l.opts.metrics.RecordRound(time.Since(start), err)

		if err != nil {
			l.state = StateDone
			l.opts.logger.LogRun(ctx, res.Rounds, l.labeled.Len(), err)

			return nil, err
		}

		res.Scores = append(res.Scores, m)
		res.Rounds++
		degraded = short
	}

	l.state = StateDone
	l.opts.logger.LogRun(ctx, res.Rounds, l.labeled.Len(), nil)

	return res, nil
}

// transition advances the state machine, honoring cancellation at
// every edge.
func (l *Loop) transition(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.state = next

	return nil
}

// round runs one grow-train-score-select-label cycle. It returns the
// recorded metrics and whether selection came up short, which marks
// the next round's metrics Degraded.
func (l *Loop) round(ctx context.Context, round int, degraded bool) (eval.Metrics, bool, error) {
	// Grow the pool around every positive labeled so far. Already
	// expanded positives are skipped inside the pool.
	if err := l.transition(ctx, StateGrowPool); err != nil {
		return eval.Metrics{}, false, err
	}

	start := time.Now()
	added, err := l.pool.Grow(ctx, l.labeled.PositiveIDs(), l.source, l.labeled.IDs())
	l.opts.metrics.RecordPoolGrowth(added, time.Since(start), err)
	l.opts.logger.LogPoolGrowth(ctx, round, added, l.pool.Len(), err)

	if err != nil {
		return eval.Metrics{}, false, err
	}

	if err := l.transition(ctx, StateTrain); err != nil {
		return eval.Metrics{}, false, err
	}

	clf, err := l.train(ctx)
	if err != nil {
		return eval.Metrics{}, false, err
	}

	if err := l.transition(ctx, StateScore); err != nil {
		return eval.Metrics{}, false, err
	}

	start = time.Now()
	m, err := l.scorer.Score(ctx, clf, l.labeled)
	l.opts.metrics.RecordEvaluation(time.Since(start), err)

	if err != nil {
		return eval.Metrics{}, false, err
	}

	m.Degraded = degraded
	l.opts.logger.LogScore(ctx, round, m)

	if err := l.transition(ctx, StateSelect); err != nil {
		return eval.Metrics{}, false, err
	}

	selected, short, err := l.selectBatch(ctx, round, clf)
	if err != nil {
		return eval.Metrics{}, false, err
	}

	if err := l.transition(ctx, StateLabel); err != nil {
		return eval.Metrics{}, false, err
	}

	if err := l.label(ctx, selected); err != nil {
		return eval.Metrics{}, false, err
	}

	l.opts.logger.LogRound(ctx, round, len(selected), l.labeled.Len(), nil)

	return m, short, nil
}

// train fits a fresh classifier on everything labeled so far. With a
// resource controller configured, the fit occupies a training slot
// for its duration.
func (l *Loop) train(ctx context.Context) (classifier.Classifier, error) {
	if err := l.opts.controller.AcquireTraining(ctx); err != nil {
		return nil, err
	}
	defer l.opts.controller.ReleaseTraining()

	clf := l.factory()

	start := time.Now()
	err := clf.Fit(ctx, l.labeled.Vectors(), l.labeled.Labels())
	l.opts.metrics.RecordTraining(time.Since(start), err)

	if err != nil {
		return nil, err
	}

	return clf, nil
}

// selectBatch scores the pool and asks the strategy for the next
// batch. A short pool yields a partial batch, reported as short
// rather than as a failure.
func (l *Loop) selectBatch(ctx context.Context, round int, clf classifier.Classifier) ([]core.ID, bool, error) {
	ids := l.pool.IDs()

	scored := make([]strategy.Scored, 0, len(ids))

	if len(ids) > 0 {
		vectors := make([][]float32, len(ids))
		for i, id := range ids {
			vec, ok := l.source.GetVector(id)
			if !ok {
				return nil, false, fmt.Errorf("candidate %d: %w", id, pool.ErrMissingVector)
			}
			vectors[i] = vec
		}

		probs, err := clf.PredictProba(ctx, vectors)
		if err != nil {
			return nil, false, err
		}

		for i, id := range ids {
			scored = append(scored, strategy.Scored{ID: id, P: probs[i]})
		}
	}

	start := time.Now()
	selected, err := l.strat.Select(ctx, scored, l.opts.batchSize)
	l.opts.metrics.RecordSelection(l.opts.batchSize, len(selected), time.Since(start))

	short := false

	if err != nil {
		var insufficient *strategy.ErrInsufficientCandidates
		if !errors.As(err, &insufficient) {
			return nil, false, err
		}

		// Exhausted neighbor graph: proceed with what is left and
		// mark the next score degraded.
		short = true
		l.opts.logger.LogShortBatch(ctx, round, insufficient.Requested, len(selected))
	}

	return selected, short, nil
}

// label reveals the true labels for the batch, merges it into the
// labeled set, and retires it from the pool.
func (l *Loop) label(ctx context.Context, selected []core.ID) error {
	for _, id := range selected {
		if err := l.opts.controller.WaitLabel(ctx); err != nil {
			return err
		}

		label, err := l.orc.Label(ctx, id)
		if err != nil {
			return err
		}

		vec, ok := l.source.GetVector(id)
		if !ok {
			return fmt.Errorf("labeled item %d: %w", id, pool.ErrMissingVector)
		}

		if _, err := l.labeled.Add(id, vec, label); err != nil {
			return err
		}
	}

	l.pool.Remove(selected...)

	return nil
}
