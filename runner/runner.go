package runner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/seals"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/embedstore"
	"github.com/hupe1980/seals/eval"
	"github.com/hupe1980/seals/index"
	"github.com/hupe1980/seals/oracle"
	"github.com/hupe1980/seals/pool"
	"github.com/hupe1980/seals/report"
	"github.com/hupe1980/seals/resource"
)

var (
	// ErrNoAlgorithms is returned by New when no algorithm is
	// configured.
	ErrNoAlgorithms = errors.New("no algorithms configured")

	// ErrNoClasses is returned by Run when no target class can be
	// resolved.
	ErrNoClasses = errors.New("no target classes")

	// ErrUnknownClass is returned by Run when a configured class is
	// missing from the class index.
	ErrUnknownClass = errors.New("unknown class")
)

// ScorerProvider resolves the held-out scorer for a target class. The
// test split's ground truth depends on the class, so multi-class
// experiments need one scorer per class.
type ScorerProvider func(class string) (*eval.Scorer, error)

// StaticScorer adapts a single scorer for single-class experiments.
func StaticScorer(s *eval.Scorer) ScorerProvider {
	return func(string) (*eval.Scorer, error) {
		return s, nil
	}
}

// Options contains configuration options for the runner.
type Options struct {
	// Classes restricts the experiment to these target classes.
	// Empty means every class in the class index.
	Classes []string

	// NumClasses caps how many classes run. Zero means all.
	NumClasses int

	// RandomClasses samples NumClasses classes at random (seeded by
	// Seed) instead of taking the first ones in sorted order.
	RandomClasses bool

	// Repetitions is how many independent repetitions run per class
	// and algorithm.
	Repetitions int

	// Parallelism bounds concurrent repetitions.
	Parallelism int

	// Seed is the base RNG seed. Every (class, repetition) pair
	// derives its own child seed from it, so adding repetitions never
	// reshuffles earlier ones.
	Seed int64

	// SeedPositives and SeedNegatives size the labeled seed sample
	// drawn for each repetition.
	SeedPositives int
	SeedNegatives int

	// K, BatchSize and RoundBudget configure every algorithm run.
	K           int
	BatchSize   int
	RoundBudget int

	// EFSearch overrides the index's search beam width for pool
	// growth. Zero keeps the index default.
	EFSearch int

	// Logger receives per-repetition progress. Nil disables logging.
	Logger *seals.Logger

	// Metrics collects operational metrics across all repetitions.
	Metrics seals.MetricsCollector

	// Controller bounds classifier training and oracle labeling
	// across repetitions. Nil runs unbounded.
	Controller *resource.Controller
}

// DefaultOptions contains the default configuration options for the
// runner.
var DefaultOptions = Options{
	Repetitions:   1,
	Parallelism:   runtime.GOMAXPROCS(0),
	Seed:          4711,
	SeedPositives: 5,
	SeedNegatives: 95,
	K:             seals.DefaultK,
	BatchSize:     seals.DefaultBatchSize,
	RoundBudget:   seals.DefaultRoundBudget,
}

// buildParams is everything an algorithm needs for one repetition.
type buildParams struct {
	seed    *core.LabeledSet
	idx     index.Index
	store   embedstore.Store
	orc     oracle.Oracle
	scorer  *eval.Scorer
	rngSeed int64
	opts    []seals.Option
}

// Algorithm is a configured algorithm family. The runner builds a
// fresh instance per repetition, so no state leaks between them.
type Algorithm struct {
	name  string
	build func(p buildParams) (seals.Algorithm, error)
}

// Name identifies the algorithm family.
func (a Algorithm) Name() string { return a.name }

// Runner executes repetitions across classes and algorithms, sharing
// one read-only index, embedding store, and class index.
type Runner struct {
	idx     index.Index
	store   embedstore.Store
	classes *oracle.ClassIndex
	scorers ScorerProvider
	algos   []Algorithm
	opts    Options
}

// New creates a runner. The index, store, and class index must cover
// the same corpus; they are shared read-only across all repetitions.
func New(idx index.Index, store embedstore.Store, classes *oracle.ClassIndex,
	scorers ScorerProvider, algorithms []Algorithm, optFns ...func(o *Options)) (*Runner, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	switch {
	case idx == nil:
		return nil, fmt.Errorf("%w: index", seals.ErrNilDependency)
	case store == nil:
		return nil, fmt.Errorf("%w: store", seals.ErrNilDependency)
	case classes == nil:
		return nil, fmt.Errorf("%w: class index", seals.ErrNilDependency)
	case scorers == nil:
		return nil, fmt.Errorf("%w: scorer provider", seals.ErrNilDependency)
	}

	if len(algorithms) == 0 {
		return nil, ErrNoAlgorithms
	}

	if opts.Repetitions < 1 {
		opts.Repetitions = 1
	}

	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	return &Runner{
		idx:     idx,
		store:   store,
		classes: classes,
		scorers: scorers,
		algos:   algorithms,
		opts:    opts,
	}, nil
}

// Run executes Repetitions × classes repetitions of every configured
// algorithm and aggregates the trajectories into a report.
//
// Repetitions are independent: a repetition abandoned by a seed or
// training failure is recorded in FailedRuns and excluded from the
// aggregates without disturbing the others. A failed index query
// cancels the whole run, since every repetition depends on the index.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	classes, err := r.resolveClasses()
	if err != nil {
		return nil, err
	}

	var (
		mu           sync.Mutex
		trajectories []report.Trajectory
		failed       []report.FailedRun
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)

	for _, class := range classes {
		for rep := 0; rep < r.opts.Repetitions; rep++ {
			g.Go(func() error {
				fails, err := r.repetition(ctx, class, rep, &mu, &trajectories)
				if err != nil {
					return err
				}

				if len(fails) > 0 {
					mu.Lock()
					failed = append(failed, fails...)
					mu.Unlock()
				}

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortTrajectories(trajectories)
	sortFailed(failed)

	return &report.Report{
		Metadata: report.Metadata{
			Classes:     classes,
			Repetitions: r.opts.Repetitions,
			K:           r.opts.K,
			BatchSize:   r.opts.BatchSize,
			RoundBudget: r.opts.RoundBudget,
			Dimension:   r.store.Dimension(),
		},
		Trajectories: trajectories,
		Aggregates:   report.Aggregate(trajectories),
		FailedRuns:   failed,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// repetition samples one seed set for (class, rep) and runs every
// algorithm from a copy of it, the protocol that makes baselines
// comparable to the loop. It returns per-algorithm failures; the
// error return is reserved for run-fatal conditions.
func (r *Runner) repetition(ctx context.Context, class string, rep int,
	mu *sync.Mutex, trajectories *[]report.Trajectory) ([]report.FailedRun, error) {
	rngSeed := childSeed(r.opts.Seed, class, rep)

	logger := r.logger().WithClass(class).WithRep(rep)

	rng := rand.New(rand.NewSource(rngSeed))

	pos, neg, err := r.classes.SampleSeed(rng, class, r.store.Len(), r.opts.SeedPositives, r.opts.SeedNegatives)
	if err != nil {
		var insufficient *oracle.ErrInsufficientSeed
		if !errors.As(err, &insufficient) {
			return nil, err
		}

		// The class cannot seed any algorithm; fail them all.
		fails := make([]report.FailedRun, 0, len(r.algos))
		for _, algo := range r.algos {
			fails = append(fails, report.FailedRun{
				Algorithm: algo.Name(),
				Class:     class,
				Rep:       rep,
				Reason:    err.Error(),
			})
		}

		logger.LogRun(ctx, 0, 0, err)

		return fails, nil
	}

	seed, err := r.seedSet(pos, neg)
	if err != nil {
		return nil, err
	}

	logger.LogSeed(ctx, len(pos), len(neg))

	orc, ok := r.classes.Oracle(class)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	scorer, err := r.scorers(class)
	if err != nil {
		return nil, fmt.Errorf("scorer for class %q: %w", class, err)
	}

	params := buildParams{
		seed:   seed,
		idx:    r.idx,
		store:  r.store,
		orc:    orc,
		scorer: scorer,
		// Offset so algorithm-internal draws never replay the seed
		// sample sequence.
		rngSeed: rngSeed + 1,
		opts: []seals.Option{
			seals.WithK(r.opts.K),
			seals.WithBatchSize(r.opts.BatchSize),
			seals.WithRoundBudget(r.opts.RoundBudget),
			seals.WithEFSearch(r.opts.EFSearch),
			seals.WithLogger(logger),
			seals.WithMetricsCollector(r.opts.Metrics),
			seals.WithResourceController(r.opts.Controller),
		},
	}

	var fails []report.FailedRun

	for _, algo := range r.algos {
		a, err := algo.build(params)
		if err != nil {
			return nil, fmt.Errorf("build %s for class %q: %w", algo.Name(), class, err)
		}

		res, err := a.Run(ctx)
		if err != nil {
			if fatal(err) {
				return nil, err
			}

			fails = append(fails, report.FailedRun{
				Algorithm: a.Name(),
				Class:     class,
				Rep:       rep,
				Reason:    err.Error(),
			})

			continue
		}

		mu.Lock()
		*trajectories = append(*trajectories, report.Trajectory{
			Algorithm: a.Name(),
			Class:     class,
			Rep:       rep,
			Rounds:    report.RoundScores(res.Scores),
		})
		mu.Unlock()
	}

	return fails, nil
}

// fatal reports whether a repetition error must cancel the whole run.
// Index failures poison every repetition; cancellation propagates.
func fatal(err error) bool {
	var queryErr *pool.ErrQuery
	if errors.As(err, &queryErr) {
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// seedSet materializes the sampled seed IDs into a labeled set.
func (r *Runner) seedSet(pos, neg []core.ID) (*core.LabeledSet, error) {
	seed := core.NewLabeledSet(r.store.Dimension())

	for _, id := range pos {
		vec, ok := r.store.GetVector(id)
		if !ok {
			return nil, fmt.Errorf("seed positive %d: %w", id, pool.ErrMissingVector)
		}

		if _, err := seed.Add(id, vec, core.Positive); err != nil {
			return nil, err
		}
	}

	for _, id := range neg {
		vec, ok := r.store.GetVector(id)
		if !ok {
			return nil, fmt.Errorf("seed negative %d: %w", id, pool.ErrMissingVector)
		}

		if _, err := seed.Add(id, vec, core.Negative); err != nil {
			return nil, err
		}
	}

	return seed, nil
}

// resolveClasses determines which target classes run, honoring
// explicit lists, NumClasses caps, and random class selection.
func (r *Runner) resolveClasses() ([]string, error) {
	classes := r.opts.Classes
	if len(classes) == 0 {
		classes = r.classes.Classes()
	} else {
		for _, class := range classes {
			if _, ok := r.classes.Positives(class); !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
			}
		}

		classes = append([]string(nil), classes...)
		sort.Strings(classes)
	}

	if len(classes) == 0 {
		return nil, ErrNoClasses
	}

	if r.opts.NumClasses > 0 && r.opts.NumClasses < len(classes) {
		if r.opts.RandomClasses {
			rng := rand.New(rand.NewSource(r.opts.Seed))

			picked := make([]string, 0, r.opts.NumClasses)
			for _, i := range rng.Perm(len(classes))[:r.opts.NumClasses] {
				picked = append(picked, classes[i])
			}

			sort.Strings(picked)
			classes = picked
		} else {
			classes = classes[:r.opts.NumClasses]
		}
	}

	return classes, nil
}

func (r *Runner) logger() *seals.Logger {
	if r.opts.Logger == nil {
		return seals.NoopLogger()
	}

	return r.opts.Logger
}

// childSeed derives a stable per-repetition seed so repetitions are
// reproducible independently of scheduling order.
func childSeed(base int64, class string, rep int) int64 {
	h := fnv.New64a()
	h.Write([]byte(class))
	h.Write([]byte{byte(rep), byte(rep >> 8), byte(rep >> 16), byte(rep >> 24)})

	return base ^ int64(h.Sum64())
}

func sortTrajectories(trajectories []report.Trajectory) {
	sort.Slice(trajectories, func(i, j int) bool {
		a, b := trajectories[i], trajectories[j]
		if a.Algorithm != b.Algorithm {
			return a.Algorithm < b.Algorithm
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}

		return a.Rep < b.Rep
	})
}

func sortFailed(failed []report.FailedRun) {
	sort.Slice(failed, func(i, j int) bool {
		a, b := failed[i], failed[j]
		if a.Algorithm != b.Algorithm {
			return a.Algorithm < b.Algorithm
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}

		return a.Rep < b.Rep
	})
}
