package seals

import (
	"log/slog"

	"github.com/hupe1980/seals/resource"
)

// Defaults follow the research protocol: batches of 100 labels per
// round, 20 rounds, and a neighborhood of 100 per positive.
const (
	DefaultK           = 100
	DefaultBatchSize   = 100
	DefaultRoundBudget = 20
)

type options struct {
	k           int
	batchSize   int
	roundBudget int
	efSearch    int
	logger      *Logger
	metrics     MetricsCollector
	controller  *resource.Controller
}

// Option configures loop and baseline behavior.
type Option func(*options)

// WithK sets how many nearest neighbors each labeled positive
// contributes to the candidate pool.
func WithK(k int) Option {
	return func(o *options) {
		o.k = k
	}
}

// WithBatchSize sets how many labels the oracle grants per round.
func WithBatchSize(batchSize int) Option {
	return func(o *options) {
		o.batchSize = batchSize
	}
}

// WithRoundBudget sets how many select-label-retrain rounds a
// repetition runs.
func WithRoundBudget(roundBudget int) Option {
	return func(o *options) {
		o.roundBudget = roundBudget
	}
}

// WithEFSearch overrides the index's search beam width for pool
// growth queries. Zero keeps the index default.
func WithEFSearch(efSearch int) Option {
	return func(o *options) {
		o.efSearch = efSearch
	}
}

// WithLogger configures structured logging for the loop.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &seals.BasicMetricsCollector{}
//	loop, _ := seals.NewLoop(seed, idx, store, orc, factory, strat, scorer,
//	    seals.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
//	fmt.Printf("Rounds: %d, Avg round: %dns\n", stats.RoundCount, stats.RoundAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithResourceController applies the given limits to the run: each
// fit acquires a training slot for its duration and each oracle call
// waits for the labeling rate. Pass nil to run unbounded.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		k:           DefaultK,
		batchSize:   DefaultBatchSize,
		roundBudget: DefaultRoundBudget,
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.logger == nil {
		o.logger = NoopLogger()
	}

	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}

	return o
}
