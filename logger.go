package seals

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/seals/eval"
)

// Logger wraps slog.Logger with loop-specific helpers, so every
// repetition logs the same field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithAlgorithm adds an algorithm field to the logger.
func (l *Logger) WithAlgorithm(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("algorithm", name),
	}
}

// WithClass adds a class field to the logger.
func (l *Logger) WithClass(class string) *Logger {
	return &Logger{
		Logger: l.Logger.With("class", class),
	}
}

// WithRep adds a repetition field to the logger.
func (l *Logger) WithRep(rep int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rep", rep),
	}
}

// WithK adds a k (neighborhood size) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogSeed logs the seed set a repetition starts from.
func (l *Logger) LogSeed(ctx context.Context, positives, negatives int) {
	l.InfoContext(ctx, "seed sampled",
		"positives", positives,
		"negatives", negatives,
	)
}

// LogPoolGrowth logs one pool expansion step.
func (l *Logger) LogPoolGrowth(ctx context.Context, round, added, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pool growth failed",
			"round", round,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "pool grown",
			"round", round,
			"added", added,
			"pool_size", size,
		)
	}
}

// LogScore logs the metrics recorded for a round.
func (l *Logger) LogScore(ctx context.Context, round int, m eval.Metrics) {
	l.DebugContext(ctx, "round scored",
		"round", round,
		"precision", m.Precision,
		"recall", m.Recall,
		"average_precision", m.AveragePrecision,
		"positives", m.Positives,
		"degraded", m.Degraded,
	)
}

// LogShortBatch logs a selection that could not fill the batch.
func (l *Logger) LogShortBatch(ctx context.Context, round, requested, selected int) {
	l.WarnContext(ctx, "short batch",
		"round", round,
		"requested", requested,
		"selected", selected,
	)
}

// LogRound logs a completed labeling round.
func (l *Logger) LogRound(ctx context.Context, round, selected, labeled int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "round failed",
			"round", round,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "round completed",
			"round", round,
			"selected", selected,
			"labeled_total", labeled,
		)
	}
}

// LogRun logs the outcome of a repetition.
func (l *Logger) LogRun(ctx context.Context, rounds, labeled int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run failed",
			"rounds", rounds,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "run completed",
			"rounds", rounds,
			"labeled_total", labeled,
		)
	}
}

// LogPublish logs a report publish.
func (l *Logger) LogPublish(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "report published",
			"name", name,
		)
	}
}
