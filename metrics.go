package seals

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    trainingCounter prometheus.Counter
//	    roundHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordTraining(duration time.Duration, err error) {
//	    p.trainingCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordPoolGrowth is called after each pool expansion.
	// added is the number of new candidates, err is nil if successful.
	RecordPoolGrowth(added int, duration time.Duration, err error)

	// RecordTraining is called after each classifier fit.
	RecordTraining(duration time.Duration, err error)

	// RecordEvaluation is called after each held-out scoring pass.
	RecordEvaluation(duration time.Duration, err error)

	// RecordSelection is called after each batch selection. selected
	// may be below requested when candidates ran short.
	RecordSelection(requested, selected int, duration time.Duration)

	// RecordRound is called after each completed round.
	RecordRound(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPoolGrowth(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordTraining(time.Duration, error)        {}
func (NoopMetricsCollector) RecordEvaluation(time.Duration, error)      {}
func (NoopMetricsCollector) RecordSelection(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordRound(time.Duration, error)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PoolGrowthCount    atomic.Int64
	PoolGrowthErrors   atomic.Int64
	PoolAddedTotal     atomic.Int64
	TrainingCount      atomic.Int64
	TrainingErrors     atomic.Int64
	TrainingTotalNanos atomic.Int64
	EvaluationCount    atomic.Int64
	EvaluationErrors   atomic.Int64
	SelectionCount     atomic.Int64
	SelectionItems     atomic.Int64
	SelectionShort     atomic.Int64
	RoundCount         atomic.Int64
	RoundErrors        atomic.Int64
	RoundTotalNanos    atomic.Int64
}

// RecordPoolGrowth implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoolGrowth(added int, duration time.Duration, err error) {
	b.PoolGrowthCount.Add(1)
	b.PoolAddedTotal.Add(int64(added))

	if err != nil {
		b.PoolGrowthErrors.Add(1)
	}
}

// RecordTraining implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTraining(duration time.Duration, err error) {
	b.TrainingCount.Add(1)
	b.TrainingTotalNanos.Add(duration.Nanoseconds())

	if err != nil {
		b.TrainingErrors.Add(1)
	}
}

// RecordEvaluation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvaluation(duration time.Duration, err error) {
	b.EvaluationCount.Add(1)

	if err != nil {
		b.EvaluationErrors.Add(1)
	}
}

// RecordSelection implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSelection(requested, selected int, duration time.Duration) {
	b.SelectionCount.Add(1)
	b.SelectionItems.Add(int64(selected))

	if selected < requested {
		b.SelectionShort.Add(1)
	}
}

// RecordRound implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRound(duration time.Duration, err error) {
	b.RoundCount.Add(1)
	b.RoundTotalNanos.Add(duration.Nanoseconds())

	if err != nil {
		b.RoundErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PoolGrowthCount:  b.PoolGrowthCount.Load(),
		PoolGrowthErrors: b.PoolGrowthErrors.Load(),
		PoolAddedTotal:   b.PoolAddedTotal.Load(),
		TrainingCount:    b.TrainingCount.Load(),
		TrainingErrors:   b.TrainingErrors.Load(),
		TrainingAvgNanos: b.getAvgTrainingNanos(),
		EvaluationCount:  b.EvaluationCount.Load(),
		EvaluationErrors: b.EvaluationErrors.Load(),
		SelectionCount:   b.SelectionCount.Load(),
		SelectionItems:   b.SelectionItems.Load(),
		SelectionShort:   b.SelectionShort.Load(),
		RoundCount:       b.RoundCount.Load(),
		RoundErrors:      b.RoundErrors.Load(),
		RoundAvgNanos:    b.getAvgRoundNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgTrainingNanos() int64 {
	count := b.TrainingCount.Load()
	if count == 0 {
		return 0
	}

	return b.TrainingTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgRoundNanos() int64 {
	count := b.RoundCount.Load()
	if count == 0 {
		return 0
	}

	return b.RoundTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PoolGrowthCount  int64
	PoolGrowthErrors int64
	PoolAddedTotal   int64
	TrainingCount    int64
	TrainingErrors   int64
	TrainingAvgNanos int64
	EvaluationCount  int64
	EvaluationErrors int64
	SelectionCount   int64
	SelectionItems   int64
	SelectionShort   int64
	RoundCount       int64
	RoundErrors      int64
	RoundAvgNanos    int64
}
