// Package resource bounds the shared resources the repetitions of an
// experiment run compete for: classifier training slots, oracle
// labeling throughput and blob transfer bandwidth. All Controller
// methods are safe on a nil receiver, which disables the limit, so
// callers thread the controller through unconditionally.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits enforced by a Controller.
type Config struct {
	// MaxConcurrentTraining caps classifier fits running at the same
	// time across repetitions. If 0, defaults to 1.
	MaxConcurrentTraining int64

	// LabelsPerSec throttles oracle label requests across all
	// repetitions. If 0, unlimited.
	LabelsPerSec float64

	// LabelBurst is the labeling burst size. If 0, defaults to 1.
	LabelBurst int

	// IOBytesPerSec throttles blob transfers (shard loading, report
	// publishing). If 0, unlimited.
	IOBytesPerSec int64
}

// Controller enforces Config for one experiment run.
type Controller struct {
	cfg Config

	trainSem     *semaphore.Weighted
	labelLimiter *rate.Limiter
	ioLimiter    *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentTraining <= 0 {
		cfg.MaxConcurrentTraining = 1
	}

	c := &Controller{
		cfg:      cfg,
		trainSem: semaphore.NewWeighted(cfg.MaxConcurrentTraining),
	}

	if cfg.LabelsPerSec > 0 {
		burst := cfg.LabelBurst
		if burst <= 0 {
			burst = 1
		}
		c.labelLimiter = rate.NewLimiter(rate.Limit(cfg.LabelsPerSec), burst)
	}

	if cfg.IOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}

	return c
}

// AcquireTraining reserves a training slot. Blocks while all slots are
// busy.
func (c *Controller) AcquireTraining(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.trainSem.Acquire(ctx, 1)
}

// TryAcquireTraining reserves a training slot without blocking.
// Returns true if acquired.
func (c *Controller) TryAcquireTraining() bool {
	if c == nil {
		return true
	}
	return c.trainSem.TryAcquire(1)
}

// ReleaseTraining releases a training slot.
func (c *Controller) ReleaseTraining() {
	if c == nil {
		return
	}
	c.trainSem.Release(1)
}

// WaitLabel waits until the labeling rate allows one more oracle call.
func (c *Controller) WaitLabel(ctx context.Context) error {
	if c == nil || c.labelLimiter == nil {
		return nil
	}
	return c.labelLimiter.Wait(ctx)
}

// AcquireIO waits until the bandwidth limit allows the given number of
// bytes to transfer.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
