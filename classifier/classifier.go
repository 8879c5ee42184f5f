// Package classifier defines the model abstraction shared by the
// active-learning loop and its baselines.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/seals/core"
)

// ErrNotFitted is returned by PredictProba before a successful Fit.
var ErrNotFitted = errors.New("classifier has not been fitted")

// ErrTraining reports a failed Fit. A repetition that hits one is
// abandoned rather than retried.
type ErrTraining struct {
	Reason string
}

func (e *ErrTraining) Error() string {
	return fmt.Sprintf("training failed: %s", e.Reason)
}

// Classifier is a binary model scoring vectors with positive-class
// probabilities.
type Classifier interface {
	// Fit trains the model on parallel slices of vectors and labels.
	Fit(ctx context.Context, vectors [][]float32, labels []core.Label) error

	// PredictProba returns the probability of the positive class for
	// each input row.
	PredictProba(ctx context.Context, vectors [][]float32) ([]float32, error)
}

// Factory produces a fresh, unfitted classifier. The loop retrains
// from scratch every round, so implementations must not share state
// across the models they return.
type Factory func() Classifier
