// Package logreg implements dense binary logistic regression trained
// with full-batch gradient descent. Training is deterministic: the
// weights start at zero and the batch gradient does not depend on
// example order.
package logreg

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/core"
)

// Options for the trainer.
type Options struct {
	// LearningRate scales each gradient step.
	LearningRate float64

	// Epochs bounds the number of passes over the training set.
	Epochs int

	// L2 is the ridge penalty on the weights. The bias is not
	// penalized.
	L2 float64

	// Tolerance stops training early once the regularized mean loss
	// changes by less than this between epochs.
	Tolerance float64
}

// DefaultOptions for training on embedding-sized inputs.
var DefaultOptions = Options{
	LearningRate: 0.1,
	Epochs:       100,
	L2:           1e-4,
	Tolerance:    1e-6,
}

// LogReg is a binary logistic regression model. Create instances with
// New; the zero value is not usable.
type LogReg struct {
	opts Options

	weights []float64
	bias    float64
	dim     int
	fitted  bool
}

// Compile-time check to ensure LogReg satisfies the Classifier
// interface.
var _ classifier.Classifier = (*LogReg)(nil)

// New creates a new logistic regression model.
func New(optFns ...func(o *Options)) *LogReg {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &LogReg{opts: opts}
}

// Factory returns a classifier.Factory producing models with the
// given options.
func Factory(optFns ...func(o *Options)) classifier.Factory {
	return func() classifier.Classifier {
		return New(optFns...)
	}
}

// Fit implements classifier.Classifier.
func (l *LogReg) Fit(ctx context.Context, vectors [][]float32, labels []core.Label) error {
	if len(vectors) == 0 {
		return &classifier.ErrTraining{Reason: "empty training set"}
	}

	if len(vectors) != len(labels) {
		return &classifier.ErrTraining{Reason: fmt.Sprintf("got %d vectors but %d labels", len(vectors), len(labels))}
	}

	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dim {
			return &classifier.ErrTraining{Reason: fmt.Sprintf("row %d has dimension %d, want %d", i, len(vec), dim)}
		}
	}

	positives := 0
	for _, label := range labels {
		if label == core.Positive {
			positives++
		}
	}

	if positives == 0 || positives == len(labels) {
		return &classifier.ErrTraining{Reason: "training data contains a single class"}
	}

	n := len(vectors)
	invN := 1.0 / float64(n)

	weights := make([]float64, dim)
	gradW := make([]float64, dim)
	bias := 0.0

	prevLoss := math.Inf(1)

	for epoch := 0; epoch < l.opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for j := range gradW {
			gradW[j] = 0
		}

		gradB := 0.0
		loss := 0.0

		for i, vec := range vectors {
			z := bias
			for j, x := range vec {
				z += weights[j] * float64(x)
			}

			p := sigmoid(z)

			y := 0.0
			if labels[i] == core.Positive {
				y = 1.0
			}

			loss -= y*math.Log(clampProb(p)) + (1-y)*math.Log(clampProb(1-p))

			diff := p - y
			for j, x := range vec {
				gradW[j] += diff * float64(x)
			}

			gradB += diff
		}

		loss *= invN
		for _, w := range weights {
			loss += 0.5 * l.opts.L2 * w * w
		}

		for j := range weights {
			weights[j] -= l.opts.LearningRate * (gradW[j]*invN + l.opts.L2*weights[j])
		}

		bias -= l.opts.LearningRate * gradB * invN

		if math.Abs(prevLoss-loss) < l.opts.Tolerance {
			break
		}

		prevLoss = loss
	}

	l.weights = weights
	l.bias = bias
	l.dim = dim
	l.fitted = true

	return nil
}

// PredictProba implements classifier.Classifier.
func (l *LogReg) PredictProba(ctx context.Context, vectors [][]float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !l.fitted {
		return nil, classifier.ErrNotFitted
	}

	probs := make([]float32, len(vectors))

	for i, vec := range vectors {
		if len(vec) != l.dim {
			return nil, &core.ErrDimensionMismatch{Expected: l.dim, Actual: len(vec)}
		}

		z := l.bias
		for j, x := range vec {
			z += l.weights[j] * float64(x)
		}

		probs[i] = float32(sigmoid(z))
	}

	return probs, nil
}

// sigmoid is the numerically stable logistic function.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}

	exp := math.Exp(z)

	return exp / (1 + exp)
}

// probFloor keeps log arguments strictly positive when the model
// saturates.
const probFloor = 1e-15

func clampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}

	if p > 1-probFloor {
		return 1 - probFloor
	}

	return p
}
