// Package eval computes held-out retrieval metrics for a fitted
// classifier.
package eval

import (
	"context"
	"errors"
	"sort"

	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/core"
)

var (
	// ErrEmptyTestSet is returned by NewScorer for a test set without
	// examples.
	ErrEmptyTestSet = errors.New("test set is empty")

	// ErrSizeMismatch is returned by NewScorer when vectors and truth
	// have different lengths.
	ErrSizeMismatch = errors.New("vectors and truth have different lengths")
)

// threshold at which a probability counts as a positive prediction.
const threshold = 0.5

// TestSet is the held-out evaluation data: vectors with their true
// labels.
type TestSet struct {
	Vectors [][]float32
	Truth   []core.Label
}

// Metrics summarizes one scoring round.
type Metrics struct {
	Precision        float64
	Recall           float64
	AveragePrecision float64

	// Positives is the number of positives in the labeled set at the
	// time the round was scored.
	Positives int

	// Degraded marks rounds that proceeded with a short batch.
	Degraded bool
}

// Scorer evaluates classifiers against a fixed test set.
type Scorer struct {
	testSet TestSet
}

// NewScorer creates a scorer for the given test set.
func NewScorer(testSet TestSet) (*Scorer, error) {
	if len(testSet.Vectors) == 0 {
		return nil, ErrEmptyTestSet
	}

	if len(testSet.Vectors) != len(testSet.Truth) {
		return nil, ErrSizeMismatch
	}

	return &Scorer{testSet: testSet}, nil
}

// Len returns the number of test examples.
func (s *Scorer) Len() int {
	return len(s.testSet.Vectors)
}

// Score asks clf for probabilities on the test set and derives
// precision and recall at threshold 0.5 plus average precision over
// the full ranking. labeled supplies the Positives count.
func (s *Scorer) Score(ctx context.Context, clf classifier.Classifier, labeled *core.LabeledSet) (Metrics, error) {
	probs, err := clf.PredictProba(ctx, s.testSet.Vectors)
	if err != nil {
		return Metrics{}, err
	}

	var tp, fp, fn int

	for i, p := range probs {
		predicted := p >= threshold
		actual := s.testSet.Truth[i] == core.Positive

		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		}
	}

	metrics := Metrics{
		AveragePrecision: AveragePrecision(probs, s.testSet.Truth),
		Positives:        labeled.Positives(),
	}

	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}

	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}

	return metrics, nil
}

// AveragePrecision computes step-function average precision over the
// descending-probability ranking of the parallel slices probs and
// truth. Ties rank by ascending index. An all-negative truth vector
// scores 0.
func AveragePrecision(probs []float32, truth []core.Label) float64 {
	total := 0
	for _, label := range truth {
		if label == core.Positive {
			total++
		}
	}

	if total == 0 {
		return 0
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(i, j int) bool {
		if probs[order[i]] != probs[order[j]] {
			return probs[order[i]] > probs[order[j]]
		}

		return order[i] < order[j]
	})

	sum := 0.0
	tp := 0

	for rank, idx := range order {
		if truth[idx] == core.Positive {
			tp++
			sum += float64(tp) / float64(rank+1)
		}
	}

	return sum / float64(total)
}
