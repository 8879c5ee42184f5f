// Package report defines the persisted outcome of an experiment and
// moves it in and out of blob storage.
//
// A report bundles the experiment configuration, every repetition's
// score trajectory, mean trajectories per algorithm and class, and
// the repetitions that failed. Round scores keep the exact JSON keys
// of the research tooling, so existing plotting scripts read the
// blobs unchanged.
package report

import (
	"sort"
	"time"

	"github.com/hupe1980/seals/eval"
)

// RoundScore is one recorded evaluation round.
type RoundScore struct {
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	AveragePrecision float64 `json:"average_precision"`
	Positives        int     `json:"positives"`
	Degraded         bool    `json:"degraded,omitempty"`
}

// FromMetrics converts a scored round to its persisted form.
func FromMetrics(m eval.Metrics) RoundScore {
	return RoundScore{
		Precision:        m.Precision,
		Recall:           m.Recall,
		AveragePrecision: m.AveragePrecision,
		Positives:        m.Positives,
		Degraded:         m.Degraded,
	}
}

// RoundScores converts a score sequence to its persisted form.
func RoundScores(scores []eval.Metrics) []RoundScore {
	rounds := make([]RoundScore, len(scores))
	for i, m := range scores {
		rounds[i] = FromMetrics(m)
	}

	return rounds
}

// Trajectory is the score sequence of one repetition.
type Trajectory struct {
	Algorithm string       `json:"algorithm"`
	Class     string       `json:"class"`
	Rep       int          `json:"rep"`
	Rounds    []RoundScore `json:"rounds"`
}

// FailedRun records a repetition abandoned by error. Failed
// repetitions are excluded from aggregation.
type FailedRun struct {
	Algorithm string `json:"algorithm"`
	Class     string `json:"class"`
	Rep       int    `json:"rep"`
	Reason    string `json:"reason"`
}

// Metadata describes the experiment configuration.
type Metadata struct {
	Classes     []string `json:"classes"`
	Repetitions int      `json:"repetitions"`
	K           int      `json:"k"`
	BatchSize   int      `json:"batch_size"`
	RoundBudget int      `json:"round_budget"`
	Dimension   int      `json:"dimension"`
}

// Report is the persisted outcome of an experiment.
type Report struct {
	Metadata     Metadata         `json:"metadata"`
	Trajectories []Trajectory     `json:"trajectories"`
	Aggregates   []MeanTrajectory `json:"aggregates,omitempty"`
	FailedRuns   []FailedRun      `json:"failed_runs,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// MeanScore is the element-wise mean of round scores. Positives is
// fractional because it averages counts.
type MeanScore struct {
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	AveragePrecision float64 `json:"average_precision"`
	Positives        float64 `json:"positives"`
}

// MeanTrajectory is the mean trajectory of one algorithm on one class
// across its successful repetitions.
type MeanTrajectory struct {
	Algorithm string      `json:"algorithm"`
	Class     string      `json:"class"`
	Reps      int         `json:"reps"`
	Rounds    []MeanScore `json:"rounds"`
}

// Aggregate computes mean trajectories per algorithm and class.
// The result is sorted by algorithm, then class. Trajectories of
// unequal length are averaged over whichever repetitions reached
// each round.
func Aggregate(trajectories []Trajectory) []MeanTrajectory {
	type key struct {
		algorithm string
		class     string
	}

	groups := make(map[key][]Trajectory)
	for _, tr := range trajectories {
		k := key{algorithm: tr.Algorithm, class: tr.Class}
		groups[k] = append(groups[k], tr)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].algorithm != keys[j].algorithm {
			return keys[i].algorithm < keys[j].algorithm
		}

		return keys[i].class < keys[j].class
	})

	out := make([]MeanTrajectory, 0, len(keys))

	for _, k := range keys {
		group := groups[k]

		rounds := 0
		for _, tr := range group {
			rounds = max(rounds, len(tr.Rounds))
		}

		means := make([]MeanScore, rounds)

		for i := range means {
			var sum MeanScore

			n := 0

			for _, tr := range group {
				if i >= len(tr.Rounds) {
					continue
				}

				r := tr.Rounds[i]
				sum.Precision += r.Precision
				sum.Recall += r.Recall
				sum.AveragePrecision += r.AveragePrecision
				sum.Positives += float64(r.Positives)
				n++
			}

			means[i] = MeanScore{
				Precision:        sum.Precision / float64(n),
				Recall:           sum.Recall / float64(n),
				AveragePrecision: sum.AveragePrecision / float64(n),
				Positives:        sum.Positives / float64(n),
			}
		}

		out = append(out, MeanTrajectory{
			Algorithm: k.algorithm,
			Class:     k.class,
			Reps:      len(group),
			Rounds:    means,
		})
	}

	return out
}
