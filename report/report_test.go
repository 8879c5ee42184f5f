package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seals/codec"
	"github.com/hupe1980/seals/eval"
)

func TestRoundScoreJSON(t *testing.T) {
	t.Run("Research keys", func(t *testing.T) {
		data, err := codec.JSON{}.Marshal(RoundScore{
			Precision:        0.5,
			Recall:           0.25,
			AveragePrecision: 0.4,
			Positives:        7,
		})
		require.NoError(t, err)

		assert.JSONEq(t, `{"precision":0.5,"recall":0.25,"average_precision":0.4,"positives":7}`, string(data))
	})

	t.Run("Degraded only when set", func(t *testing.T) {
		data, err := codec.JSON{}.Marshal(RoundScore{Degraded: true})
		require.NoError(t, err)

		assert.JSONEq(t, `{"precision":0,"recall":0,"average_precision":0,"positives":0,"degraded":true}`, string(data))
	})
}

func TestRoundScores(t *testing.T) {
	scores := []eval.Metrics{
		{Precision: 0.5, Recall: 0.1, AveragePrecision: 0.3, Positives: 2},
		{Precision: 0.75, Recall: 0.4, AveragePrecision: 0.6, Positives: 5, Degraded: true},
	}

	rounds := RoundScores(scores)
	require.Len(t, rounds, 2)

	assert.Equal(t, RoundScore{Precision: 0.5, Recall: 0.1, AveragePrecision: 0.3, Positives: 2}, rounds[0])
	assert.Equal(t, RoundScore{Precision: 0.75, Recall: 0.4, AveragePrecision: 0.6, Positives: 5, Degraded: true}, rounds[1])
}

func TestAggregate(t *testing.T) {
	trajectories := []Trajectory{
		{
			Algorithm: "seals",
			Class:     "rare-bird",
			Rep:       0,
			Rounds: []RoundScore{
				{Precision: 0.4, Recall: 0.2, AveragePrecision: 0.3, Positives: 2},
				{Precision: 0.6, Recall: 0.4, AveragePrecision: 0.5, Positives: 4},
			},
		},
		{
			Algorithm: "seals",
			Class:     "rare-bird",
			Rep:       1,
			Rounds: []RoundScore{
				{Precision: 0.6, Recall: 0.4, AveragePrecision: 0.5, Positives: 4},
				{Precision: 0.8, Recall: 0.6, AveragePrecision: 0.7, Positives: 6},
			},
		},
		{
			Algorithm: "random_all",
			Class:     "rare-bird",
			Rep:       0,
			Rounds: []RoundScore{
				{Precision: 0.1, Recall: 0.1, AveragePrecision: 0.1, Positives: 1},
			},
		},
	}

	got := Aggregate(trajectories)
	require.Len(t, got, 2)

	// Sorted by algorithm name.
	assert.Equal(t, "random_all", got[0].Algorithm)
	assert.Equal(t, "seals", got[1].Algorithm)

	seals := got[1]
	assert.Equal(t, 2, seals.Reps)
	require.Len(t, seals.Rounds, 2)
	assert.InDelta(t, 0.5, seals.Rounds[0].Precision, 1e-12)
	assert.InDelta(t, 0.3, seals.Rounds[0].Recall, 1e-12)
	assert.InDelta(t, 0.4, seals.Rounds[0].AveragePrecision, 1e-12)
	assert.InDelta(t, 3.0, seals.Rounds[0].Positives, 1e-12)
	assert.InDelta(t, 0.7, seals.Rounds[1].Precision, 1e-12)
	assert.InDelta(t, 5.0, seals.Rounds[1].Positives, 1e-12)
}

func TestAggregateRaggedTrajectories(t *testing.T) {
	trajectories := []Trajectory{
		{
			Algorithm: "seals",
			Class:     "rare-bird",
			Rounds: []RoundScore{
				{Precision: 0.2, Positives: 2},
				{Precision: 0.4, Positives: 4},
			},
		},
		{
			Algorithm: "seals",
			Class:     "rare-bird",
			Rep:       1,
			Rounds: []RoundScore{
				{Precision: 0.6, Positives: 6},
			},
		},
	}

	got := Aggregate(trajectories)
	require.Len(t, got, 1)
	require.Len(t, got[0].Rounds, 2)

	// Round 0 averages both repetitions, round 1 only the one that
	// reached it.
	assert.InDelta(t, 0.4, got[0].Rounds[0].Precision, 1e-12)
	assert.InDelta(t, 4.0, got[0].Rounds[0].Positives, 1e-12)
	assert.InDelta(t, 0.4, got[0].Rounds[1].Precision, 1e-12)
	assert.InDelta(t, 4.0, got[0].Rounds[1].Positives, 1e-12)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}
