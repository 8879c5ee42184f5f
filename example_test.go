package seals_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/seals"
	"github.com/hupe1980/seals/classifier/logreg"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/embedstore"
	"github.com/hupe1980/seals/eval"
	"github.com/hupe1980/seals/index/flat"
	"github.com/hupe1980/seals/oracle"
	"github.com/hupe1980/seals/strategy"
	"github.com/hupe1980/seals/testutil"
)

// Example demonstrates a full SEALS repetition on a synthetic corpus
// with a planted rare class.
func Example() {
	ctx := context.Background()

	const (
		dim    = 4
		corpus = 1000
	)

	rng := testutil.NewRNG(4711)
	vectors, positives := rng.PlantedCorpus(corpus, dim, 10, 0.05)

	store, err := embedstore.MemoryFromRows(dim, vectors)
	if err != nil {
		log.Fatal(err)
	}

	idx, err := flat.New(func(o *flat.Options) { o.Dimension = dim })
	if err != nil {
		log.Fatal(err)
	}

	if _, err := idx.BatchInsert(vectors); err != nil {
		log.Fatal(err)
	}

	classes := oracle.NewClassIndex(map[string][]uint32{"target": positives.ToArray()})

	orc, ok := classes.Oracle("target")
	if !ok {
		log.Fatal("unknown class")
	}

	truth := make([]core.Label, corpus)
	for i := range truth {
		if positives.Contains(uint32(i)) {
			truth[i] = core.Positive
		}
	}

	scorer, err := eval.NewScorer(eval.TestSet{Vectors: vectors, Truth: truth})
	if err != nil {
		log.Fatal(err)
	}

	// Seed with two known positives and three negatives.
	seed := core.NewLabeledSet(dim)

	it := positives.Iterator()
	for i := 0; i < 2; i++ {
		id := core.ID(it.Next())
		vec, _ := store.GetVector(id)
		if _, err := seed.Add(id, vec, core.Positive); err != nil {
			log.Fatal(err)
		}
	}

	for id, added := core.ID(0), 0; added < 3; id++ {
		if positives.Contains(uint32(id)) {
			continue
		}
		vec, _ := store.GetVector(id)
		if _, err := seed.Add(id, vec, core.Negative); err != nil {
			log.Fatal(err)
		}
		added++
	}

	loop, err := seals.NewLoop(seed, idx, store, orc,
		logreg.Factory(), strategy.NewMaxEntropy(), scorer,
		seals.WithK(5),
		seals.WithBatchSize(4),
		seals.WithRoundBudget(3),
	)
	if err != nil {
		log.Fatal(err)
	}

	result, err := loop.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("rounds: %d labeled: %d\n", result.Rounds, result.Labeled.Len())
	// Output: rounds: 3 labeled: 17
}
