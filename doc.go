// Package seals implements similarity-search-guided active learning
// for extremely imbalanced binary classification.
//
// Labeling a rare concept out of a web-scale corpus is dominated by
// the cost of finding candidates worth labeling: when one item in ten
// thousand is positive, uniform sampling feeds the annotator noise.
// SEALS (Similarity search of Embeddings for Active Learning at Scale)
// restricts each selection round to the k-nearest neighbors of the
// positives found so far, so the candidate pool grows around the
// concept instead of spanning the corpus.
//
// # Quick Start
//
// Build an index and embedding store, then run the loop for one class:
//
//	ctx := context.Background()
//
//	store, _ := embedstore.MemoryFromRows(dim, vectors)
//
//	idx, _ := flat.New(func(o *flat.Options) {
//	    o.Dimension = dim
//	})
//	_, _ = idx.BatchInsert(vectors)
//
//	orc, _ := classIndex.Oracle("rare-bird")
//	scorer, _ := eval.NewScorer(testSet)
//
//	loop, _ := seals.NewLoop(seed, idx, store, orc,
//	    logreg.Factory(), strategy.NewMaxEntropy(), scorer,
//	    seals.WithK(100),
//	    seals.WithBatchSize(100),
//	    seals.WithRoundBudget(20),
//	)
//
//	result, err := loop.Run(ctx)
//
// Each round grows the pool from the known positives, retrains a fresh
// classifier on everything labeled so far, scores the held-out split,
// and sends the most uncertain pool members to the oracle.
//
// # Experiments
//
// The runner package executes repetitions across classes in parallel
// and aggregates trajectories into a report:
//
//	r, _ := runner.New(idx, store, classIndex,
//	    runner.StaticScorer(scorer),
//	    []runner.Algorithm{runner.SEALS(logreg.Factory())},
//	    func(o *runner.Options) {
//	        o.Repetitions = 5
//	        o.Parallelism = 4
//	    },
//	)
//	rep, _ := r.Run(ctx)
//
//	writer := report.NewWriter(blobStore)
//	_, _ = writer.Publish(ctx, "reports/r-00001.json", rep)
//
// Baselines NewMaxEntAll, NewRandomAll, and NewFullSupervision share
// the loop's contract, so a single runner configuration compares SEALS
// against whole-corpus selection and the fully supervised skyline.
package seals
