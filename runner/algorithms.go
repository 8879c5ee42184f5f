package runner

import (
	"github.com/hupe1980/seals"
	"github.com/hupe1980/seals/classifier"
	"github.com/hupe1980/seals/strategy"
)

// SEALS is the pool-restricted loop with max-entropy selection.
func SEALS(factory classifier.Factory) Algorithm {
	return Algorithm{
		name: "seals-" + strategy.NewMaxEntropy().Name(),
		build: func(p buildParams) (seals.Algorithm, error) {
			return seals.NewLoop(p.seed, p.idx, p.store, p.orc, factory,
				strategy.NewMaxEntropy(), p.scorer, p.opts...)
		},
	}
}

// SEALSWith is the pool-restricted loop with a custom selection
// strategy, built fresh per repetition so strategies may carry state.
func SEALSWith(factory classifier.Factory, strat func(rngSeed int64) strategy.Strategy) Algorithm {
	return Algorithm{
		name: "seals-" + strat(0).Name(),
		build: func(p buildParams) (seals.Algorithm, error) {
			return seals.NewLoop(p.seed, p.idx, p.store, p.orc, factory,
				strat(p.rngSeed), p.scorer, p.opts...)
		},
	}
}

// MaxEntAll is the whole-corpus max-entropy baseline: identical to
// SEALS except candidates come from the entire unlabeled corpus.
func MaxEntAll(factory classifier.Factory) Algorithm {
	return Algorithm{
		name: strategy.NewMaxEntropy().Name() + "-all",
		build: func(p buildParams) (seals.Algorithm, error) {
			return seals.NewMaxEntAll(p.seed, p.store, p.orc, factory, p.scorer, p.opts...)
		},
	}
}

// RandomAll is the whole-corpus uniform-sampling baseline.
func RandomAll(factory classifier.Factory) Algorithm {
	return Algorithm{
		name: "random-all",
		build: func(p buildParams) (seals.Algorithm, error) {
			return seals.NewRandomAll(p.seed, p.store, p.orc, factory, p.scorer, p.rngSeed, p.opts...)
		},
	}
}

// FullSupervision is the skyline baseline trained on the fully
// labeled corpus.
func FullSupervision(factory classifier.Factory) Algorithm {
	return Algorithm{
		name: "full-supervision",
		build: func(p buildParams) (seals.Algorithm, error) {
			return seals.NewFullSupervision(p.store, p.orc, factory, p.scorer, p.opts...)
		},
	}
}
