// Package testutil provides testing utilities for the learning
// harness.
//
// This package is intended for use in tests and benchmarks only.
// It provides a thread-safe seeded RNG and generators for synthetic
// embedding corpora, including corpora with a planted positive class
// for end-to-end loop tests.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vectors := rng.UniformVectors(1000, 64)
//
// # Planted Corpus
//
//	vectors, positives := rng.PlantedCorpus(1000, 64, 10, 0.05)
package testutil
