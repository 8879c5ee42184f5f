// Package index provides the nearest-neighbor index interfaces that
// candidate pools are grown from.
//
// Two implementations are provided:
//
//   - flat: Exact nearest neighbor search (brute force)
//   - hnsw: Hierarchical Navigable Small World graph for fast
//     approximate search
//
// # Index Selection
//
// Choose based on corpus size and accuracy requirements:
//
//   - flat: <100K vectors, 100% recall required, reference semantics
//   - hnsw: larger corpora where approximate neighborhoods are
//     acceptable (the usual case for candidate-pool expansion)
//
// # Contract
//
// Indexes are append-only during an experiment: vectors are inserted
// once while building, and KNNSearch is safe for concurrent use
// afterwards. Results are sorted by ascending distance with ties broken
// by ascending ID so repeated runs select identical neighborhoods.
package index
