// Package runner executes active-learning experiments: repetitions
// across target classes and algorithms, sharing one read-only index,
// embedding store, and class index.
//
// Each (class, repetition) pair samples a single seed set and every
// configured algorithm starts from a copy of it, so trajectories are
// directly comparable. Repetitions run in parallel under an errgroup;
// a repetition abandoned by a seed or training failure is recorded
// and excluded from aggregation without disturbing the others, while
// an index failure cancels the run.
package runner
