// Package embedstore provides dense embedding storage for candidate
// expansion and scoring.
//
// Embeddings live in row-major float32 shards, either held in memory
// (Memory) or memory-mapped from disk (Mapped). Shards use a
// checksummed binary format with optional zstd or lz4 compression and
// can be fetched from any blobstore backend, one at a time or in
// parallel through a manifest.
package embedstore
