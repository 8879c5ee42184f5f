// Package blobstore abstracts where experiment artifacts live:
// embedding shards, class indexes and run reports.
//
// All artifacts are immutable blobs. Put replaces a blob atomically;
// Create streams one into place and publishes it on Close. Names may
// contain slashes, which backends map to directories or key prefixes.
//
// # Backends
//
//   - LocalStore: filesystem, memory-mapped reads, temp-file + rename
//     writes
//   - MemoryStore: map-backed, for tests
//   - minio.Store: MinIO and other S3-compatible endpoints
//   - s3.Store: AWS S3 with multipart uploads and parallel downloads
//
// s3.CommitStore layers a DynamoDB compare-and-swap over any store so
// the report CURRENT pointer can be flipped safely by concurrent
// publishers.
package blobstore
