// Package s3 backs a blobstore.BlobStore with AWS S3.
//
// Uploads go through the transfer manager, so shards larger than the
// part size stream as multipart uploads; downloads fan out ranged
// GETs the same way. Blob reads issue range requests and never buffer
// the whole object.
//
// CommitStore adds what S3 cannot do alone: an atomic compare-and-swap
// on the report CURRENT pointer, implemented as a DynamoDB conditional
// write. Concurrent publishers race on the pointer; exactly one wins,
// the rest get ErrConcurrentCommit and can retry on a fresh read.
package s3
