// Package mmap provides read-only memory-mapped file access.
//
// Embedding shards can be hundreds of megabytes; mapping them keeps
// vector reads zero-copy and leaves paging to the kernel. A Mapping
// covers a whole file, a Region is a borrowed view into part of it
// (the payload behind a shard header, for example).
//
// Unix platforms use mmap(2) with madvise(2) hints; Windows uses
// CreateFileMapping/MapViewOfFile and treats hints as no-ops.
package mmap
