package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// It aliases os.ErrNotExist so the local backend can surface stat
// errors unchanged; match it with errors.Is.
var ErrNotFound = os.ErrNotExist

// CurrentKey is the reserved blob name holding the name of the most
// recently published report. Stores with commit semantics intercept
// it; plain stores keep it as an ordinary blob.
const CurrentKey = "CURRENT"

// BlobStore stores immutable named blobs. Implementations must be
// safe for concurrent use.
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create opens a new blob for streaming writes. The blob becomes
	// visible only when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob in one shot, atomically replacing any
	// previous content under the same name.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the sorted blob names under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether a blob exists without opening it.
	Exists(ctx context.Context, name string) (bool, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	// ReadAt reads len(p) bytes at offset off. A short read at the
	// end of the blob returns io.EOF.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the blob length in bytes.
	Size() int64

	Close() error
}

// WritableBlob is a streaming write handle.
type WritableBlob interface {
	io.Writer
	io.Closer

	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// Mappable is implemented by blobs that expose their contents without
// copying. The slice is valid until the blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// Fetcher is implemented by stores with a whole-blob download path
// faster than sequential ReadAt calls.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// ReadAll fetches an entire blob into a caller-owned byte slice. It
// prefers the store's Fetch path, then a blob's zero-copy view, and
// falls back to a single ReadAt.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f, ok := store.(Fetcher); ok {
		return f.Fetch(ctx, name)
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	if m, ok := blob.(Mappable); ok {
		if mapped, err := m.Bytes(); err == nil {
			out := make([]byte, len(mapped))
			copy(out, mapped)

			return out, nil
		}
	}

	data := make([]byte, blob.Size())

	n, err := blob.ReadAt(ctx, data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if int64(n) != blob.Size() {
		return nil, io.ErrUnexpectedEOF
	}

	return data, nil
}
