package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/seals/blobstore"
	"github.com/hupe1980/seals/codec"
)

// CompressedSuffix marks report blobs with a zstd-compressed payload.
// Readers decide by suffix, so compressed and plain reports can share
// a prefix.
const CompressedSuffix = ".zst"

// Options configure report persistence.
type Options struct {
	// Codec encodes report payloads. Both built-in codecs emit JSON,
	// so a reader decodes blobs written with either.
	Codec codec.Codec

	// Compress stores payloads zstd-compressed. Write appends
	// CompressedSuffix to the blob name.
	Compress bool
}

// DefaultOptions contains the default configuration options for
// report persistence.
var DefaultOptions = Options{
	Codec: codec.Default,
}

// Writer persists experiment reports to a blob store.
type Writer struct {
	bs   blobstore.BlobStore
	opts Options
}

// NewWriter creates a report writer on top of bs.
func NewWriter(bs blobstore.BlobStore, optFns ...func(o *Options)) *Writer {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Writer{bs: bs, opts: opts}
}

// Write stores the report under name and returns the blob name
// actually written, which carries CompressedSuffix when compression
// is on.
func (w *Writer) Write(ctx context.Context, name string, r *Report) (string, error) {
	data, err := w.opts.Codec.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report %q: %w", name, err)
	}

	if w.opts.Compress {
		data, err = compress(data)
		if err != nil {
			return "", fmt.Errorf("compress report %q: %w", name, err)
		}

		if !strings.HasSuffix(name, CompressedSuffix) {
			name += CompressedSuffix
		}
	}

	if err := w.bs.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("store report %q: %w", name, err)
	}

	return name, nil
}

// Publish writes the report, then points blobstore.CurrentKey at the
// written blob. On a commit store the pointer flip is a conditional
// write and loses with ErrConcurrentCommit; on a plain store it is an
// ordinary blob write, which is all a local run needs.
func (w *Writer) Publish(ctx context.Context, name string, r *Report) (string, error) {
	written, err := w.Write(ctx, name, r)
	if err != nil {
		return "", err
	}

	if err := w.bs.Put(ctx, blobstore.CurrentKey, []byte(written)); err != nil {
		return "", fmt.Errorf("publish %q: %w", written, err)
	}

	return written, nil
}

// Reader loads reports from a blob store.
type Reader struct {
	bs   blobstore.BlobStore
	opts Options
}

// NewReader creates a report reader on top of bs.
func NewReader(bs blobstore.BlobStore, optFns ...func(o *Options)) *Reader {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Reader{bs: bs, opts: opts}
}

// Read loads the report stored under name, decompressing when the
// name carries CompressedSuffix.
func (r *Reader) Read(ctx context.Context, name string) (*Report, error) {
	data, err := blobstore.ReadAll(ctx, r.bs, name)
	if err != nil {
		return nil, fmt.Errorf("load report %q: %w", name, err)
	}

	if strings.HasSuffix(name, CompressedSuffix) {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress report %q: %w", name, err)
		}
	}

	var rep Report
	if err := r.opts.Codec.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report %q: %w", name, err)
	}

	return &rep, nil
}

// Current resolves blobstore.CurrentKey and reads the report it
// points at. It returns the report together with its blob name.
func (r *Reader) Current(ctx context.Context) (*Report, string, error) {
	target, err := blobstore.ReadAll(ctx, r.bs, blobstore.CurrentKey)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", blobstore.CurrentKey, err)
	}

	name := string(target)

	rep, err := r.Read(ctx, name)
	if err != nil {
		return nil, "", err
	}

	return rep, name, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return dec.DecodeAll(data, nil)
}
