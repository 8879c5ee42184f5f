package embedstore

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/seals/blobstore"
	"github.com/hupe1980/seals/codec"
	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/resource"
)

// Options configure shard loading.
type Options struct {
	// Codec decodes manifest blobs.
	Codec codec.Codec

	// Parallelism caps concurrent shard fetches. Zero or negative
	// means one goroutine per shard.
	Parallelism int

	// Controller throttles shard transfer bandwidth. Nil means
	// unlimited.
	Controller *resource.Controller
}

// DefaultOptions contains the default configuration options for shard
// loading.
var DefaultOptions = Options{
	Codec: codec.Default,
}

// Manifest lists the shard blobs of a corpus in row order.
type Manifest struct {
	Shards []string `json:"shards"`
}

// Load fetches the shard blob name from bs and materializes it in
// memory. Use OpenShard instead to map a local uncompressed shard
// without copying it.
func Load(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *Options)) (*Memory, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return load(ctx, bs, name, opts.Controller)
}

func load(ctx context.Context, bs blobstore.BlobStore, name string, rc *resource.Controller) (*Memory, error) {
	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return nil, fmt.Errorf("load shard %q: %w", name, err)
	}

	if err := rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}

	m, err := ReadShard(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("shard %q: %w", name, err)
	}

	return m, nil
}

// LoadAll fetches the named shards concurrently and concatenates them
// in the given order. All shards must share one dimension.
func LoadAll(ctx context.Context, bs blobstore.BlobStore, names []string, optFns ...func(o *Options)) (*Memory, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return loadAll(ctx, bs, names, opts)
}

// LoadManifest reads the manifest blob, fetches every shard it lists
// concurrently, and concatenates them in manifest order.
func LoadManifest(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *Options)) (*Memory, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return nil, fmt.Errorf("load manifest %q: %w", name, err)
	}

	var manifest Manifest
	if err := opts.Codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %q: %w", name, err)
	}

	m, err := loadAll(ctx, bs, manifest.Shards, opts)
	if err != nil {
		return nil, fmt.Errorf("manifest %q: %w", name, err)
	}

	return m, nil
}

func loadAll(ctx context.Context, bs blobstore.BlobStore, names []string, opts Options) (*Memory, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no shards to load", ErrInvalidShape)
	}

	parts := make([]*Memory, len(names))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}

	for i, name := range names {
		g.Go(func() error {
			part, err := load(gctx, bs, name, opts.Controller)
			if err != nil {
				return err
			}

			parts[i] = part

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := parts[0].dim
	total := 0

	for _, part := range parts {
		if part.dim != dim {
			return nil, &core.ErrDimensionMismatch{Expected: dim, Actual: part.dim}
		}

		total += len(part.data)
	}

	out := &Memory{dim: dim, data: make([]float32, 0, total)}
	for _, part := range parts {
		out.data = append(out.data, part.data...)
	}

	return out, nil
}
