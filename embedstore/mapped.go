package embedstore

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/internal/hash"
	"github.com/hupe1980/seals/internal/mmap"
)

// hostLittleEndian reports whether float views can alias mapped bytes
// directly. Big-endian hosts decode through a copy instead.
var hostLittleEndian = func() bool {
	var x uint16 = 1

	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// Mapped is a read-only Store backed by a memory-mapped shard file.
// Lookups return views into the mapping, so no row is ever copied.
//
// Vectors handed out by GetVector alias the mapping and must not be
// used after Close.
type Mapped struct {
	mapping *mmap.Mapping
	data    []float32
	dim     int
	count   int
}

// Compile-time check
var _ Store = (*Mapped)(nil)

// OpenShard memory-maps the shard file at path. Only uncompressed
// shards can be mapped; ErrCompressedShard tells the caller to fall
// back to ReadShard. The checksum is verified once at open, which
// faults the payload in.
func OpenShard(path string) (*Mapped, error) {
	mapping, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", path, err)
	}

	m, err := newMapped(mapping)
	if err != nil {
		mapping.Close()

		return nil, fmt.Errorf("shard %s: %w", path, err)
	}

	return m, nil
}

func newMapped(mapping *mmap.Mapping) (*Mapped, error) {
	h, err := decodeShardHeader(mapping.Bytes())
	if err != nil {
		return nil, err
	}

	if compression := Compression(h.Flags); compression != CompressionNone {
		return nil, fmt.Errorf("%w (%s)", ErrCompressedShard, compression)
	}

	need, err := h.payloadSize()
	if err != nil {
		return nil, err
	}

	payload := mapping.Bytes()[headerSize:]
	if len(payload) != need {
		return nil, fmt.Errorf("shard payload has %d bytes, want %d: %w", len(payload), need, io.ErrUnexpectedEOF)
	}

	if got := hash.CRC32C(payload); got != h.Checksum {
		return nil, fmt.Errorf("%w: crc32c 0x%08x, header says 0x%08x", ErrChecksum, got, h.Checksum)
	}

	m := &Mapped{mapping: mapping, dim: int(h.Dim), count: int(h.Count)}

	if m.count > 0 {
		if hostLittleEndian {
			// The header length is a multiple of four, and the mapping
			// starts page-aligned, so the view is aligned for float32.
			m.data = unsafe.Slice((*float32)(unsafe.Pointer(&payload[0])), m.count*m.dim)
		} else {
			m.data = decodeFloats(payload)
		}
	}

	// Pool growth touches scattered rows, not a sequential sweep.
	_ = mapping.Advise(mmap.AccessRandom)

	return m, nil
}

// GetVector returns the embedding stored at row id. The slice aliases
// the mapping and must not be modified.
func (m *Mapped) GetVector(id core.ID) ([]float32, bool) {
	idx := int(id)
	if idx >= m.count {
		return nil, false
	}

	off := idx * m.dim

	return m.data[off : off+m.dim : off+m.dim], true
}

// Dimension returns the embedding width.
func (m *Mapped) Dimension() int {
	return m.dim
}

// Len returns the number of stored embeddings.
func (m *Mapped) Len() int {
	return m.count
}

// Close unmaps the shard. Idempotent.
func (m *Mapped) Close() error {
	return m.mapping.Close()
}
