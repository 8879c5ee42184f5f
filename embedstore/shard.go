package embedstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/internal/hash"
)

// Compression selects the payload codec of a shard file.
type Compression uint16

const (
	// CompressionNone stores the payload verbatim. Only uncompressed
	// shards can be memory-mapped.
	CompressionNone Compression = iota
	// CompressionZstd compresses the payload with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the payload with lz4.
	CompressionLZ4
)

// String implements the fmt.Stringer interface.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(c))
	}
}

const (
	// shardMagic spells "SEAS" when read as little-endian bytes.
	shardMagic uint32 = 0x53454153

	// shardVersion is the current shard format version.
	shardVersion uint16 = 1

	// headerSize is the fixed byte length of the shard header. It is a
	// multiple of four, which keeps the payload aligned for float32
	// views over a mapping.
	headerSize = 24
)

var (
	// ErrBadMagic is returned when a shard does not start with the
	// expected magic bytes.
	ErrBadMagic = errors.New("bad shard magic")

	// ErrUnsupportedVersion is returned for shard versions this build
	// cannot read.
	ErrUnsupportedVersion = errors.New("unsupported shard version")

	// ErrUnknownCompression is returned when the shard flags name a
	// compression codec this build does not know.
	ErrUnknownCompression = errors.New("unknown shard compression")

	// ErrChecksum is returned when the stored payload does not match
	// the checksum recorded in the header.
	ErrChecksum = errors.New("shard checksum mismatch")

	// ErrInvalidShape is returned for dimension or count values that
	// cannot describe a real shard.
	ErrInvalidShape = errors.New("invalid shard shape")

	// ErrCompressedShard is returned when a compressed shard is opened
	// through a path that requires verbatim payloads.
	ErrCompressedShard = errors.New("shard payload is compressed")
)

// shardHeader is the fixed-size header at the start of every shard.
// The checksum covers the stored payload bytes, compressed or not.
type shardHeader struct {
	Magic    uint32
	Version  uint16
	Flags    uint16
	Dim      uint32
	Count    uint64
	Checksum uint32
}

func (h shardHeader) encode() [headerSize]byte {
	var buf [headerSize]byte

	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dim)
	binary.LittleEndian.PutUint64(buf[12:20], h.Count)
	binary.LittleEndian.PutUint32(buf[20:24], h.Checksum)

	return buf
}

func decodeShardHeader(buf []byte) (shardHeader, error) {
	if len(buf) < headerSize {
		return shardHeader{}, fmt.Errorf("shard header: %w", io.ErrUnexpectedEOF)
	}

	h := shardHeader{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Version:  binary.LittleEndian.Uint16(buf[4:6]),
		Flags:    binary.LittleEndian.Uint16(buf[6:8]),
		Dim:      binary.LittleEndian.Uint32(buf[8:12]),
		Count:    binary.LittleEndian.Uint64(buf[12:20]),
		Checksum: binary.LittleEndian.Uint32(buf[20:24]),
	}

	if h.Magic != shardMagic {
		return shardHeader{}, fmt.Errorf("%w: got 0x%08x", ErrBadMagic, h.Magic)
	}

	if h.Version != shardVersion {
		return shardHeader{}, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, h.Version)
	}

	if h.Dim == 0 {
		return shardHeader{}, fmt.Errorf("%w: zero dimension", ErrInvalidShape)
	}

	if Compression(h.Flags) > CompressionLZ4 {
		return shardHeader{}, fmt.Errorf("%w: flags 0x%04x", ErrUnknownCompression, h.Flags)
	}

	return h, nil
}

// payloadSize returns the raw payload length in bytes, rejecting
// shards too large to address in memory.
func (h shardHeader) payloadSize() (int, error) {
	size := uint64(h.Dim) * 4
	if h.Count > 0 && size > math.MaxInt/h.Count {
		return 0, fmt.Errorf("%w: %d vectors of dimension %d", ErrInvalidShape, h.Count, h.Dim)
	}

	return int(h.Count * size), nil
}

// WriteShard writes vectors to w as a shard. All vectors must be
// dim wide.
func WriteShard(w io.Writer, dim int, vectors [][]float32, compression Compression) error {
	if dim <= 0 || dim > math.MaxUint32 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidShape, dim)
	}

	for _, vec := range vectors {
		if len(vec) != dim {
			return &core.ErrDimensionMismatch{Expected: dim, Actual: len(vec)}
		}
	}

	raw := make([]byte, len(vectors)*dim*4)

	off := 0

	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(v))
			off += 4
		}
	}

	stored, err := compressPayload(raw, compression)
	if err != nil {
		return err
	}

	h := shardHeader{
		Magic:    shardMagic,
		Version:  shardVersion,
		Flags:    uint16(compression),
		Dim:      uint32(dim),
		Count:    uint64(len(vectors)),
		Checksum: hash.CRC32C(stored),
	}

	hbuf := h.encode()
	if _, err := w.Write(hbuf[:]); err != nil {
		return fmt.Errorf("write shard header: %w", err)
	}

	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("write shard payload: %w", err)
	}

	return nil
}

// ReadShard reads a shard from r into an in-memory store. The payload
// checksum is always verified; compressed payloads are decompressed.
func ReadShard(r io.Reader) (*Memory, error) {
	var hbuf [headerSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("shard header: %w", io.ErrUnexpectedEOF)
		}

		return nil, fmt.Errorf("read shard header: %w", err)
	}

	h, err := decodeShardHeader(hbuf[:])
	if err != nil {
		return nil, err
	}

	stored, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read shard payload: %w", err)
	}

	need, err := h.payloadSize()
	if err != nil {
		return nil, err
	}

	compression := Compression(h.Flags)

	// A verbatim payload has a known size, so truncation is reported
	// as such. Truncated compressed payloads surface as a checksum
	// mismatch instead.
	if compression == CompressionNone && len(stored) != need {
		return nil, fmt.Errorf("shard payload has %d bytes, want %d: %w", len(stored), need, io.ErrUnexpectedEOF)
	}

	if got := hash.CRC32C(stored); got != h.Checksum {
		return nil, fmt.Errorf("%w: crc32c 0x%08x, header says 0x%08x", ErrChecksum, got, h.Checksum)
	}

	raw, err := decompressPayload(stored, compression)
	if err != nil {
		return nil, err
	}

	if len(raw) != need {
		return nil, fmt.Errorf("shard payload decompressed to %d bytes, want %d: %w", len(raw), need, io.ErrUnexpectedEOF)
	}

	return &Memory{dim: int(h.Dim), data: decodeFloats(raw)}, nil
}

// decodeFloats decodes a little-endian float32 payload into a slab.
func decodeFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return out
}

func compressPayload(raw []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer enc.Close()

		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer

		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}

		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}

		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, compression)
	}
}

func decompressPayload(stored []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return stored, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()

		raw, err := dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}

		return raw, nil
	case CompressionLZ4:
		raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(stored)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}

		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, compression)
	}
}
