package embedstore

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seals/core"
	"github.com/hupe1980/seals/testutil"
)

func encodeShard(t *testing.T, dim int, vectors [][]float32, compression Compression) []byte {
	t.Helper()

	var buf bytes.Buffer

	require.NoError(t, WriteShard(&buf, dim, vectors, compression))

	return buf.Bytes()
}

func TestShardRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(4711)
	vectors := rng.UniformVectors(100, 8)

	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			data := encodeShard(t, 8, vectors, compression)

			m, err := ReadShard(bytes.NewReader(data))
			require.NoError(t, err)

			assert.Equal(t, 8, m.Dimension())
			assert.Equal(t, 100, m.Len())

			for i, want := range vectors {
				got, ok := m.GetVector(core.ID(i))
				require.True(t, ok)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestShardCompression(t *testing.T) {
	// A corpus of identical rows compresses to a fraction of its raw
	// size, so the flag demonstrably reaches the payload.
	row := []float32{0.25, -1, 3.5, 42}
	vectors := make([][]float32, 1000)

	for i := range vectors {
		vectors[i] = row
	}

	plain := encodeShard(t, 4, vectors, CompressionNone)
	compressed := encodeShard(t, 4, vectors, CompressionZstd)

	assert.Less(t, len(compressed), len(plain))

	m, err := ReadShard(bytes.NewReader(compressed))
	require.NoError(t, err)
	assert.Equal(t, 1000, m.Len())

	got, ok := m.GetVector(999)
	require.True(t, ok)
	assert.Equal(t, row, got)
}

func TestShardEmpty(t *testing.T) {
	data := encodeShard(t, 4, nil, CompressionNone)
	assert.Len(t, data, 24)

	m, err := ReadShard(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 4, m.Dimension())
	assert.Zero(t, m.Len())

	_, ok := m.GetVector(0)
	assert.False(t, ok)
}

func TestShardCorruption(t *testing.T) {
	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(16, 4)
	base := encodeShard(t, 4, vectors, CompressionNone)

	corrupt := func(mutate func(data []byte) []byte) io.Reader {
		data := append([]byte(nil), base...)

		return bytes.NewReader(mutate(data))
	}

	t.Run("Bad magic", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			data[0] ^= 0xFF

			return data
		}))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("Unsupported version", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			data[4] = 99

			return data
		}))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("Unknown compression", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			data[6] = 9

			return data
		}))
		assert.ErrorIs(t, err, ErrUnknownCompression)
	})

	t.Run("Flipped payload byte", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			data[len(data)-1] ^= 0xFF

			return data
		}))
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("Truncated header", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			return data[:10]
		}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("Truncated payload", func(t *testing.T) {
		_, err := ReadShard(corrupt(func(data []byte) []byte {
			return data[:len(data)-8]
		}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("Truncated compressed payload", func(t *testing.T) {
		// The compressed length is not recorded, so truncation shows
		// up as a checksum mismatch.
		data := encodeShard(t, 4, vectors, CompressionZstd)

		_, err := ReadShard(bytes.NewReader(data[:len(data)-4]))
		assert.ErrorIs(t, err, ErrChecksum)
	})
}

func TestWriteShardRejectsMixedWidths(t *testing.T) {
	var buf bytes.Buffer

	err := WriteShard(&buf, 4, [][]float32{
		{1, 2, 3, 4},
		{1, 2, 3},
	}, CompressionNone)

	var mismatch *core.ErrDimensionMismatch

	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)
	assert.Zero(t, buf.Len())
}

func TestWriteShardRejectsInvalidDimension(t *testing.T) {
	var buf bytes.Buffer

	err := WriteShard(&buf, 0, nil, CompressionNone)
	assert.ErrorIs(t, err, ErrInvalidShape)
}
