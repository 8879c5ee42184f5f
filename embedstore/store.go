package embedstore

import (
	"fmt"

	"github.com/hupe1980/seals/core"
)

// Store provides read access to a dense row-major embedding matrix.
// IDs are row numbers: the vector for id i occupies rows[i*dim:(i+1)*dim].
//
// Implementations must be safe for concurrent reads.
type Store interface {
	// GetVector returns the embedding for id. The returned slice may
	// alias internal storage and must not be modified.
	GetVector(id core.ID) ([]float32, bool)

	// Dimension returns the embedding width.
	Dimension() int

	// Len returns the number of stored embeddings.
	Len() int
}

// Memory is an in-memory Store backed by a single contiguous slab.
type Memory struct {
	dim  int
	data []float32
}

// Compile-time check
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store for dim-wide embeddings.
func NewMemory(dim int) (*Memory, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrInvalidShape, dim)
	}

	return &Memory{dim: dim}, nil
}

// MemoryFromRows builds an in-memory store holding the given rows.
func MemoryFromRows(dim int, rows [][]float32) (*Memory, error) {
	m, err := NewMemory(dim)
	if err != nil {
		return nil, err
	}

	if err := m.Append(rows...); err != nil {
		return nil, err
	}

	return m, nil
}

// Append adds vectors at the end of the store, assigning them the next
// row numbers. If any vector has the wrong width the store is left
// unchanged.
func (m *Memory) Append(vectors ...[]float32) error {
	for _, vec := range vectors {
		if len(vec) != m.dim {
			return &core.ErrDimensionMismatch{Expected: m.dim, Actual: len(vec)}
		}
	}

	for _, vec := range vectors {
		m.data = append(m.data, vec...)
	}

	return nil
}

// GetVector returns the embedding stored at row id. The slice aliases
// the slab and must not be modified.
func (m *Memory) GetVector(id core.ID) ([]float32, bool) {
	idx := int(id)
	if idx >= m.Len() {
		return nil, false
	}

	off := idx * m.dim

	return m.data[off : off+m.dim : off+m.dim], true
}

// Dimension returns the embedding width.
func (m *Memory) Dimension() int {
	return m.dim
}

// Len returns the number of stored embeddings.
func (m *Memory) Len() int {
	return len(m.data) / m.dim
}
