package mmap

// Region is a borrowed view into part of a Mapping. The parent owns
// the memory; the region is invalid once the parent closes.
type Region struct {
	parent *Mapping
	offset int
	size   int
}

// Region creates a view covering [offset, offset+size).
func (m *Mapping) Region(offset, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	if offset < 0 || size < 0 || offset+size > m.size {
		return nil, ErrOutOfBounds
	}

	return &Region{parent: m, offset: offset, size: size}, nil
}

// Bytes returns the region's contents, or nil once the parent is
// closed.
func (r *Region) Bytes() []byte {
	if r.parent.closed.Load() {
		return nil
	}

	return r.parent.data[r.offset : r.offset+r.size]
}

// Size returns the region length in bytes.
func (r *Region) Size() int {
	return r.size
}

// Advise hints the kernel about accesses limited to this region.
func (r *Region) Advise(pattern AccessPattern) error {
	if r.parent.closed.Load() {
		return ErrClosed
	}

	return osAdvise(r.parent.data[r.offset:r.offset+r.size], pattern)
}
