// Package visited provides the reusable visited-node set for graph
// traversal.
package visited

import "github.com/hupe1980/seals/core"

// Set tracks visited nodes using a bitset and a dirty list for fast
// reset between queries.
type Set struct {
	bits  []uint64
	dirty []core.ID
}

// New creates a visited set sized for capacity nodes.
func New(capacity int) *Set {
	return &Set{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]core.ID, 0, 128),
	}
}

// Visit marks a node as visited.
func (v *Set) Visit(id core.ID) {
	wordIdx := int(id >> 6)
	bitMask := uint64(1) << (id & 63)

	if wordIdx >= len(v.bits) {
		v.grow(wordIdx + 1)
	}

	if v.bits[wordIdx]&bitMask == 0 {
		v.bits[wordIdx] |= bitMask
		v.dirty = append(v.dirty, id)
	}
}

// Visited reports whether the node has been visited.
func (v *Set) Visited(id core.ID) bool {
	wordIdx := int(id >> 6)
	if wordIdx >= len(v.bits) {
		return false
	}
	return v.bits[wordIdx]&(uint64(1)<<(id&63)) != 0
}

// Reset clears the visited status for all nodes visited since the last
// reset.
func (v *Set) Reset() {
	for _, id := range v.dirty {
		wordIdx := int(id >> 6)
		bitMask := uint64(1) << (id & 63)
		v.bits[wordIdx] &^= bitMask
	}
	v.dirty = v.dirty[:0]
}

func (v *Set) grow(newLen int) {
	currentLen := len(v.bits)
	newCap := currentLen * 2
	if newCap < newLen {
		newCap = newLen
	}

	newBits := make([]uint64, newCap)
	copy(newBits, v.bits)
	v.bits = newBits
}
