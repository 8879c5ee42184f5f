package core

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// LabeledSet is the growing collection of labeled examples owned by a
// single repetition of the learning loop. Rows are stored in insertion
// order as parallel slices; a roaring bitmap guards against duplicate
// IDs.
//
// The set keeps references to the vectors it is given and never mutates
// them. Callers must treat vectors as immutable once added.
//
// A LabeledSet is not safe for concurrent use. Repetitions each own
// their set.
type LabeledSet struct {
	dim       int
	vectors   [][]float32
	labels    []Label
	ids       []ID
	members   *roaring.Bitmap
	positives int
}

// NewLabeledSet creates an empty labeled set for vectors of the given
// dimension.
func NewLabeledSet(dim int) *LabeledSet {
	return &LabeledSet{
		dim:     dim,
		members: roaring.New(),
	}
}

// Dimension returns the expected vector dimension.
func (s *LabeledSet) Dimension() int { return s.dim }

// Add appends one labeled example. It reports whether the example was
// added: a duplicate ID is silently skipped (added=false, no error) so
// a batch containing an already-labeled item never produces two rows.
// A vector of the wrong dimension fails without mutating the set.
func (s *LabeledSet) Add(id ID, vector []float32, label Label) (bool, error) {
	if len(vector) != s.dim {
		return false, &ErrDimensionMismatch{Expected: s.dim, Actual: len(vector)}
	}
	if s.members.Contains(uint32(id)) {
		return false, nil
	}

	s.vectors = append(s.vectors, vector)
	s.labels = append(s.labels, label)
	s.ids = append(s.ids, id)
	s.members.Add(uint32(id))
	if label == Positive {
		s.positives++
	}

	return true, nil
}

// AddAll adds a batch of examples, returning how many were actually
// added. It stops at the first dimension error.
func (s *LabeledSet) AddAll(examples []Example) (int, error) {
	var added int
	for _, ex := range examples {
		ok, err := s.Add(ex.ID, ex.Vector, ex.Label)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Contains reports whether id is already labeled.
func (s *LabeledSet) Contains(id ID) bool {
	return s.members.Contains(uint32(id))
}

// Len returns the number of labeled examples.
func (s *LabeledSet) Len() int { return len(s.ids) }

// Positives returns the number of examples labeled Positive.
func (s *LabeledSet) Positives() int { return s.positives }

// HasBothClasses reports whether the set holds at least one positive
// and one negative example. Classifier training requires both.
func (s *LabeledSet) HasBothClasses() bool {
	return s.positives > 0 && s.positives < len(s.ids)
}

// IDs returns a copy of the member bitmap.
func (s *LabeledSet) IDs() *roaring.Bitmap {
	return s.members.Clone()
}

// PositiveIDs returns a bitmap of all IDs labeled Positive.
func (s *LabeledSet) PositiveIDs() *roaring.Bitmap {
	b := roaring.New()
	for i, l := range s.labels {
		if l == Positive {
			b.Add(uint32(s.ids[i]))
		}
	}
	return b
}

// Vectors returns the stored vectors in insertion order. The returned
// slice is a view; callers must not mutate it.
func (s *LabeledSet) Vectors() [][]float32 { return s.vectors }

// Labels returns the stored labels in insertion order. The returned
// slice is a view; callers must not mutate it.
func (s *LabeledSet) Labels() []Label { return s.labels }

// Rows returns the IDs in insertion order. The returned slice is a
// view; callers must not mutate it.
func (s *LabeledSet) Rows() []ID { return s.ids }

// Clone returns an independent copy. Vector backing arrays are shared
// since vectors are immutable.
func (s *LabeledSet) Clone() *LabeledSet {
	return &LabeledSet{
		dim:       s.dim,
		vectors:   slices.Clone(s.vectors),
		labels:    slices.Clone(s.labels),
		ids:       slices.Clone(s.ids),
		members:   s.members.Clone(),
		positives: s.positives,
	}
}
