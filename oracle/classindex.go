package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/seals/blobstore"
	"github.com/hupe1980/seals/codec"
	"github.com/hupe1980/seals/core"
)

// Options configure class-index persistence.
type Options struct {
	// Codec encodes/decodes the class → members mapping.
	Codec codec.Codec
}

// DefaultOptions contains the default configuration options for
// class-index persistence.
var DefaultOptions = Options{
	Codec: codec.Default,
}

// ClassIndex holds the ground truth of an experiment: for every target
// class, the set of corpus IDs belonging to it. Built once, then
// shared read-only across all repetitions.
type ClassIndex struct {
	classes map[string]*roaring.Bitmap
}

// NewClassIndex builds a class index from explicit member lists.
func NewClassIndex(classes map[string][]uint32) *ClassIndex {
	idx := make(map[string]*roaring.Bitmap, len(classes))
	for class, members := range classes {
		idx[class] = roaring.BitmapOf(members...)
	}

	return &ClassIndex{classes: idx}
}

// LoadClassIndex reads a persisted class index from a blob store.
func LoadClassIndex(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *Options)) (*ClassIndex, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return nil, fmt.Errorf("load class index %q: %w", name, err)
	}

	var classes map[string][]uint32
	if err := opts.Codec.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("decode class index %q: %w", name, err)
	}

	return NewClassIndex(classes), nil
}

// Save persists the class index to a blob store.
func (ci *ClassIndex) Save(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *Options)) error {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	classes := make(map[string][]uint32, len(ci.classes))
	for class, members := range ci.classes {
		classes[class] = members.ToArray()
	}

	data, err := opts.Codec.Marshal(classes)
	if err != nil {
		return fmt.Errorf("encode class index %q: %w", name, err)
	}

	return bs.Put(ctx, name, data)
}

// Classes returns all class names in sorted order.
func (ci *ClassIndex) Classes() []string {
	out := make([]string, 0, len(ci.classes))
	for class := range ci.classes {
		out = append(out, class)
	}

	sort.Strings(out)

	return out
}

// Positives returns a copy of the member set of class.
func (ci *ClassIndex) Positives(class string) (*roaring.Bitmap, bool) {
	members, ok := ci.classes[class]
	if !ok {
		return nil, false
	}

	return members.Clone(), true
}

// Oracle returns a membership oracle for class.
func (ci *ClassIndex) Oracle(class string) (Oracle, bool) {
	members, ok := ci.classes[class]
	if !ok {
		return nil, false
	}

	return &membershipOracle{positives: members}, true
}

// SampleSeed draws a seed set for class, attaching the class name to
// any insufficiency error.
func (ci *ClassIndex) SampleSeed(rng *rand.Rand, class string, corpusSize, numPos, numNeg int) ([]core.ID, []core.ID, error) {
	members, ok := ci.classes[class]
	if !ok {
		return nil, nil, &ErrInsufficientSeed{
			Class:   class,
			NeedPos: numPos,
			HavePos: 0,
			NeedNeg: numNeg,
			HaveNeg: corpusSize,
		}
	}

	pos, neg, err := SampleSeed(rng, members, corpusSize, numPos, numNeg)
	if err != nil {
		var insufficient *ErrInsufficientSeed
		if errors.As(err, &insufficient) {
			insufficient.Class = class
		}

		return nil, nil, err
	}

	return pos, neg, nil
}
