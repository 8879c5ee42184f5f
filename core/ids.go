// Package core holds the shared data model of the active-learning
// harness: item identifiers, binary labels, and the labeled set grown
// by the loop.
package core

// ID is a dense identifier for an item in the corpus. It is strictly
// 32-bit, allowing for max 4 billion items per experiment. Used for all
// hot-path structures (roaring bitmaps, heaps, pool membership).
type ID uint32

// MaxID is the maximum possible value for an ID.
const MaxID = ^ID(0)

// Label is the binary class assignment of an item.
type Label uint8

const (
	// Negative marks an item outside the target class.
	Negative Label = 0
	// Positive marks an item inside the target class.
	Positive Label = 1
)

// String returns a human-readable label name.
func (l Label) String() string {
	switch l {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	default:
		return "unknown"
	}
}

// Example pairs an item with its embedding and assigned label.
type Example struct {
	ID     ID
	Vector []float32
	Label  Label
}
