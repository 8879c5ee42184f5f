package seals

import (
	"errors"
)

var (
	// ErrNilDependency is returned by constructors when a required
	// collaborator is nil. The wrapped message names it.
	ErrNilDependency = errors.New("nil dependency")

	// ErrAlreadyRun is returned when a loop is run a second time. A
	// loop owns the labeled set of exactly one repetition; running it
	// again would label on top of the previous repetition's state.
	ErrAlreadyRun = errors.New("loop has already run")

	// ErrInvalidRoundBudget is returned for non-positive round budgets.
	ErrInvalidRoundBudget = errors.New("round budget must be positive")
)
