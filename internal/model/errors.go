package model

import "errors"

var (
	// ErrInvalidState reports an operation whose precondition on the current
	// state does not hold, such as completing a task twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound reports a referenced family, member, task or reward that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation reports inconsistent input state, for example a
	// family whose owner is not one of its members.
	ErrInvariantViolation = errors.New("invariant violation")
)
