package queue

import "errors"

var (
	// ErrValidation indicates a malformed phase batch; nothing is persisted.
	ErrValidation = errors.New("validation error")

	// ErrTransition indicates an illegal status change was attempted.
	ErrTransition = errors.New("transition error")

	// ErrNotFound indicates the referenced phase does not exist.
	ErrNotFound = errors.New("phase not found")

	// ErrPhaseRunning indicates an operation that is unsupported while a
	// phase is dispatched, such as cancellation.
	ErrPhaseRunning = errors.New("phase is running")
)
