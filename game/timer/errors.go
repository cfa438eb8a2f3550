package timer

import "errors"

var (
	// ErrInvalidTransition reports an operation that was illegal for the
	// timer's current state. The timer is force-reset first, so the error
	// is advisory rather than fatal.
	ErrInvalidTransition = errors.New("timer: invalid transition")
	// ErrMissingOwnerTimer is a data-integrity violation: every owner must
	// have exactly one timer row from creation.
	ErrMissingOwnerTimer = errors.New("timer: owner has no timer row")
	// ErrUnknownItem is returned when the referenced activity or quest
	// does not exist.
	ErrUnknownItem = errors.New("timer: unknown activity or quest")
	// ErrNotCompleted is returned when a reward flow runs against a timer
	// that is not in the completed state.
	ErrNotCompleted = errors.New("timer: not in completed state")
)
