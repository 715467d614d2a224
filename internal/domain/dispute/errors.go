package dispute

import "errors"

var (
	// ErrNotFound is returned for an unknown dispute id.
	ErrNotFound = errors.New("dispute not found")
	// ErrUnresolved is returned when no rung of the ladder applies. The
	// dispute stays pending.
	ErrUnresolved = errors.New("dispute unresolved")
	// ErrClosed is returned when acting on a dispute that is no longer pending.
	ErrClosed = errors.New("dispute already closed")
	// ErrForbidden is returned when the deciding role may not take the action.
	ErrForbidden = errors.New("role may not decide disputes")
	// ErrNoCommitter is returned when resolving before a committer is attached.
	ErrNoCommitter = errors.New("no committer attached")
)
