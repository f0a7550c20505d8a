package messaging

import "errors"

// Delivery errors. Every cross-component failure maps to one of these.
var (
	// ErrUnreachable is returned when the target has no live channel: it was
	// never registered, it was unregistered, or it closed before replying.
	ErrUnreachable = errors.New("target is unreachable")

	// ErrTimeout is returned when a wait exceeds its budget.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrClosed is returned when a notification stream ends before it
	// delivered anything.
	ErrClosed = errors.New("channel closed")
)
