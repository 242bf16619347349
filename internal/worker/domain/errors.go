package domain

import "errors"

var (
	// ErrInvalidMessage is returned when a delivery body is not a job event
	ErrInvalidMessage = errors.New("invalid job event message")

	// ErrUnknownEventType is returned for an event type the archiver does not store
	ErrUnknownEventType = errors.New("unknown job event type")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
