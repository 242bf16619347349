package apperr

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

type stackError struct {
	err   error
	stack string
}

func (e *stackError) Error() string { return e.err.Error() }
func (e *stackError) Unwrap() error { return e.err }

// WithStack annotates err with the stack of the caller. Errors that already
// carry a stack are returned unchanged.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var se *stackError
	if errors.As(err, &se) {
		return err
	}
	return &stackError{err: err, stack: callers(3)}
}

// FromPanic converts a recovered panic value into an error carrying stack.
func FromPanic(recovered any, stack []byte) error {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return &stackError{err: err, stack: string(stack)}
}

// Stack returns the stack recorded on err, prefixed with its message the way
// runtime traces read. It is empty when no stack was recorded.
func Stack(err error) string {
	var se *stackError
	if !errors.As(err, &se) {
		return ""
	}
	return se.err.Error() + "\n" + se.stack
}

func callers(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "    at %s (%s:%d)\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
