// Package apperr defines the closed set of operational errors the API renders
// and classifies every other error as an internal fault.
package apperr

import (
	"errors"
	"net/http"

	"github.com/cuongbtq/jobpipe/internal/validation"
)

// Kind is the classification of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
)

// InternalMessage is the message rendered for internal faults in production.
const InternalMessage = "An unexpected error has occurred."

var (
	// ErrIllegalStageOrder signals a misconfigured pipeline: a stage ran
	// before the stage whose output it consumes.
	ErrIllegalStageOrder = errors.New("illegal stage order")

	// ErrNotRegistered signals a use case or rule bundle name that is not in the registry.
	ErrNotRegistered = errors.New("not registered")
)

// Name returns the public name of the kind.
func (k Kind) Name() string {
	switch k {
	case KindBadRequest:
		return "BadRequestError"
	case KindUnauthorized:
		return "UnauthorizedError"
	case KindForbidden:
		return "ForbiddenError"
	case KindNotFound:
		return "NotFoundError"
	default:
		return "InternalServerError"
	}
}

// StatusCode returns the HTTP status of the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is an operational error: an expected, user-facing condition.
type Error struct {
	Kind    Kind
	Message string
	// Errors holds field-level validation failures for KindBadRequest.
	Errors []validation.FieldError
}

func (e *Error) Error() string {
	return e.Kind.Name() + ": " + e.Message
}

// Operational reports whether the error is an expected, classified condition.
func (e *Error) Operational() bool {
	return e.Kind != KindInternal
}

func newError(kind Kind, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{Kind: kind, Message: message}
}

// BadRequest returns a 400 error carrying the validation failures, if any.
func BadRequest(message string, errs []validation.FieldError) *Error {
	e := newError(KindBadRequest, message, "Bad request")
	e.Errors = errs
	return e
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *Error {
	return newError(KindUnauthorized, message, "Unauthorized")
}

// Forbidden returns a 403 error.
func Forbidden(message string) *Error {
	return newError(KindForbidden, message, "Forbidden")
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return newError(KindNotFound, message, "Not found")
}

// Classification is the outcome of Classify.
type Classification struct {
	Kind    Kind
	Status  int
	Name    string
	Message string
	Errors  []validation.FieldError
	// Cause is the original error; for internal faults its message is private.
	Cause error
}

// Operational reports whether the classified error is expected and user-facing.
func (c Classification) Operational() bool {
	return c.Kind != KindInternal
}

// Classify maps err onto the taxonomy. Errors that are not an *Error anywhere
// in their chain are internal, and their message is replaced by InternalMessage.
func Classify(err error) Classification {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Operational() {
		return Classification{
			Kind:    appErr.Kind,
			Status:  appErr.Kind.StatusCode(),
			Name:    appErr.Kind.Name(),
			Message: appErr.Message,
			Errors:  appErr.Errors,
			Cause:   err,
		}
	}

	return Classification{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Name:    KindInternal.Name(),
		Message: InternalMessage,
		Cause:   err,
	}
}
