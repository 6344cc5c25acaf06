package errdefs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Kind classifies an error for HTTP mapping and retry decisions.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindUnprocessable   Kind = "unprocessable"
	KindStorage         Kind = "storage"
	KindDatabase        Kind = "database"
	KindConfiguration   Kind = "configuration"
	KindQueue           Kind = "queue"
	KindFileOperation   Kind = "file_operation"
	KindExternalService Kind = "external_service"
)

// HTTPStatus returns the fixed status mapping for a kind. Unknown kinds map
// to 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a kinded error carrying optional request context for the HTTP
// envelope.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]interface{}
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a kinded error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a kinded error wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithContext attaches a key/value pair to the error for the envelope.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the kind from an error chain. Plain errors classify as
// storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// SafeCleanup runs a non-critical cleanup function and logs its failure
// instead of propagating it, so the primary error stays the cause.
func SafeCleanup(logger zerolog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str("cleanup", name).Msg("cleanup failed")
	}
}
