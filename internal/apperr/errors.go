package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindInternal         Kind = "INTERNAL"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindInvalidOperation Kind = "INVALID_OPERATION"
	KindValidation       Kind = "VALIDATION_FAILED"
	KindAuthFailed       Kind = "AUTH_FAILED"
)

// Error is a typed application error. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so sentinels compare by kind and message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Constructors
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func Forbidden(msg string) error {
	return New(KindForbidden, msg)
}

func InvalidOperation(msg string) error {
	return New(KindInvalidOperation, msg)
}

func Validation(msg string) error {
	return New(KindValidation, msg)
}

func AuthFailed(msg string) error {
	return New(KindAuthFailed, msg)
}

func Internal(cause error) error {
	return Wrap(KindInternal, "internal server error", cause)
}

// KindOf returns the kind of err, or KindInternal for untyped errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the text that may be shown to a client
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps the taxonomy onto response codes
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidOperation, KindValidation:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
