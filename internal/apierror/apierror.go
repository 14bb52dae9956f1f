// Package apierror provides standardized error response structures for the API
// and the domain error kinds the services return. All errors returned to
// clients go through this package to ensure consistency and to prevent leaking
// internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation error", Fields: fields}
}

// ── Domain error kinds ───────────────────────────────────────────────────────

// Kind is the stable classification surfaced to callers.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindBayUnavailable     Kind = "bay_unavailable"
	KindAlreadyPaid        Kind = "already_paid"
	KindInvalidTransition  Kind = "invalid_transition"
	KindValidation         Kind = "validation_error"
	KindExceedsBalance     Kind = "exceeds_balance"
	KindExternalService    Kind = "external_service_error"
	KindPreconditionFailed Kind = "precondition_failed"
)

// Error is a classified domain error. Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newKind(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return newKind(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error { return newKind(KindConflict, format, args...) }
func BayUnavailable(format string, args ...any) *Error {
	return newKind(KindBayUnavailable, format, args...)
}
func AlreadyPaid(format string, args ...any) *Error { return newKind(KindAlreadyPaid, format, args...) }
func InvalidTransition(format string, args ...any) *Error {
	return newKind(KindInvalidTransition, format, args...)
}
func Validation(format string, args ...any) *Error { return newKind(KindValidation, format, args...) }
func ExceedsBalance(format string, args ...any) *Error {
	return newKind(KindExceedsBalance, format, args...)
}
func PreconditionFailed(format string, args ...any) *Error {
	return newKind(KindPreconditionFailed, format, args...)
}

// External wraps a gateway failure. The provider description stays in Message
// so operators can diagnose it; the raw transport error is kept in Err.
func External(description string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: description, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }

// HTTPStatus maps a domain error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindBayUnavailable, KindAlreadyPaid:
		return http.StatusConflict
	case KindInvalidTransition, KindValidation, KindExceedsBalance:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the response envelope for err. Unclassified errors get a
// generic message so DB details never reach the client.
func FromError(err error) *APIError {
	var e *Error
	if errors.As(err, &e) {
		return &APIError{Detail: e.Message, Code: string(e.Kind)}
	}
	return &APIError{Detail: "internal server error"}
}
