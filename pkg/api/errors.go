package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/casegate/casegate/pkg/storage"
)

// Kind identifies one member of the closed error taxonomy.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindAuth               Kind = "AUTH_ERROR"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindServerError        Kind = "SERVER_ERROR"
)

// FieldError describes a single per-field validation issue.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// VersionConflict carries the version details of an optimistic-lock
// failure so callers can decide between retrying with fresh data and
// surfacing the conflict.
type VersionConflict struct {
	EntityType      string `json:"entityType"`
	EntityID        string `json:"entityId"`
	ExpectedVersion int64  `json:"expectedVersion"`
	ActualVersion   int64  `json:"actualVersion"`
}

// Error is a typed failure from the taxonomy. The zero value is not
// usable; construct errors through the New* helpers so every error
// carries a kind and a message.
type Error struct {
	Kind    Kind
	Message string

	// Fields is non-empty iff Kind == KindValidation.
	Fields []FieldError

	// Conflict is set only for optimistic-lock conflicts; other
	// uniqueness violations share the kind without version details.
	Conflict *VersionConflict

	// RetryAfter is the suggested wait in seconds for KindRateLimited.
	RetryAfter int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Status maps the error kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth, KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation failure. At least one field
// issue is required; callers with none should use NewServerError
// instead of emitting an empty issue list.
func NewValidationError(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// FieldIssue is a convenience constructor for a single-field validation error.
func FieldIssue(field, message, code string) FieldError {
	return FieldError{Field: field, Message: message, Code: code}
}

// NewAuthError creates an error for credentials that are present but invalid.
func NewAuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// NewUnauthorizedError creates an error for a missing credential on a
// route that requires one.
func NewUnauthorizedError() *Error {
	return &Error{Kind: KindUnauthorized, Message: "authentication required"}
}

// NewForbiddenError creates an error for a valid credential that lacks
// the required authorization.
func NewForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NewNotFoundError creates an error for an absent entity.
func NewNotFoundError(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// NewConflictError creates a uniqueness-violation error without
// version details.
func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NewVersionConflictError creates the optimistic-lock variant of a
// conflict, carrying the expected and actual record versions.
func NewVersionConflictError(entityType, entityID string, expected, actual int64) *Error {
	return &Error{
		Kind: KindConflict,
		Message: fmt.Sprintf("%s was modified by another request (expected version %d, found %d)",
			entityType, expected, actual),
		Conflict: &VersionConflict{
			EntityType:      entityType,
			EntityID:        entityID,
			ExpectedVersion: expected,
			ActualVersion:   actual,
		},
	}
}

// NewRateLimitedError creates a quota-exceeded error with a retry hint.
func NewRateLimitedError(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewServiceUnavailableError creates an error for a failed health gate.
func NewServiceUnavailableError() *Error {
	return &Error{Kind: KindServiceUnavailable, Message: "service temporarily unavailable"}
}

// NewServerError creates an unclassified internal error. The message is
// intentionally generic; internals are logged, never returned.
func NewServerError() *Error {
	return &Error{Kind: KindServerError, Message: "internal server error"}
}

// Classify converts any error into a taxonomy member. Typed *Error
// values pass through unchanged, storage sentinels map to their kinds,
// and everything else collapses to a generic server error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var conflict *storage.VersionConflictError
	if errors.As(err, &conflict) {
		return NewVersionConflictError(conflict.EntityType, conflict.EntityID,
			conflict.ExpectedVersion, conflict.ActualVersion)
	}

	if errors.Is(err, storage.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: "not found"}
	}
	if errors.Is(err, storage.ErrConflict) {
		return NewConflictError("resource already exists")
	}

	return NewServerError()
}
