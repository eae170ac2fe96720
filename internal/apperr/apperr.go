// Package apperr defines the error taxonomy shared by every component.
// Errors carry a kind for policy decisions, a stable machine code for the
// HTTP boundary, and an optional wrapped cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error for propagation policy.
type Kind string

const (
	// KindValidation is a malformed or semantically invalid input.
	KindValidation Kind = "validation"

	// KindAuthentication is missing or unverifiable identity.
	KindAuthentication Kind = "authentication"

	// KindAuthorization is a verified identity lacking permission.
	KindAuthorization Kind = "authorization"

	// KindNotFound is a missing resource.
	KindNotFound Kind = "not_found"

	// KindAlreadyExists is a uniqueness violation.
	KindAlreadyExists Kind = "already_exists"

	// KindConflict is a concurrent-modification or illegal-transition
	// failure, including hash CAS mismatches.
	KindConflict Kind = "conflict"

	// KindInvalidKind is an operation applied to the wrong node kind,
	// like listing a document or writing a folder.
	KindInvalidKind Kind = "invalid_kind"

	// KindInvalidToken is a token that fails signature or format checks.
	KindInvalidToken Kind = "invalid_token"

	// KindSessionExpired is a token or session past its lifetime.
	KindSessionExpired Kind = "session_expired"

	// KindStorage is an underlying blob or catalog failure.
	KindStorage Kind = "storage"

	// Provider kinds classify upstream model failures.
	KindProviderTimeout     Kind = "provider_timeout"
	KindProviderRateLimited Kind = "provider_rate_limited"
	KindProviderProtocol    Kind = "provider_protocol"
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindInternal is an unclassified server fault, surfaced opaquely.
	KindInternal Kind = "internal"
)

// IsProvider reports whether the kind is one of the provider failures.
func (k Kind) IsProvider() bool {
	switch k {
	case KindProviderTimeout, KindProviderRateLimited, KindProviderProtocol, KindProviderUnavailable:
		return true
	}
	return false
}

// Error is a classified application error.
type Error struct {
	// Kind drives propagation policy.
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Details carries structured context for 4xx response bodies.
	Details map[string]any

	// Err is the wrapped cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable machine code used in response bodies.
func (e *Error) Code() string { return string(e.Kind) }

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured context and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Validation builds a validation error.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// AlreadyExists builds a uniqueness-violation error.
func AlreadyExists(format string, args ...any) *Error {
	return Newf(KindAlreadyExists, format, args...)
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) *Error {
	return Newf(KindConflict, format, args...)
}

// InvalidKind builds a wrong-node-kind error.
func InvalidKind(format string, args ...any) *Error {
	return Newf(KindInvalidKind, format, args...)
}

// Authentication builds a missing-or-unverifiable-identity error.
func Authentication(format string, args ...any) *Error {
	return Newf(KindAuthentication, format, args...)
}

// Authorization builds a permission-denied error.
func Authorization(format string, args ...any) *Error {
	return Newf(KindAuthorization, format, args...)
}

// InvalidToken builds a malformed-or-forged-token error.
func InvalidToken(format string, args ...any) *Error {
	return Newf(KindInvalidToken, format, args...)
}

// SessionExpired builds a past-lifetime token or session error.
func SessionExpired(format string, args ...any) *Error {
	return Newf(KindSessionExpired, format, args...)
}

// Storage wraps an underlying storage failure.
func Storage(message string, err error) *Error {
	return Wrap(KindStorage, message, err)
}

// Internal wraps an unclassified fault.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf extracts the kind from an error chain, KindInternal when none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// As extracts an *Error from a chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps a kind to the HTTP status code used at the boundary.
// Provider and storage kinds normally surface as actor Error events rather
// than HTTP responses; when they do reach the boundary they map to 502.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidKind:
		return http.StatusBadRequest
	case KindAuthentication, KindInvalidToken, KindSessionExpired:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindConflict:
		return http.StatusConflict
	case KindStorage, KindProviderTimeout, KindProviderRateLimited,
		KindProviderProtocol, KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
