package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for transport mapping.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAuthMissing       ErrorKind = "auth_missing"
	KindAuthInvalid       ErrorKind = "auth_invalid"
	KindAuthUnavailable   ErrorKind = "auth_unavailable"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindGone              ErrorKind = "gone"
	KindDependencyTimeout ErrorKind = "dependency_timeout"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindInternal          ErrorKind = "internal"
)

// Error is a classified failure carrying a stable code usable as an i18n key.
// Message is advisory and may change between releases.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Is matches another *Error by code, or by kind when the target carries no code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code && t.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Kind sentinels. errors.Is(err, ErrConflict) matches any conflict error.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAuthMissing       = &Error{Kind: KindAuthMissing}
	ErrAuthInvalid       = &Error{Kind: KindAuthInvalid}
	ErrAuthUnavailable   = &Error{Kind: KindAuthUnavailable}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrGone              = &Error{Kind: KindGone}
	ErrDependencyTimeout = &Error{Kind: KindDependencyTimeout}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

// Validation returns a field-level validation error.
func Validation(field, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_error",
		Message: fmt.Sprintf("%s: %s", field, fmt.Sprintf(format, args...)),
	}
}

// NotFound returns a not-found error for the named resource.
func NotFound(resource string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    resource + "_not_found",
		Message: resource + " not found",
	}
}

// KindOf extracts the classification of err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
