package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindAuthentication
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified application error. Code is a stable machine-readable
// identifier, Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation reports a payload that violates a data or lifecycle invariant
func Validation(code, message string) *Error {
	return newError(KindValidation, code, message)
}

// Permission reports a caller whose role or ownership fails authorization
func Permission(code, message string) *Error {
	return newError(KindPermission, code, message)
}

// NotFound reports a referenced entity that does not exist
func NotFound(code, message string) *Error {
	return newError(KindNotFound, code, message)
}

// Authentication reports a request without a valid identity
func Authentication(code, message string) *Error {
	return newError(KindAuthentication, code, message)
}

// Conflict reports a uniqueness clash on a resource the caller is creating
func Conflict(code, message string) *Error {
	return newError(KindConflict, code, message)
}

// Internal wraps an unexpected failure
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
