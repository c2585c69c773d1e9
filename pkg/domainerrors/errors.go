// Package domainerrors defines coded domain errors surfaced across service
// boundaries. Services translate infrastructure sentinels into these at their
// edge; transport layers map codes to HTTP statuses without inspecting error
// strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers and the transport layer.
type Code string

const (
	// CodeValidation marks an entity invariant violation. Surfaced to the
	// caller with field-level details, never retried automatically.
	CodeValidation Code = "validation_failed"
	// CodeInvariantViolation marks an illegal lifecycle transition attempt.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeConflict marks an optimistic version mismatch or ownership
	// constraint; the caller must re-fetch and retry.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeBadRequest marks malformed input, including rejected search queries.
	CodeBadRequest Code = "bad_request"
	// CodeRegistrationFailed marks a rejection or timeout from the external
	// handle-resolution service. Retry is an explicit operator action.
	CodeRegistrationFailed Code = "registration_failed"
	// CodeInternal marks unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// FieldError is one field-level reason inside a validation failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is a coded domain error with optional field details and wrapped cause.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a static message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithFields attaches field-level reasons and returns the error for chaining.
func (e *Error) WithFields(fields ...FieldError) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message extracts the caller-facing message, or "" when err is not a domain
// error.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Details extracts field-level reasons, or nil when err is not a domain error.
func Details(err error) []FieldError {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}
