// Package errors provides structured errors with an HTTP status mapping, so
// handlers can return rich errors and leave response formatting to the
// middleware.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an error for status mapping and metrics.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"   // HTTP 400
	TypeNotFound    ErrorType = "not_found"    // HTTP 404
	TypeRateLimited ErrorType = "rate_limited" // HTTP 429
	TypeUnavailable ErrorType = "unavailable"  // HTTP 503
	TypeInternal    ErrorType = "internal"     // HTTP 500
)

// Error is a structured error carrying a type, a client-safe message, and
// optional context fields for logging.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap supports errors.Is and errors.As on the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to its response status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WithContext attaches a context field for logging. Chainable.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Validation creates an invalid-input error.
func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// NotFound creates a missing-resource error.
func NotFound(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

// RateLimited creates a too-many-requests error.
func RateLimited(message string) *Error {
	return &Error{Type: TypeRateLimited, Message: message}
}

// Unavailable creates a capacity-exhausted error.
func Unavailable(message string) *Error {
	return &Error{Type: TypeUnavailable, Message: message}
}

// Internal creates a server-side error wrapping its cause. The cause is
// logged but never sent to the client.
func Internal(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// Response is the JSON body sent for a structured error.
type Response struct {
	Error string    `json:"error"`
	Type  ErrorType `json:"type"`
}

// ToResponse strips the error down to its client-safe fields.
func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type}
}

// From converts any error into a structured Error. Unknown errors become
// internal errors with a generic message.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
