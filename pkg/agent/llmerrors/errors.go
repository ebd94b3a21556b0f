// Package llmerrors classifies advisor backend errors so the retry middleware can
// tell a flaky model server from a misconfigured one.
package llmerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the retry class of a backend error. Its value doubles as the
// error_type metrics label.
type ErrorType string

// Retry classes.
const (
	// ErrorTypeRateLimit is a 429 or quota rejection.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTransient covers 5xx, resets, EOFs and server-side timeouts.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeEmptyResponse is a successful call with no text in it.
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	// ErrorTypeAuth is a rejected API key.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeBadPrompt is a malformed request or an unknown model.
	ErrorTypeBadPrompt ErrorType = "bad_prompt"
	// ErrorTypeUnknown is anything unclassified.
	ErrorTypeUnknown ErrorType = "unknown"
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted.
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
)

// final types are returned to the caller without another attempt.
//
//nolint:gochecknoglobals // fixed lookup table
var final = map[ErrorType]bool{
	ErrorTypeAuth:               true,
	ErrorTypeBadPrompt:          true,
	ErrorTypeServiceUnavailable: true,
}

func (t ErrorType) String() string { return string(t) }

// Error is a classified backend error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	detail := e.Message
	switch {
	case detail != "":
	case e.Err != nil:
		detail = e.Err.Error()
	default:
		detail = fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("advisor backend %s: %s", e.Type, detail)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could succeed.
func (e *Error) IsRetryable() bool {
	return !final[e.Type]
}

// Is reports whether err carries a classified error of type t.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t && As(err) != nil
}

// As returns the classified error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// TypeOf returns err's class, ErrorTypeUnknown when unclassified.
func TypeOf(err error) ErrorType {
	if e := As(err); e != nil {
		return e.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a classified error.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// NewErrorWithStatus creates a classified error carrying the HTTP status.
func NewErrorWithStatus(t ErrorType, statusCode int, message string) *Error {
	return &Error{Type: t, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// NewServiceUnavailableError wraps the last error once attempts are used up.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("gave up after %d attempts: %v", attempts, cause),
	}
}

// FromStatus classifies a provider HTTP status.
func FromStatus(statusCode int, cause error) *Error {
	t := ErrorTypeUnknown
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case statusCode == http.StatusRequestTimeout, statusCode >= http.StatusInternalServerError:
		t = ErrorTypeTransient
	case statusCode >= http.StatusBadRequest:
		t = ErrorTypeBadPrompt
	}
	return &Error{Type: t, StatusCode: statusCode, Err: cause}
}

// IsServiceUnavailable reports whether retries were exhausted.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}
