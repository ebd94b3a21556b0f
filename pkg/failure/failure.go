// Package failure defines the closed failure taxonomy and the structured error envelope
// every spectra component reports through.
package failure

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Reason identifies why an operation failed. The set is closed; see Reasons.
type Reason string

const (
	// ReasonPatched indicates the target is patched or not vulnerable to the chosen module.
	ReasonPatched Reason = "PATCHED_OR_NOT_VULNERABLE"
	// ReasonIncompatible indicates a payload/architecture mismatch or a dispatch failure.
	ReasonIncompatible Reason = "PAYLOAD_OR_ARCH_MISMATCH"
	// ReasonNetworkBlock indicates the connection was refused or filtered.
	ReasonNetworkBlock Reason = "CONNECTION_REFUSED_OR_BLOCKED"
	// ReasonRPCSync indicates the execution backend could not be read consistently.
	ReasonRPCSync Reason = "RPC_SYNC_ISSUE"
	// ReasonAdvisor indicates the advisor backend was unavailable after retries.
	ReasonAdvisor Reason = "ADVISOR_FAILURE"
	// ReasonValidation indicates advisor output could not be decoded or validated.
	ReasonValidation Reason = "VALIDATION_ERROR"
	// ReasonUndefined is used for failures nobody anticipated.
	ReasonUndefined Reason = "UNDEFINED"
)

// Reasons returns every member of the taxonomy in declaration order.
func Reasons() []Reason {
	return []Reason{
		ReasonPatched,
		ReasonIncompatible,
		ReasonNetworkBlock,
		ReasonRPCSync,
		ReasonAdvisor,
		ReasonValidation,
		ReasonUndefined,
	}
}

// Valid reports whether r is a member of the taxonomy.
func (r Reason) Valid() bool {
	for _, known := range Reasons() {
		if r == known {
			return true
		}
	}
	return false
}

// String returns the wire code of the reason.
func (r Reason) String() string {
	return string(r)
}

// ParseReason maps a code to its Reason. Unknown codes map to ReasonUndefined.
func ParseReason(code string) Reason {
	r := Reason(strings.ToUpper(strings.TrimSpace(code)))
	if r.Valid() {
		return r
	}
	return ReasonUndefined
}

// Error is the structured error envelope.
// It implements the error interface and supports errors.Is/As through Unwrap.
type Error struct {
	// Details carries contextual data for postmortem (plan, session id, ...).
	Details map[string]any

	// Cause is the wrapped error, if any. Re-wrapping never replaces it.
	Cause error

	// Message is a human-readable summary.
	Message string

	// Reason is always a member of the closed taxonomy.
	Reason Reason

	// Trace is the goroutine stack captured when the error was created.
	Trace string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Reason, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same reason.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Reason == other.Reason
	}
	return false
}

// WithDetail records a contextual key/value and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Fields flattens the error into a mapping suitable for a result payload.
func (e *Error) Fields() map[string]any {
	fields := make(map[string]any, len(e.Details)+4)
	for k, v := range e.Details {
		fields[k] = v
	}
	fields["message"] = e.Message
	fields["reason"] = e.Reason.String()
	if e.Cause != nil {
		fields["cause"] = e.Cause.Error()
	}
	if e.Trace != "" {
		fields["trace"] = e.Trace
	}
	return fields
}

// New creates an error with the given reason and message.
func New(reason Reason, message string) *Error {
	return newError(reason, message, nil)
}

// Newf creates an error with a formatted message.
func Newf(reason Reason, format string, args ...any) *Error {
	return newError(reason, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an error that wraps cause. If cause is itself a *Error it stays in the
// chain as the cause, so its own reason and details remain reachable via errors.As.
func Wrap(reason Reason, message string, cause error) *Error {
	return newError(reason, message, cause)
}

func newError(reason Reason, message string, cause error) *Error {
	if !reason.Valid() {
		reason = ReasonUndefined
	}
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
		Trace:   string(debug.Stack()),
	}
}

// ReasonOf returns the reason of the outermost *Error in err's chain,
// or ReasonUndefined when the chain carries none.
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonUndefined
}

// As returns err as a *Error. Errors outside the taxonomy are wrapped with ReasonUndefined.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(ReasonUndefined, "unexpected error", err)
}
