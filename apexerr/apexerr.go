// Package apexerr defines the typed error taxonomy shared by every
// orchestration component: contract enforcement, scheduling, dispatch,
// the broker adapter, and the push fabric all report failures through
// the same Kind set so callers can branch with errors.As instead of
// string matching.
package apexerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for programmatic handling.
type Kind string

const (
	Validation            Kind = "validation"
	NotFound              Kind = "not_found"
	ContractViolation     Kind = "contract_violation"
	Timeout               Kind = "timeout"
	CircuitOpen           Kind = "circuit_open"
	AgentExecutionFailure Kind = "agent_execution_failure"
	Serialization         Kind = "serialization"
	BrokerUnavailable     Kind = "broker_unavailable"
	SessionInvalid        Kind = "session_invalid"
	ResourceExhausted     Kind = "resource_exhausted"
	Internal              Kind = "internal"
)

// Error is the concrete error type returned across the module. It
// carries a Kind for classification, an optional wrapped cause, and a
// free-form context map for structured logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apexerr.CircuitOpen) style comparisons by
// kind alone — two *Error values with the same Kind are considered
// equivalent regardless of message/context.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithContext returns a copy of e with the given key/value merged into
// its Context map.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error,
// returning ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
