package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the HTTP boundary.
type Kind int

const (
	// KindInternal is an unexpected failure inside scoring, classification or recognition.
	KindInternal Kind = iota
	// KindInput is a caller error such as a missing or empty required field.
	KindInput
	// KindNotFound is an unknown route or resource.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries the failure kind, the operation that produced it and the wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input reports a caller error.
func Input(op, format string, args ...any) error {
	return &Error{Kind: KindInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// NotFound reports a missing route or resource.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message of err without the operation prefix.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
