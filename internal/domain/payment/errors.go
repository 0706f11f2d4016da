package payment

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNetworkFailure       ErrorKind = "network_failure"
	KindTransientServerFault ErrorKind = "transient_server_fault"
	KindValidationFailure    ErrorKind = "validation_failure"
	KindMissingIdentifier    ErrorKind = "missing_identifier"
	KindTimeoutFailure       ErrorKind = "timeout_failure"
	KindNotFound             ErrorKind = "not_found"
	KindInFlight             ErrorKind = "in_flight"
)

const GenericFailureMessage = "Something went wrong. Please try again."

// Error is the terminal outcome of a reconciliation action.
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status=%d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is what the UI shows in its toast.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericFailureMessage
}

// KindOf classifies err. Bare context deadlines count as timeouts and anything
// unrecognised as a network failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeoutFailure
	}
	return KindNetworkFailure
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the display message for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return GenericFailureMessage
}
