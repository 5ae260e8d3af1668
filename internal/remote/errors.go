package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies remote call failures.
type ErrorKind string

const (
	// ErrorUnknown is an uncategorized failure.
	ErrorUnknown ErrorKind = "unknown"
	// ErrorUnavailable indicates the bridge could not deliver the call.
	ErrorUnavailable ErrorKind = "unavailable"
	// ErrorRejected indicates the engine refused the call.
	ErrorRejected ErrorKind = "rejected"
	// ErrorCanceled indicates the caller or a disconnect canceled the call.
	ErrorCanceled ErrorKind = "canceled"
	// ErrorTimeout indicates the call deadline passed.
	ErrorTimeout ErrorKind = "timeout"
)

// Error is returned for every failed remote call. Message is the opaque
// engine- or bridge-supplied text.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// NewError constructs a remote error for op.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return "remote call failed"
	}
	switch {
	case e.Message != "" && e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Message != "":
		return e.Message
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s failed", e.Op)
	}
	return "remote call failed"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap converts err into an *Error for op. Existing remote errors pass
// through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	kind := ErrorUnknown
	switch {
	case errors.Is(err, context.Canceled):
		kind = ErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrorTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr, true
	}
	return nil, false
}
