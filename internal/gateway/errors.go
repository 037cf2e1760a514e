package gateway

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// Error describes a failed interaction with the payment provider.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
	retryable  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Op != "":
		return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
	case e.Op != "":
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the failure is transient (network, timeout, 5xx,
// open circuit) rather than a definitive provider rejection.
func (e *Error) Retryable() bool {
	return e != nil && e.retryable
}

// IsRetryable reports whether the error chain contains a transient gateway failure.
func IsRetryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Retryable()
	}
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func transportError(op string, err error) *Error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Op: op, Message: "provider temporarily unavailable", Err: err, retryable: true}
	}
	return &Error{Op: op, Err: err, retryable: true}
}

func statusError(op string, status int, message string) *Error {
	return &Error{
		Op:         op,
		StatusCode: status,
		Message:    message,
		retryable:  status >= 500,
	}
}
