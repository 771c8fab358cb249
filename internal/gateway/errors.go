package gateway

import (
	"errors"
	"fmt"
)

// UnreachableError means the node could not be reached or did not answer
// in time. Unless NotSent is set, whether a submitted block was accepted is
// unknown.
type UnreachableError struct {
	Method string
	Err    error

	// NotSent is set when the request never left the process: an open
	// circuit breaker, a failed dial, or a request that could not be encoded.
	NotSent bool
}

func (e *UnreachableError) Error() string {
	if e.NotSent {
		return fmt.Sprintf("request not sent (%s): %v", e.Method, e.Err)
	}
	return fmt.Sprintf("node unreachable (%s): %v", e.Method, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// RPCError is a structured error returned by the node, kept verbatim.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node error %d (%s): %s", e.Code, e.Method, e.Message)
}

// MalformedResponseError means the node answered with something that does
// not decode or fails validation.
type MalformedResponseError struct {
	Method string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response (%s): %v", e.Method, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err is or wraps an *UnreachableError.
func IsUnreachable(err error) bool {
	var u *UnreachableError
	return errors.As(err, &u)
}

// IsNotSent reports whether err is an *UnreachableError for a request the
// node never received.
func IsNotSent(err error) bool {
	var u *UnreachableError
	return errors.As(err, &u) && u.NotSent
}

// IsRPCError reports whether err is or wraps an *RPCError.
func IsRPCError(err error) bool {
	var r *RPCError
	return errors.As(err, &r)
}

// IsMalformed reports whether err is or wraps a *MalformedResponseError.
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}

func malformed(method, format string, args ...interface{}) error {
	return &MalformedResponseError{Method: method, Err: fmt.Errorf(format, args...)}
}
