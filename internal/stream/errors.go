package stream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the library can surface. The set is
// closed: callers can switch over it to pick a retry policy without
// depending on backend error types.
type ErrorKind int

const (
	// KindConnection is a transport-level failure, potentially transient.
	KindConnection ErrorKind = iota
	// KindCommand means the server rejected the request: bad arguments,
	// missing group or stream.
	KindCommand
	// KindEmptyReply means the server returned a reply shape the client
	// cannot interpret. A defect, not a routine condition.
	KindEmptyReply
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindCommand:
		return "command"
	case KindEmptyReply:
		return "empty reply"
	default:
		return "unknown"
	}
}

// Error carries the kind, the failing operation and the underlying cause.
// The library performs no retry and no suppression: every fallible
// operation surfaces one of these immediately.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a stream error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err if it is (or wraps) a stream error. The
// second result is false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsConnection reports whether err is a transport-level failure.
func IsConnection(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConnection
}

// IsCommand reports whether err is a server-side rejection.
func IsCommand(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindCommand
}

// IsEmptyReply reports whether err is an uninterpretable reply.
func IsEmptyReply(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindEmptyReply
}
