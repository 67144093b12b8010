package transport

import (
	"errors"
	"fmt"

	"xdao.co/gep/gep"
)

// Kind is a stable failure category. Callers branch on Kind (or on the
// sentinels below via errors.Is) rather than on error strings.
type Kind string

const (
	// KindUnreachable covers connection, DNS, timeout, and 5xx failures.
	// Transient; the caller may retry with backoff.
	KindUnreachable Kind = "Unreachable"
	// KindMalformedResponse means the reply was not well-formed JSON.
	// A protocol violation; retrying the same call rarely helps.
	KindMalformedResponse Kind = "MalformedResponse"
	// KindRemoteRejected is an explicit application-level denial.
	KindRemoteRejected Kind = "RemoteRejected"
)

// Specialisations of KindRemoteRejected that callers handle distinctly.
var (
	ErrRegistrationRejected = errors.New("transport: registration rejected")
	ErrTaskUnavailable      = errors.New("transport: task unavailable")
	ErrUnknownNode          = errors.New("transport: node unknown to exchange")
)

// Error is the structured failure returned by every Transport.
//
// Message is for humans; do not match on it.
type Error struct {
	Kind    Kind
	Op      gep.MessageType
	Message string
	Cause   error

	// Response is the decoded reply for rejections, when one was received.
	Response gep.Response
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func unreachable(op gep.MessageType, cause error) error {
	return &Error{Kind: KindUnreachable, Op: op, Cause: cause}
}

func malformed(op gep.MessageType, cause error) error {
	return &Error{Kind: KindMalformedResponse, Op: op, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
