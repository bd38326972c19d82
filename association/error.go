package association

import (
	"fmt"

	"github.com/ossrs/go-dcsctp/callback"
)

// Error wraps a callback.ErrorKind with a human-readable message and an
// optional underlying cause, the shape callback deferred notifications such
// as OnError and OnAborted carry to the user.
type Error struct {
	Kind    callback.ErrorKind
	Message string
	cause   error
}

func newError(kind callback.ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind callback.ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, ErrNotConnected) and friends match on Kind alone,
// ignoring Message and cause, since those vary per occurrence.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors, one per callback.ErrorKind, for errors.Is comparisons.
var (
	ErrTooManyRetries     = newError(callback.ErrorKindTooManyRetries, "too many retransmissions")
	ErrNotConnected       = newError(callback.ErrorKindNotConnected, "association is not connected")
	ErrParseFailed        = newError(callback.ErrorKindParseFailed, "failed to parse incoming packet")
	ErrWrongSequence      = newError(callback.ErrorKindWrongSequence, "chunk received out of the expected sequence")
	ErrPeerReported       = newError(callback.ErrorKindPeerReported, "peer reported an error")
	ErrProtocolViolation  = newError(callback.ErrorKindProtocolViolation, "protocol violation")
	ErrResourceExhaustion = newError(callback.ErrorKindResourceExhaustion, "resource exhausted")
	ErrSendBufferFull     = newError(callback.ErrorKindResourceExhaustion, "send buffer full")
)
