package core

import (
	"errors"
	"fmt"
)

// ErrKind classifies a call failure, per spec.md §7 "Kinds of failures (not
// types)". RetryAndFollowUp inspects Kind, not the wrapped error, to decide
// recoverability.
type ErrKind int

const (
	// KindMisuse is a programmer error: invalid URL, malformed header,
	// illegal method+body combination, reusing a one-shot call, or a
	// network interceptor that violated its proceed-exactly-once contract.
	// Never retried.
	KindMisuse ErrKind = iota
	// KindTransport covers connect failure, TLS handshake failure, I/O
	// error, unexpected EOF, or timeout. Retriable on a fresh route when
	// the request is retriable.
	KindTransport
	// KindProtocol is an HTTP/1 grammar violation, HTTP/2 frame error, or
	// WebSocket frame error. The connection is marked unreusable.
	KindProtocol
	// KindSemantic is a 3xx/401/407 handled by follow-up, or a 5xx
	// surfaced as-is to the caller.
	KindSemantic
	// KindCanceled is the single cancellation failure kind. Never retried.
	KindCanceled
)

func (k ErrKind) String() string {
	switch k {
	case KindMisuse:
		return "misuse"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindSemantic:
		return "semantic"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CallError is the tagged result spec.md §9 asks for: "Fallible operations
// return a tagged result carrying an error kind + message + optional cause".
type CallError struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corehttp: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("corehttp: %s: %s", e.Kind, e.Message)
}

func (e *CallError) Unwrap() error { return e.Cause }

// NewCallError builds a CallError of the given kind.
func NewCallError(kind ErrKind, message string, cause error) *CallError {
	return &CallError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrKind from err, defaulting to KindTransport for
// errors that were never classified (e.g. a raw net.Error bubbling up from
// a dial).
func KindOf(err error) ErrKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}

var (
	// ErrBodyNotRestartable is returned by OneShotBody.NewReader on a
	// second call. RetryAndFollowUp does not resend a one-shot body; it
	// returns the original transport error instead.
	ErrBodyNotRestartable = errors.New("corehttp: request body is not restartable")

	// ErrCanceled is the sentinel underlying all KindCanceled CallErrors.
	ErrCanceled = errors.New("corehttp: call canceled")

	// ErrTooManyFollowUps is returned when RetryAndFollowUp's 20-follow-up
	// cap (spec.md §4.1) is exceeded.
	ErrTooManyFollowUps = errors.New("corehttp: too many follow-up requests (20)")

	// ErrNetworkInterceptorContract is the cause of the KindMisuse CallError
	// returned when a network interceptor calls proceed more than once, or
	// calls it with a changed host/port (spec.md §8 "Interceptor contract").
	// A network interceptor that never calls proceed is not detected.
	ErrNetworkInterceptorContract = errors.New("corehttp: network interceptor violated its contract")
)
