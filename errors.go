package rrb

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions spec.md §7 names. Use errors.Is to
// test for them; BackendError and HandlerError carry the underlying cause
// and should be unwrapped with errors.As/errors.Unwrap.
var (
	// ErrNotConnected is returned by Client.Request when called before
	// connect() or after disconnect() has completed.
	ErrNotConnected = errors.New("rrb: not connected")

	// ErrShuttingDown is returned by Client.Request when called during an
	// in-flight disconnect().
	ErrShuttingDown = errors.New("rrb: shutting down")

	// ErrTimeout is returned by Client.Request when no response arrives
	// within the configured timeout window.
	ErrTimeout = errors.New("rrb: request timed out")

	// ErrAlreadyConnected is returned by Publisher.Connect when called
	// twice without an intervening Disconnect.
	ErrAlreadyConnected = errors.New("rrb: already connected")

	// ErrAlreadyListening is returned by Subscriber.Listen when called
	// twice without an intervening Stop.
	ErrAlreadyListening = errors.New("rrb: already listening")

	// ErrInsufficientRecipients is returned by Publisher.Publish when the
	// recipient count returned by PUBLISH is below MinimumRecipients.
	ErrInsufficientRecipients = errors.New("rrb: insufficient recipients")

	// ErrRateLimited is returned by Client.Request when an optional
	// RateLimiter rejects admission before the backend is ever touched.
	ErrRateLimited = errors.New("rrb: rate limited")
)

// BackendError wraps a failure from the Redis-compatible backend (RPUSH,
// LPOP, PUBLISH, SUBSCRIBE, ...), including one surfaced by an open circuit
// breaker. The caller never needs to special-case the breaker: it changes
// when a BackendError fires, not its shape.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("rrb: backend %s: %v", e.Op, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// HandlerError carries a user handler's raised error back to the Client,
// rehydrated from the wire's normalized {message,name,stack,fields} form.
// Non-enumerable state (methods) from the original error is lost.
type HandlerError struct {
	Message string
	Name    string
	Stack   string
	Fields  map[string]any
}

func (e *HandlerError) Error() string {
	if e.Message == "" {
		return "rrb: handler error"
	}
	return e.Message
}
