// Package errs classifies failures by the kinds the relayer core must
// distinguish: what gets surfaced to a caller unchanged, what gets retried,
// and what marks an order Failed.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds a component can raise.
type Kind string

const (
	// Invalid means the input violates a stated precondition. Not retried.
	Invalid Kind = "invalid"
	// Duplicate means an idempotency conflict (order/auction already exists).
	Duplicate Kind = "duplicate"
	// Capacity means a resource cap was reached; the caller may retry later.
	Capacity Kind = "capacity"
	// NotFound means an unknown orderId/txHash was referenced.
	NotFound Kind = "not_found"
	// Transient means a chain RPC timeout, 5xx, or rate-limit; retried with backoff.
	Transient Kind = "transient"
	// Desync means an event arrived inconsistent with the state machine.
	Desync Kind = "desync"
	// Timeout means a scheduled operation missed its deadline.
	Timeout Kind = "timeout"
)

// Error wraps an underlying cause with a Kind and, where applicable, the
// orderId it concerns. Never carries preimages, ciphertexts, keys, or
// signatures in its message.
type Error struct {
	Kind    Kind
	OrderID string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.OrderID != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: order %s: %s: %v", e.Kind, e.OrderID, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: order %s: %s", e.Kind, e.OrderID, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, orderID, reason string) *Error {
	return &Error{Kind: kind, OrderID: orderID, Reason: reason}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, orderID, reason string, err error) *Error {
	return &Error{Kind: kind, OrderID: orderID, Reason: reason, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to "" when err is not one of
// ours (e.g. a raw chain-client error that hasn't been classified yet).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
