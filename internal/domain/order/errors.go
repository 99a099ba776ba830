package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Validation and state errors surfaced to the caller.
var (
	ErrEmptyCart            = errors.New("empty cart")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrMissingFields        = errors.New("missing required payment verification fields")
	ErrNotFound             = errors.New("order not found")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrAmountMismatch       = errors.New("payment amount does not match order total")
	ErrAlreadyFinalized     = errors.New("order already finalized")
	ErrNotPending           = errors.New("order is not pending")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
)

// InvalidItemError indicates a cart line failed schema validation.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %d: %s", e.Index, e.Reason)
}

// InvalidTotalsError indicates the monetary fields are negative or do not add up.
type InvalidTotalsError struct {
	Reason string
}

func (e *InvalidTotalsError) Error() string {
	return "invalid totals: " + e.Reason
}

// GatewayError wraps a failed call to the payment gateway.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed datastore write or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
