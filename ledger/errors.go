/*
errors.go - Error taxonomy for the ledger engine

PURPOSE:
  All error types in one place. Every failure path in the engine returns one
  of these; nothing is swallowed and nothing is logged here.

ERROR CATEGORIES:
  1. ValidationError        - malformed or out-of-range input
  2. NotFoundError          - unknown product or transaction id
  3. InsufficientStockError - a sale would overdraw stock
  4. StoreError             - persistence failure, surfaced as-is, never retried

USAGE:
  Structured errors unwrap to sentinels, so callers can branch with errors.Is:

    if errors.Is(err, ledger.ErrInsufficientStock) {
        var ise *ledger.InsufficientStockError
        errors.As(err, &ise)
        fmt.Printf("only %d left\n", ise.Available)
    }

SEE ALSO:
  - engine.go: Produces these errors
  - api/errors.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the category of all *ValidationError values.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the category of all *NotFoundError values.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a sale exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStore is the category of all *StoreError values.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Entity kinds reported by NotFoundError.
const (
	KindProduct     = "product"
	KindTransaction = "transaction"
)

// NotFoundError reports a missing product or transaction.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError carries the numbers a client needs to show the
// shortage.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the ErrStore category and the underlying cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// storeFailure leaves ledger errors untouched and wraps anything else as a
// StoreError for op.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsClientError returns true if the caller can fix the failure by changing
// its input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
