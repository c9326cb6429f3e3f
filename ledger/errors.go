/*
errors.go - Centralized error types for the drawer ledger

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every validation failure is detected before any log append, so a
  returned error always means the log is unchanged.

ERROR CATEGORIES:
  1. Lifecycle errors - Session state violations (already open, closed)
  2. Validation errors - Bad input (amounts, notes, counts)
  3. Balance errors - Insufficient funds, unknown currency
  4. Store errors - Persistence-level failures

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrDrawerClosed) { ... }

    var insuff *ledger.InsufficientFundsError
    if errors.As(err, &insuff) {
        fmt.Println("available:", insuff.Available)
    }

SEE ALSO:
  - drawer.go: Raises these errors
  - store.go: Raises store-level errors
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyOpen is returned when opening a drawer that is already open.
	ErrAlreadyOpen = errors.New("drawer already open")

	// ErrAlreadyClosed is returned when closing a drawer that is not open.
	ErrAlreadyClosed = errors.New("drawer already closed")

	// ErrDrawerClosed is returned when a mutation is attempted while the
	// drawer is closed. Only open/query/project are allowed in that state.
	ErrDrawerClosed = errors.New("drawer is closed")

	// ErrEmptyInitialCount is returned when opening with no counts, or with
	// counts that are all zero.
	ErrEmptyInitialCount = errors.New("initial count is empty or all zero")

	// ErrInvalidAmount is returned for negative or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMissingNotes is returned when a deposit or withdrawal carries no notes.
	ErrMissingNotes = errors.New("notes are required")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the
	// projected balance. Adjustments are exempt - their purpose is to
	// correct drift, including negative drift.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCurrencyNotFound is returned when querying or withdrawing a
	// currency that has no history in the log.
	ErrCurrencyNotFound = errors.New("currency not found")

	// ErrDuplicateOperationID is returned by stores when an operation id
	// already exists. The log is append-only; ids are never reused.
	ErrDuplicateOperationID = errors.New("duplicate operation id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports a withdrawal that exceeds the projected
// balance, carrying the available amount for the caller to display.
type InsufficientFundsError struct {
	Currency  Currency
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s available %s, requested %s",
		e.Currency, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// CurrencyNotFoundError reports an operation against a currency with no
// history in the log.
type CurrencyNotFoundError struct {
	Currency Currency
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("currency not found: no history for %s", e.Currency)
}

func (e *CurrencyNotFoundError) Unwrap() error {
	return ErrCurrencyNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// or state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrDrawerClosed) ||
		errors.Is(err, ErrEmptyInitialCount) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingNotes) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound returns true if the error indicates a missing currency.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCurrencyNotFound)
}
