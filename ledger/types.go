/*
Package ledger provides the core cash-drawer ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking a
  physical cash drawer: an append-only log of cash movements per currency,
  a pure balance projection over that log, the open/closed session state
  machine, and reconciliation of manual counts against recorded balances.

KEY CONCEPTS IN THIS FILE (types.go):
  - Currency: A short currency identifier (e.g. "USD"); the active set is
    open-ended - whatever has ever appeared in the log
  - CashOperation: An immutable ledger entry recording one cash movement
  - AdjustmentDirection: Structured surplus/shortage marker for adjustments
  - Session: The drawer's open/closed state
  - CurrencyBalance: A derived balance, always recomputable from the log

DESIGN PRINCIPLES:
  1. Immutability: Operations are never modified or deleted, only appended
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Exhaustiveness: OperationKind is a closed variant set; every consumer
     switches over all kinds
  4. Derivation: Balances are never stored, only projected from the log

USAGE:
  op := ledger.CashOperation{
      Kind:     ledger.KindDeposit,
      Currency: "USD",
      Amount:   decimal.NewFromInt(200),
      Actor:    "teller-1",
      Notes:    "till-in",
  }

SEE ALSO:
  - drawer.go: Session lifecycle and mutation operations
  - projection.go: Balance calculation from operations
  - store.go: Operation persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Currency is a short currency code such as "USD" or "EUR".
// The core does not restrict the set; any currency that appears in an
// operation is tracked.
type Currency string

// OperationID identifies a single ledger entry. IDs are assigned from a
// monotonic counter and zero-padded so lexicographic order equals
// assignment order.
type OperationID string

// =============================================================================
// OPERATION KIND - Closed variant set
// =============================================================================

type OperationKind string

const (
	KindOpen       OperationKind = "open"       // Opening count seeding a session
	KindClose      OperationKind = "close"      // Closing snapshot, informational
	KindDeposit    OperationKind = "deposit"    // Cash put into the drawer
	KindWithdrawal OperationKind = "withdrawal" // Cash taken out of the drawer
	KindAdjustment OperationKind = "adjustment" // Reconciliation correction
)

// Valid reports whether k is one of the known operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindOpen, KindClose, KindDeposit, KindWithdrawal, KindAdjustment:
		return true
	}
	return false
}

// =============================================================================
// ADJUSTMENT DIRECTION
// =============================================================================

// AdjustmentDirection records whether a reconciliation adjustment is a
// surplus (counted more than recorded) or a shortage (counted less).
// The direction is a structured field, never inferred from notes text.
type AdjustmentDirection string

const (
	DirectionNone     AdjustmentDirection = ""
	DirectionSurplus  AdjustmentDirection = "surplus"
	DirectionShortage AdjustmentDirection = "shortage"
)

// =============================================================================
// CASH OPERATION - Immutable ledger entry
// =============================================================================

// CashOperation is one immutable entry in the drawer's operation log.
//
// Amount is always a non-negative magnitude; the balance effect is derived
// from Kind (and Direction for adjustments). Corrections never mutate an
// existing operation - they append a new Adjustment.
type CashOperation struct {
	ID        OperationID
	Kind      OperationKind
	Currency  Currency
	Amount    decimal.Decimal     // non-negative magnitude
	Direction AdjustmentDirection // set only when Kind == KindAdjustment
	Timestamp time.Time
	Actor     string // opaque identifier of the acting user
	Notes     string // required for deposit/withdrawal, generated for adjustments
	Reference string // correlation id, generated when absent
}

// SignedDelta returns the operation's effect on the running balance.
// Close operations are informational snapshots and contribute zero.
func (op CashOperation) SignedDelta() decimal.Decimal {
	switch op.Kind {
	case KindOpen, KindDeposit:
		return op.Amount
	case KindWithdrawal:
		return op.Amount.Neg()
	case KindAdjustment:
		if op.Direction == DirectionShortage {
			return op.Amount.Neg()
		}
		return op.Amount
	case KindClose:
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

// =============================================================================
// SESSION - Drawer lifecycle state
// =============================================================================

// Session is the drawer's open/closed state. A drawer starts closed;
// Open and Close cycle it. Exactly one session exists per drawer.
type Session struct {
	IsOpen   bool
	OpenedAt time.Time // zero when the drawer has never been opened
	OpenedBy string
}

// =============================================================================
// DERIVED BALANCES
// =============================================================================

// CurrencyBalance is a derived view of one currency's projected balance.
// It is never stored; it is always recomputed by replaying the log.
type CurrencyBalance struct {
	Currency    Currency
	Amount      decimal.Decimal
	LastUpdated time.Time // timestamp of the last operation touching this currency
}

// InitialCount is one currency's opening amount when opening the drawer.
type InitialCount struct {
	Currency Currency
	Amount   decimal.Decimal
}

// =============================================================================
// RECONCILIATION RESULT
// =============================================================================

// ReconciliationResult reports the outcome of comparing a manual count
// against the recorded balance. When the count matches, Balanced is true
// and Operation is nil - a zero-variance reconciliation is a read, not a
// write. Otherwise Operation is the appended adjustment.
type ReconciliationResult struct {
	Currency  Currency
	Recorded  decimal.Decimal
	Counted   decimal.Decimal
	Variance  decimal.Decimal // Counted - Recorded
	Balanced  bool
	Operation *CashOperation
}
