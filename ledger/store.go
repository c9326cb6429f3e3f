/*
store.go - Persistence interface for the operation log and session

PURPOSE:
  Defines the interface between the ledger and its storage. The Store
  persists the append-only operation log plus the single session row.
  Different implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  The operation log is append-only:
  - Append(): Single operation write
  - AppendBatch(): Atomic multi-operation write (open/close seed sets)
  - NO Update() or Delete() methods exist

  The session row is the one piece of mutable state, because it is a
  state-machine position, not history. Balances are NEVER persisted -
  they are recomputed from the log to prevent drift between a stored
  balance and the stored log.

ATOMIC BATCHES:
  AppendBatch() ensures all-or-nothing semantics. Opening a drawer with
  three currencies appends three Open operations; either all three are
  written or none are.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory for testing

SEE ALSO:
  - drawer.go: The single writer over this interface
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ledger

import "context"

// Store handles persistence of cash operations and the session.
// IMPORTANT: The operation log is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via adjustment operations.
type Store interface {
	// Append persists one operation. Returns ErrDuplicateOperationID if the
	// id already exists.
	Append(ctx context.Context, op CashOperation) error

	// AppendBatch persists multiple operations atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, ops []CashOperation) error

	// Load returns the full operation log in append order.
	Load(ctx context.Context) ([]CashOperation, error)

	// SaveSession persists the drawer's session state.
	SaveSession(ctx context.Context, s Session) error

	// LoadSession returns the persisted session state. A store with no
	// session row returns the zero Session (closed, never opened).
	LoadSession(ctx context.Context) (Session, error)
}
