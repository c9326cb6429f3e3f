/*
drawer.go - The cash drawer: session lifecycle and mutation operations

PURPOSE:
  Drawer is the injectable state container that owns one operation log
  and one session. It is the single writer over the Store: every
  mutation runs validate-then-append under an exclusive lock, so two
  concurrent withdrawals cannot both pass the sufficient-funds check
  against a stale balance.

LIFECYCLE:
  A drawer starts closed. Open() seeds one Open operation per non-zero
  currency and transitions to open. Close() snapshots each active
  currency with a Close operation and transitions back. The log is
  append-only across sessions; prior-session history stays queryable.

WRITE PATH (fixed order, no optimistic shortcuts):
  1. Validate input and session state
  2. Append to the authoritative log
  3. Project for the returned/derived state
  Nothing is visible to readers until the append has succeeded; a failed
  validation leaves the log byte-identical.

CONCURRENCY:
  - Writers (Open, Close, Deposit, Withdraw, Reconcile): exclusive lock
  - Readers (Balance, Balances, Operations, IsOpen): shared lock over a
    snapshot of the log
  Reconcile is read-then-conditionally-write and therefore runs under
  the write lock like every other mutation.

ID GENERATION:
  Operation ids come from a monotonic counter seeded from the persisted
  log at construction, formatted zero-padded so lexicographic order
  equals assignment order. Wall-clock id schemes collide under rapid
  writes; a counter cannot.

SEE ALSO:
  - projection.go: The balance fold
  - query.go: Read-only history queries
  - store.go: Persistence contract
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DRAWER
// =============================================================================

// Drawer tracks one physical cash drawer. Construct independent instances
// per drawer (and per test); there is no package-level state.
type Drawer struct {
	mu      sync.RWMutex
	store   Store
	session Session
	nextSeq uint64
}

// NewDrawer restores a drawer from its store: session state and the id
// counter are re-derived from persisted state, balances are never read
// from anywhere but the log.
func NewDrawer(ctx context.Context, store Store) (*Drawer, error) {
	session, err := store.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	ops, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation log: %w", err)
	}

	return &Drawer{
		store:   store,
		session: session,
		nextSeq: nextSequence(ops),
	}, nil
}

// nextSequence seeds the id counter one past the highest persisted id.
func nextSequence(ops []CashOperation) uint64 {
	var max uint64
	for _, op := range ops {
		raw := strings.TrimPrefix(string(op.ID), "op-")
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

func (d *Drawer) nextID() OperationID {
	id := OperationID(fmt.Sprintf("op-%08d", d.nextSeq))
	d.nextSeq++
	return id
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// Open transitions the drawer from closed to open, seeding one Open
// operation per non-zero currency in counts.
//
// Fails with ErrAlreadyOpen if a session is already open, ErrInvalidAmount
// on a negative count or blank currency, and ErrEmptyInitialCount when
// counts is empty or all-zero.
func (d *Drawer) Open(ctx context.Context, actor string, counts []InitialCount) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session.IsOpen {
		return d.session, ErrAlreadyOpen
	}

	nonZero := 0
	for _, c := range counts {
		if c.Currency == "" || c.Amount.IsNegative() {
			return d.session, ErrInvalidAmount
		}
		if c.Amount.IsPositive() {
			nonZero++
		}
	}
	if nonZero == 0 {
		return d.session, ErrEmptyInitialCount
	}

	now := time.Now().UTC()
	reference := uuid.NewString() // one reference correlates the whole opening
	ops := make([]CashOperation, 0, nonZero)
	for _, c := range counts {
		if !c.Amount.IsPositive() {
			continue
		}
		ops = append(ops, CashOperation{
			ID:        d.nextID(),
			Kind:      KindOpen,
			Currency:  c.Currency,
			Amount:    c.Amount,
			Timestamp: now,
			Actor:     actor,
			Notes:     "opening count",
			Reference: reference,
		})
	}

	if err := d.store.AppendBatch(ctx, ops); err != nil {
		return d.session, fmt.Errorf("failed to append opening operations: %w", err)
	}

	// Persist first: the in-memory state must never be more open than the
	// stored row, or a restart silently flips the drawer shut.
	session := Session{IsOpen: true, OpenedAt: now, OpenedBy: actor}
	if err := d.store.SaveSession(ctx, session); err != nil {
		return d.session, fmt.Errorf("failed to save session: %w", err)
	}
	d.session = session
	return d.session, nil
}

// Close transitions the drawer from open to closed, appending one Close
// operation per active currency carrying its projected balance snapshot.
// The log itself is never erased; history spans sessions.
//
// Fails with ErrAlreadyClosed if the drawer is not open.
func (d *Drawer) Close(ctx context.Context, actor string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.session.IsOpen {
		return d.session, ErrAlreadyClosed
	}

	log, err := d.store.Load(ctx)
	if err != nil {
		return d.session, fmt.Errorf("failed to load operation log: %w", err)
	}
	totals := Project(log)

	now := time.Now().UTC()
	reference := uuid.NewString()
	var ops []CashOperation
	for _, currency := range activeCurrencies(log) {
		ops = append(ops, CashOperation{
			ID:        d.nextID(),
			Kind:      KindClose,
			Currency:  currency,
			Amount:    totals[currency],
			Timestamp: now,
			Actor:     actor,
			Notes:     "closing count",
			Reference: reference,
		})
	}

	if len(ops) > 0 {
		if err := d.store.AppendBatch(ctx, ops); err != nil {
			return d.session, fmt.Errorf("failed to append closing operations: %w", err)
		}
	}

	session := Session{IsOpen: false}
	if err := d.store.SaveSession(ctx, session); err != nil {
		return d.session, fmt.Errorf("failed to save session: %w", err)
	}
	d.session = session
	return d.session, nil
}

// IsOpen reports whether the drawer currently accepts mutations.
func (d *Drawer) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.IsOpen
}

// Session returns the current session state.
func (d *Drawer) Session() Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

// =============================================================================
// CASH MOVEMENTS
// =============================================================================

// Deposit records cash put into the drawer. There is no upper bound.
//
// Preconditions: session open, amount > 0, notes non-empty.
func (d *Drawer) Deposit(ctx context.Context, actor string, currency Currency, amount decimal.Decimal, notes, reference string) (CashOperation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.validateMovement(currency, amount, notes); err != nil {
		return CashOperation{}, err
	}

	op := d.buildOperation(KindDeposit, actor, currency, amount, notes, reference)
	if err := d.store.Append(ctx, op); err != nil {
		return CashOperation{}, fmt.Errorf("failed to append deposit: %w", err)
	}
	return op, nil
}

// Withdraw records cash taken out of the drawer. This is the one place
// the core enforces the non-negative-balance invariant: the amount must
// not exceed the projected balance.
//
// Fails with CurrencyNotFoundError when the currency has no history and
// InsufficientFundsError (carrying the available amount) when it does
// but the balance is too low. Either failure leaves the log unchanged.
func (d *Drawer) Withdraw(ctx context.Context, actor string, currency Currency, amount decimal.Decimal, notes, reference string) (CashOperation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.validateMovement(currency, amount, notes); err != nil {
		return CashOperation{}, err
	}

	log, err := d.store.Load(ctx)
	if err != nil {
		return CashOperation{}, fmt.Errorf("failed to load operation log: %w", err)
	}
	available, ok := Project(log)[currency]
	if !ok {
		return CashOperation{}, &CurrencyNotFoundError{Currency: currency}
	}
	if amount.GreaterThan(available) {
		return CashOperation{}, &InsufficientFundsError{
			Currency:  currency,
			Available: available,
			Requested: amount,
		}
	}

	op := d.buildOperation(KindWithdrawal, actor, currency, amount, notes, reference)
	if err := d.store.Append(ctx, op); err != nil {
		return CashOperation{}, fmt.Errorf("failed to append withdrawal: %w", err)
	}
	return op, nil
}

func (d *Drawer) validateMovement(currency Currency, amount decimal.Decimal, notes string) error {
	if !d.session.IsOpen {
		return ErrDrawerClosed
	}
	if currency == "" || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(notes) == "" {
		return ErrMissingNotes
	}
	return nil
}

func (d *Drawer) buildOperation(kind OperationKind, actor string, currency Currency, amount decimal.Decimal, notes, reference string) CashOperation {
	if reference == "" {
		reference = uuid.NewString()
	}
	return CashOperation{
		ID:        d.nextID(),
		Kind:      kind,
		Currency:  currency,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Notes:     notes,
		Reference: reference,
	}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile compares a manual cash count against the projected balance.
//
// A zero variance is a read, not a write: nothing is appended and the
// result reports Balanced. A non-zero variance appends exactly one
// Adjustment with a structured surplus/shortage direction whose signed
// effect brings the projected balance to the counted amount. Adjustments
// are exempt from the sufficient-funds check; correcting negative drift
// is their purpose.
//
// Preconditions: session open, countedAmount >= 0.
func (d *Drawer) Reconcile(ctx context.Context, actor string, currency Currency, counted decimal.Decimal) (ReconciliationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.session.IsOpen {
		return ReconciliationResult{}, ErrDrawerClosed
	}
	if currency == "" || counted.IsNegative() {
		return ReconciliationResult{}, ErrInvalidAmount
	}

	log, err := d.store.Load(ctx)
	if err != nil {
		return ReconciliationResult{}, fmt.Errorf("failed to load operation log: %w", err)
	}
	recorded := Project(log)[currency] // zero for a currency with no history

	variance := counted.Sub(recorded)
	result := ReconciliationResult{
		Currency: currency,
		Recorded: recorded,
		Counted:  counted,
		Variance: variance,
	}

	if variance.IsZero() {
		result.Balanced = true
		return result, nil
	}

	direction := DirectionSurplus
	if variance.IsNegative() {
		direction = DirectionShortage
	}

	op := CashOperation{
		ID:        d.nextID(),
		Kind:      KindAdjustment,
		Currency:  currency,
		Amount:    variance.Abs(),
		Direction: direction,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Notes:     fmt.Sprintf("cash count adjustment: recorded %s, counted %s", recorded, counted),
		Reference: uuid.NewString(),
	}
	if err := d.store.Append(ctx, op); err != nil {
		return ReconciliationResult{}, fmt.Errorf("failed to append adjustment: %w", err)
	}

	result.Operation = &op
	return result, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Balance returns the projected balance for one currency.
// Fails with CurrencyNotFoundError when the currency has no history.
func (d *Drawer) Balance(ctx context.Context, currency Currency) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, err := d.store.Load(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load operation log: %w", err)
	}
	balance, ok := Project(log)[currency]
	if !ok {
		return decimal.Zero, &CurrencyNotFoundError{Currency: currency}
	}
	return balance, nil
}

// Balances returns projected balances for every currency with history,
// sorted by currency.
func (d *Drawer) Balances(ctx context.Context) ([]CurrencyBalance, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, err := d.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation log: %w", err)
	}
	return ProjectBalances(log), nil
}

// Operations queries the historical log. Works in either session state.
func (d *Drawer) Operations(ctx context.Context, filter Filter, sortBy Sort, page PageRequest) (Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, err := d.store.Load(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("failed to load operation log: %w", err)
	}
	return Query(log, filter, sortBy, page), nil
}
