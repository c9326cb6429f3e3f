package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cash-drawer/ledger"
	"github.com/warp/cash-drawer/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestDrawer(t *testing.T) (*ledger.Drawer, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	drawer, err := ledger.NewDrawer(context.Background(), mem)
	require.NoError(t, err)
	return drawer, mem
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func openWith(t *testing.T, d *ledger.Drawer, counts ...ledger.InitialCount) {
	t.Helper()
	_, err := d.Open(context.Background(), "u1", counts)
	require.NoError(t, err)
}

func usd(amount float64) ledger.InitialCount {
	return ledger.InitialCount{Currency: "USD", Amount: dec(amount)}
}

func balance(t *testing.T, d *ledger.Drawer, currency ledger.Currency) decimal.Decimal {
	t.Helper()
	b, err := d.Balance(context.Background(), currency)
	require.NoError(t, err)
	return b
}

func allOperations(t *testing.T, d *ledger.Drawer) []ledger.CashOperation {
	t.Helper()
	page, err := d.Operations(context.Background(), ledger.Filter{}, ledger.Sort{}, ledger.PageRequest{Number: 1, Size: 1000})
	require.NoError(t, err)
	return page.Operations
}

// =============================================================================
// LIFECYCLE SCENARIO
// =============================================================================

func TestDrawer_OpenDepositWithdrawClose_Scenario(t *testing.T) {
	// GIVEN: A drawer opened with 1000 USD
	// WHEN: Depositing 200, failing a 1500 withdrawal, withdrawing 200, closing
	// THEN: Balances track each step and survive the close

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	openWith(t, drawer, usd(1000))
	assert.True(t, drawer.IsOpen())
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1000)))

	_, err := drawer.Deposit(ctx, "u1", "USD", dec(200), "till-in", "")
	require.NoError(t, err)
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1200)))

	_, err = drawer.Withdraw(ctx, "u1", "USD", dec(1500), "payout", "")
	var insufficient *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(dec(1200)), "error carries available amount")
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1200)), "failed withdrawal leaves balance unchanged")

	_, err = drawer.Withdraw(ctx, "u1", "USD", dec(200), "payout", "")
	require.NoError(t, err)
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1000)))

	_, err = drawer.Close(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, drawer.IsOpen())
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1000)), "balance stays queryable after close")
}

func TestDrawer_Open_AlreadyOpen_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(100))

	_, err := drawer.Open(context.Background(), "u2", []ledger.InitialCount{usd(50)})
	assert.ErrorIs(t, err, ledger.ErrAlreadyOpen)
}

func TestDrawer_Open_EmptyOrZeroCounts_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	_, err := drawer.Open(ctx, "u1", nil)
	assert.ErrorIs(t, err, ledger.ErrEmptyInitialCount)

	_, err = drawer.Open(ctx, "u1", []ledger.InitialCount{
		{Currency: "USD", Amount: decimal.Zero},
		{Currency: "EUR", Amount: decimal.Zero},
	})
	assert.ErrorIs(t, err, ledger.ErrEmptyInitialCount)

	assert.False(t, drawer.IsOpen())
	assert.Empty(t, allOperations(t, drawer), "failed open appends nothing")
}

func TestDrawer_Open_NegativeCount_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)

	_, err := drawer.Open(context.Background(), "u1", []ledger.InitialCount{
		{Currency: "USD", Amount: dec(-5)},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestDrawer_Open_SkipsZeroCurrencies(t *testing.T) {
	// GIVEN: Initial counts with a zero EUR line
	// THEN: Only the non-zero currencies get Open operations

	drawer, _ := newTestDrawer(t)
	openWith(t, drawer,
		usd(1000),
		ledger.InitialCount{Currency: "EUR", Amount: decimal.Zero},
	)

	ops := allOperations(t, drawer)
	require.Len(t, ops, 1)
	assert.Equal(t, ledger.Currency("USD"), ops[0].Currency)
	assert.Equal(t, ledger.KindOpen, ops[0].Kind)
}

func TestDrawer_Close_AlreadyClosed_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)

	_, err := drawer.Close(context.Background(), "u1")
	assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)
}

func TestDrawer_Close_SnapshotsEachCurrency(t *testing.T) {
	// GIVEN: An open drawer with USD and EUR activity
	// WHEN: Closing
	// THEN: One Close operation per currency, carrying the projected balance

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	openWith(t, drawer, usd(1000), ledger.InitialCount{Currency: "EUR", Amount: dec(500)})
	_, err := drawer.Deposit(ctx, "u1", "USD", dec(250), "till-in", "")
	require.NoError(t, err)

	_, err = drawer.Close(ctx, "u1")
	require.NoError(t, err)

	kind := ledger.KindClose
	page, err := drawer.Operations(ctx, ledger.Filter{Kind: &kind}, ledger.Sort{}, ledger.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Operations, 2)

	byCurrency := map[ledger.Currency]decimal.Decimal{}
	for _, op := range page.Operations {
		byCurrency[op.Currency] = op.Amount
	}
	assert.True(t, byCurrency["USD"].Equal(dec(1250)))
	assert.True(t, byCurrency["EUR"].Equal(dec(500)))
}

func TestDrawer_ReopenAfterClose_NoDoubleCount(t *testing.T) {
	// GIVEN: A session opened with 1000 USD and closed
	// WHEN: Reopening with 1000 USD
	// THEN: The balance is 1000, not 2000 - the new opening count re-bases

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	openWith(t, drawer, usd(1000))
	_, err := drawer.Close(ctx, "u1")
	require.NoError(t, err)

	openWith(t, drawer, usd(1000))
	assert.True(t, balance(t, drawer, "USD").Equal(dec(1000)))

	// Prior-session history is still in the log
	ops := allOperations(t, drawer)
	assert.Len(t, ops, 3) // open, close, open
}

func TestDrawer_DepositIntoPreviouslyClosedCurrency_Rebases(t *testing.T) {
	// GIVEN: USD closed in a prior session, a new session opened with EUR only
	// WHEN: Depositing 200 USD
	// THEN: The USD balance is 200 - the 1000 that left at close does not
	//       count again - and the next close snapshots USD and EUR both

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	openWith(t, drawer, usd(1000))
	_, err := drawer.Close(ctx, "u1")
	require.NoError(t, err)

	openWith(t, drawer, ledger.InitialCount{Currency: "EUR", Amount: dec(500)})
	_, err = drawer.Deposit(ctx, "u1", "USD", dec(200), "till-in", "")
	require.NoError(t, err)

	assert.True(t, balance(t, drawer, "USD").Equal(dec(200)), "prior session's cash left at close")

	_, err = drawer.Withdraw(ctx, "u1", "USD", dec(1200), "payout", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds, "phantom prior-session funds are not withdrawable")

	_, err = drawer.Close(ctx, "u1")
	require.NoError(t, err)

	kind := ledger.KindClose
	page, err := drawer.Operations(ctx, ledger.Filter{Kind: &kind}, ledger.Sort{}, ledger.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Operations, 3, "first close: USD; second close: EUR and USD")

	// Default sort is append order, so the map keeps the latest snapshot.
	latest := map[ledger.Currency]decimal.Decimal{}
	for _, op := range page.Operations {
		latest[op.Currency] = op.Amount
	}
	assert.True(t, latest["USD"].Equal(dec(200)))
	assert.True(t, latest["EUR"].Equal(dec(500)))
}

// =============================================================================
// SESSION GATING
// =============================================================================

func TestDrawer_MutationsWhileClosed_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	ctx := context.Background()

	_, err := drawer.Deposit(ctx, "u1", "USD", dec(10), "till-in", "")
	assert.ErrorIs(t, err, ledger.ErrDrawerClosed)

	_, err = drawer.Withdraw(ctx, "u1", "USD", dec(10), "payout", "")
	assert.ErrorIs(t, err, ledger.ErrDrawerClosed)

	_, err = drawer.Reconcile(ctx, "u1", "USD", dec(10))
	assert.ErrorIs(t, err, ledger.ErrDrawerClosed)

	assert.Empty(t, allOperations(t, drawer), "gated mutations append nothing")
}

// =============================================================================
// CASH MOVEMENT VALIDATION
// =============================================================================

func TestDrawer_Deposit_Validation(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	ctx := context.Background()
	openWith(t, drawer, usd(100))

	_, err := drawer.Deposit(ctx, "u1", "USD", decimal.Zero, "till-in", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "zero amount")

	_, err = drawer.Deposit(ctx, "u1", "USD", dec(-10), "till-in", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "negative amount")

	_, err = drawer.Deposit(ctx, "u1", "USD", dec(10), "   ", "")
	assert.ErrorIs(t, err, ledger.ErrMissingNotes, "blank notes")

	_, err = drawer.Deposit(ctx, "u1", "", dec(10), "till-in", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "blank currency")
}

func TestDrawer_Deposit_GeneratesReference(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(100))

	op, err := drawer.Deposit(context.Background(), "u1", "USD", dec(10), "till-in", "")
	require.NoError(t, err)
	assert.NotEmpty(t, op.Reference, "reference defaults to a generated id")

	op2, err := drawer.Deposit(context.Background(), "u1", "USD", dec(10), "till-in", "ref-42")
	require.NoError(t, err)
	assert.Equal(t, "ref-42", op2.Reference, "caller-supplied reference is kept")
}

func TestDrawer_Withdraw_UnknownCurrency_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(100))

	_, err := drawer.Withdraw(context.Background(), "u1", "EUR", dec(10), "payout", "")
	var notFound *ledger.CurrencyNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.ErrorIs(t, err, ledger.ErrCurrencyNotFound)
}

func TestDrawer_Withdraw_InsufficientFunds_LogUnchanged(t *testing.T) {
	// GIVEN: 100 USD in the drawer
	// WHEN: Withdrawing 150
	// THEN: The failure leaves the log identical, length and content

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()
	openWith(t, drawer, usd(100))

	before := allOperations(t, drawer)

	_, err := drawer.Withdraw(ctx, "u1", "USD", dec(150), "payout", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	after := allOperations(t, drawer)
	assert.Equal(t, before, after)
}

func TestDrawer_Withdraw_ExactBalance_Allowed(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(100))

	_, err := drawer.Withdraw(context.Background(), "u1", "USD", dec(100), "payout", "")
	require.NoError(t, err)
	assert.True(t, balance(t, drawer, "USD").IsZero())
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestDrawer_Reconcile_Balanced_IsAReadNotAWrite(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(1000))

	before := allOperations(t, drawer)

	result, err := drawer.Reconcile(context.Background(), "u1", "USD", dec(1000))
	require.NoError(t, err)

	assert.True(t, result.Balanced)
	assert.True(t, result.Variance.IsZero())
	assert.Nil(t, result.Operation)
	assert.Equal(t, before, allOperations(t, drawer), "zero variance appends nothing")
}

func TestDrawer_Reconcile_Surplus(t *testing.T) {
	// GIVEN: 1000 USD recorded
	// WHEN: Counting 1050
	// THEN: One surplus adjustment of 50 brings the balance to 1050

	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(1000))

	result, err := drawer.Reconcile(context.Background(), "u1", "USD", dec(1050))
	require.NoError(t, err)

	assert.False(t, result.Balanced)
	assert.True(t, result.Variance.Equal(dec(50)))
	require.NotNil(t, result.Operation)
	assert.Equal(t, ledger.KindAdjustment, result.Operation.Kind)
	assert.Equal(t, ledger.DirectionSurplus, result.Operation.Direction)
	assert.True(t, result.Operation.Amount.Equal(dec(50)))
	assert.NotEmpty(t, result.Operation.Notes)
	assert.NotEmpty(t, result.Operation.Reference)

	assert.True(t, balance(t, drawer, "USD").Equal(dec(1050)))
}

func TestDrawer_Reconcile_Shortage(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(1000))

	result, err := drawer.Reconcile(context.Background(), "u1", "USD", dec(920))
	require.NoError(t, err)

	assert.True(t, result.Variance.Equal(dec(-80)))
	require.NotNil(t, result.Operation)
	assert.Equal(t, ledger.DirectionShortage, result.Operation.Direction)
	assert.True(t, result.Operation.Amount.Equal(dec(80)), "amount is the absolute variance")

	assert.True(t, balance(t, drawer, "USD").Equal(dec(920)))
}

func TestDrawer_Reconcile_NegativeCount_Rejected(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(1000))

	_, err := drawer.Reconcile(context.Background(), "u1", "USD", dec(-1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestDrawer_Reconcile_UnknownCurrency_TreatsRecordedAsZero(t *testing.T) {
	// Reconciling a currency with no history compares against zero; a
	// positive count records the whole amount as surplus.
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer, usd(1000))

	result, err := drawer.Reconcile(context.Background(), "u1", "EUR", dec(30))
	require.NoError(t, err)
	assert.True(t, result.Recorded.IsZero())
	assert.True(t, result.Variance.Equal(dec(30)))
	assert.True(t, balance(t, drawer, "EUR").Equal(dec(30)))
}

// =============================================================================
// READS
// =============================================================================

func TestDrawer_Balance_UnknownCurrency(t *testing.T) {
	drawer, _ := newTestDrawer(t)

	_, err := drawer.Balance(context.Background(), "CHF")
	assert.ErrorIs(t, err, ledger.ErrCurrencyNotFound)
}

func TestDrawer_Balances_SortedByCurrency(t *testing.T) {
	drawer, _ := newTestDrawer(t)
	openWith(t, drawer,
		usd(100),
		ledger.InitialCount{Currency: "EUR", Amount: dec(200)},
		ledger.InitialCount{Currency: "GBP", Amount: dec(300)},
	)

	balances, err := drawer.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.Equal(t, ledger.Currency("EUR"), balances[0].Currency)
	assert.Equal(t, ledger.Currency("GBP"), balances[1].Currency)
	assert.Equal(t, ledger.Currency("USD"), balances[2].Currency)
	assert.False(t, balances[0].LastUpdated.IsZero())
}

// =============================================================================
// SESSION PERSISTENCE FAILURES
// =============================================================================

// failingSessionStore fails SaveSession on demand; everything else
// delegates to the in-memory store.
type failingSessionStore struct {
	*store.Memory
	failSave bool
}

func (f *failingSessionStore) SaveSession(ctx context.Context, s ledger.Session) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Memory.SaveSession(ctx, s)
}

func TestDrawer_Open_SaveSessionFailure_StaysClosed(t *testing.T) {
	// A failed session save must not leave the in-memory drawer more open
	// than the persisted row, or a restart silently flips it shut.
	st := &failingSessionStore{Memory: store.NewMemory(), failSave: true}
	drawer, err := ledger.NewDrawer(context.Background(), st)
	require.NoError(t, err)

	_, err = drawer.Open(context.Background(), "u1", []ledger.InitialCount{usd(100)})
	require.Error(t, err)
	assert.False(t, drawer.IsOpen(), "in-memory state matches the persisted row")
}

func TestDrawer_Close_SaveSessionFailure_StaysOpen(t *testing.T) {
	st := &failingSessionStore{Memory: store.NewMemory()}
	ctx := context.Background()
	drawer, err := ledger.NewDrawer(ctx, st)
	require.NoError(t, err)
	_, err = drawer.Open(ctx, "u1", []ledger.InitialCount{usd(100)})
	require.NoError(t, err)

	st.failSave = true
	_, err = drawer.Close(ctx, "u1")
	require.Error(t, err)
	assert.True(t, drawer.IsOpen(), "failed close leaves the session open")
}

// =============================================================================
// RESTORE FROM PERSISTED STATE
// =============================================================================

func TestDrawer_Restore_ContinuesSessionAndIDs(t *testing.T) {
	// GIVEN: A drawer with history, restored from the same store
	// THEN: Session state carries over and ids keep increasing

	mem := store.NewMemory()
	ctx := context.Background()

	first, err := ledger.NewDrawer(ctx, mem)
	require.NoError(t, err)
	_, err = first.Open(ctx, "u1", []ledger.InitialCount{usd(100)})
	require.NoError(t, err)
	op, err := first.Deposit(ctx, "u1", "USD", dec(50), "till-in", "")
	require.NoError(t, err)

	restored, err := ledger.NewDrawer(ctx, mem)
	require.NoError(t, err)
	assert.True(t, restored.IsOpen(), "session restored from store")
	assert.Equal(t, "u1", restored.Session().OpenedBy)
	assert.True(t, balance(t, restored, "USD").Equal(dec(150)))

	op2, err := restored.Deposit(ctx, "u1", "USD", dec(25), "till-in", "")
	require.NoError(t, err)
	assert.Greater(t, string(op2.ID), string(op.ID), "id counter continues past persisted ids")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestDrawer_ConcurrentWithdrawals_OnlyOneWins(t *testing.T) {
	// GIVEN: 100 USD and eight concurrent withdrawals of 100
	// THEN: Exactly one passes the sufficient-funds check; no negative balance

	drawer, _ := newTestDrawer(t)
	ctx := context.Background()
	openWith(t, drawer, usd(100))

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := drawer.Withdraw(ctx, "u1", "USD", dec(100), "payout", ""); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.True(t, balance(t, drawer, "USD").IsZero())
}
