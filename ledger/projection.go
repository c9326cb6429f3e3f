/*
projection.go - Pure balance projection over the operation log

PURPOSE:
  Balance is always computed by replaying operations - there is no stored
  "balance" field that can get out of sync with the log. Project is a
  deterministic, side-effect-free fold so it can be re-run for audit and
  backfill at any time.

FOLD RULES (exhaustive over OperationKind):
  Open:       adds the opening amount
  Deposit:    adds the amount
  Withdrawal: subtracts the amount
  Adjustment: applies the signed delta from its structured direction
  Close:      informational snapshot, contributes nothing

RE-BASE:
  Any activity on a currency whose latest marker is a Close re-bases the
  running total to zero first: the closing count left the drawer, so the
  prior session's total must not leak into the new one. This applies to
  every mutating kind, not just Open - a deposit into a previously-closed
  currency starts that currency's new session from zero. Prior-session
  history stays queryable without double counting.

SEE ALSO:
  - types.go: CashOperation.SignedDelta
  - drawer.go: Uses the fold for validate-then-append decisions
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Project folds the operation log into a balance per currency.
// The fold is deterministic: the same log always yields the same map.
func Project(ops []CashOperation) map[Currency]decimal.Decimal {
	totals, _, _ := fold(ops)
	return totals
}

// ProjectBalances folds the log into CurrencyBalance views, sorted by
// currency for stable output. Every currency that ever appeared in the
// log is reported, including currencies whose sessions have closed.
func ProjectBalances(ops []CashOperation) []CurrencyBalance {
	totals, _, touched := fold(ops)

	balances := make([]CurrencyBalance, 0, len(totals))
	for currency, amount := range totals {
		balances = append(balances, CurrencyBalance{
			Currency:    currency,
			Amount:      amount,
			LastUpdated: touched[currency],
		})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Currency < balances[j].Currency
	})
	return balances
}

// fold is the single projection implementation. It returns the running
// total per currency, the set of currencies whose latest marker is a
// Close (awaiting re-base on the next Open), and the timestamp of the
// last operation touching each currency.
func fold(ops []CashOperation) (map[Currency]decimal.Decimal, map[Currency]bool, map[Currency]time.Time) {
	totals := make(map[Currency]decimal.Decimal)
	closed := make(map[Currency]bool)
	touched := make(map[Currency]time.Time)

	for _, op := range ops {
		// Any mutation after a Close re-bases the currency: the closing
		// count left the drawer.
		if closed[op.Currency] && op.Kind != KindClose {
			totals[op.Currency] = decimal.Zero
			closed[op.Currency] = false
		}

		switch op.Kind {
		case KindOpen, KindDeposit, KindWithdrawal, KindAdjustment:
			totals[op.Currency] = totals[op.Currency].Add(op.SignedDelta())
		case KindClose:
			// Snapshot only. Ensure the currency is reported even if the
			// close is its first (and only) marker in the log.
			totals[op.Currency] = totals[op.Currency].Add(decimal.Zero)
			closed[op.Currency] = true
		}
		touched[op.Currency] = op.Timestamp
	}

	return totals, closed, touched
}

// activeCurrencies returns the currencies participating in the current
// session: seen in the log and not closed by a trailing Close. Sorted
// for deterministic close-operation ordering.
func activeCurrencies(ops []CashOperation) []Currency {
	totals, closed, _ := fold(ops)

	var active []Currency
	for currency := range totals {
		if !closed[currency] {
			active = append(active, currency)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	return active
}
