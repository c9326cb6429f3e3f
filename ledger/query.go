/*
query.go - Read-only filtering, sorting and pagination over the log

PURPOSE:
  The query layer is a pure function over a snapshot of the operation
  log. It never mutates anything; it supports the history views of the
  presentation layer (tables, exports, audits).

FILTERING:
  - Kind, Currency: exact match
  - From/To: inclusive timestamp range
  - Search: case-insensitive substring over id, currency, notes,
    reference and actor

SORTING:
  - timestamp or amount, ascending or descending
  - ties always broken by id ascending so pagination is deterministic

SEE ALSO:
  - drawer.go: Operations() snapshots the log and delegates here
*/
package ledger

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// FILTER / SORT / PAGE TYPES
// =============================================================================

// Filter selects operations from the log. Nil/zero fields match everything.
type Filter struct {
	Kind     *OperationKind
	Currency *Currency
	From     *time.Time // inclusive
	To       *time.Time // inclusive
	Search   string     // case-insensitive free text
}

type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByAmount    SortField = "amount"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort describes result ordering. Zero values default to timestamp ascending.
type Sort struct {
	Field     SortField
	Direction SortDirection
}

// PageRequest is a 1-based page selector. Size <= 0 falls back to
// DefaultPageSize; Number < 1 falls back to 1.
type PageRequest struct {
	Number int
	Size   int
}

const DefaultPageSize = 50

// Page is one page of query results with totals for pagination controls.
type Page struct {
	Operations []CashOperation
	Total      int // matching operations across all pages
	Number     int
	Size       int
	TotalPages int
}

// =============================================================================
// QUERY - Pure function over a log snapshot
// =============================================================================

// Query filters, sorts and paginates a snapshot of the operation log.
// The input slice is not modified.
func Query(ops []CashOperation, filter Filter, sortBy Sort, page PageRequest) Page {
	matched := make([]CashOperation, 0, len(ops))
	for _, op := range ops {
		if filter.matches(op) {
			matched = append(matched, op)
		}
	}

	sortOperations(matched, sortBy)

	if page.Size <= 0 {
		page.Size = DefaultPageSize
	}
	if page.Number < 1 {
		page.Number = 1
	}

	total := len(matched)
	totalPages := (total + page.Size - 1) / page.Size
	start := (page.Number - 1) * page.Size
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	return Page{
		Operations: matched[start:end],
		Total:      total,
		Number:     page.Number,
		Size:       page.Size,
		TotalPages: totalPages,
	}
}

func (f Filter) matches(op CashOperation) bool {
	if f.Kind != nil && op.Kind != *f.Kind {
		return false
	}
	if f.Currency != nil && op.Currency != *f.Currency {
		return false
	}
	if f.From != nil && op.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && op.Timestamp.After(*f.To) {
		return false
	}
	if f.Search != "" && !matchesSearch(op, f.Search) {
		return false
	}
	return true
}

func matchesSearch(op CashOperation, search string) bool {
	needle := strings.ToLower(search)
	for _, haystack := range []string{
		string(op.ID),
		string(op.Currency),
		op.Notes,
		op.Reference,
		op.Actor,
	} {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

func sortOperations(ops []CashOperation, s Sort) {
	desc := s.Direction == SortDesc

	sort.Slice(ops, func(i, j int) bool {
		var less, equal bool
		switch s.Field {
		case SortByAmount:
			cmp := ops[i].Amount.Cmp(ops[j].Amount)
			less, equal = cmp < 0, cmp == 0
		default: // SortByTimestamp
			less = ops[i].Timestamp.Before(ops[j].Timestamp)
			equal = ops[i].Timestamp.Equal(ops[j].Timestamp)
		}
		if equal {
			// Tie-break by id ascending regardless of direction, so
			// pagination stays deterministic.
			return ops[i].ID < ops[j].ID
		}
		if desc {
			return !less
		}
		return less
	})
}

// TodayRange returns the inclusive [start, end] window for "today" in UTC,
// for the common today-filter on drawer activity.
func TodayRange(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Nanosecond)
	return start, end
}
