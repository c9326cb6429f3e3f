/*
handlers.go - HTTP API handlers for the cash drawer ledger

PURPOSE:
  Exposes the drawer ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. The API is a thin
  caller: every balance it returns was projected from the authoritative
  log after the append succeeded, never before.

ENDPOINTS:
  Drawer:
    POST   /api/drawer/open          Open with initial counts
    POST   /api/drawer/close         Close and snapshot balances
    GET    /api/drawer/session       Current session state

  Balances:
    GET    /api/balances             All projected balances
    GET    /api/balances/{currency}  One currency's balance

  Operations:
    POST   /api/operations/deposit   Record a deposit
    POST   /api/operations/withdraw  Record a withdrawal
    GET    /api/operations           Filter/sort/paginate history
    GET    /api/operations/export    CSV export of filtered history

  Reconciliation:
    POST   /api/reconciliation       Compare a manual count

ERROR HANDLING:
  Domain error kinds map to HTTP statuses:
  - 400: invalid amount, missing notes, empty initial count, bad input
  - 404: currency with no history
  - 409: lifecycle conflicts (already open/closed, drawer closed) and
         insufficient funds
  - 500: internal errors
  The core never swallows an error; neither does this layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/cash-drawer/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Drawer *ledger.Drawer
	Log    zerolog.Logger
}

// NewHandler creates a new handler around a drawer instance.
func NewHandler(drawer *ledger.Drawer, log zerolog.Logger) *Handler {
	return &Handler{Drawer: drawer, Log: log}
}

// =============================================================================
// DRAWER LIFECYCLE HANDLERS
// =============================================================================

// OpenDrawer opens the drawer with initial counts.
func (h *Handler) OpenDrawer(w http.ResponseWriter, r *http.Request) {
	var req OpenDrawerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return
	}

	counts := make([]ledger.InitialCount, len(req.InitialBalances))
	for i, b := range req.InitialBalances {
		counts[i] = ledger.InitialCount{
			Currency: ledger.Currency(b.Currency),
			Amount:   decimal.NewFromFloat(b.Amount),
		}
	}

	session, err := h.Drawer.Open(r.Context(), req.Actor, counts)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info().Str("actor", req.Actor).Int("currencies", len(counts)).Msg("drawer opened")
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

// CloseDrawer closes the drawer.
func (h *Handler) CloseDrawer(w http.ResponseWriter, r *http.Request) {
	var req CloseDrawerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return
	}

	session, err := h.Drawer.Close(r.Context(), req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info().Str("actor", req.Actor).Msg("drawer closed")
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// GetSession returns the current session state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionDTO(h.Drawer.Session()))
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// Deposit records cash put into the drawer.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.Drawer.Deposit)
}

// Withdraw records cash taken out of the drawer.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.Drawer.Withdraw)
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor string, currency ledger.Currency, amount decimal.Decimal, notes, reference string) (ledger.CashOperation, error)) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return
	}

	op, err := apply(r.Context(), req.Actor, ledger.Currency(req.Currency),
		decimal.NewFromFloat(req.Amount), req.Notes, req.Reference)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Log.Info().
		Str("operation", string(op.ID)).
		Str("kind", string(op.Kind)).
		Str("currency", req.Currency).
		Float64("amount", req.Amount).
		Msg("movement recorded")
	writeJSON(w, http.StatusCreated, toOperationDTO(op))
}

// =============================================================================
// RECONCILIATION HANDLER
// =============================================================================

// Reconcile compares a manual count against the projected balance.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", nil)
		return
	}

	result, err := h.Drawer.Reconcile(r.Context(), req.Actor,
		ledger.Currency(req.Currency), decimal.NewFromFloat(req.CountedAmount))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	recorded, _ := result.Recorded.Float64()
	counted, _ := result.Counted.Float64()
	variance, _ := result.Variance.Float64()
	dto := ReconciliationDTO{
		Currency: string(result.Currency),
		Recorded: recorded,
		Counted:  counted,
		Variance: variance,
		Balanced: result.Balanced,
	}
	if result.Operation != nil {
		op := toOperationDTO(*result.Operation)
		dto.Operation = &op
	}

	h.Log.Info().
		Str("currency", req.Currency).
		Float64("variance", variance).
		Bool("balanced", result.Balanced).
		Msg("reconciliation")
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// ListBalances returns all projected balances.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Drawer.Balances(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalance returns one currency's projected balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	currency := ledger.Currency(chi.URLParam(r, "currency"))

	balance, err := h.Drawer.Balance(r.Context(), currency)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	amount, _ := balance.Float64()
	writeJSON(w, http.StatusOK, BalanceDTO{Currency: string(currency), Amount: amount})
}

// =============================================================================
// QUERY HANDLER
// =============================================================================

// ListOperations filters, sorts and paginates the operation history.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error(), nil)
		return
	}

	page, err := h.Drawer.Operations(r.Context(), filter, parseSort(r), parsePage(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OperationPageDTO{
		Operations: toOperationDTOs(page.Operations),
		Total:      page.Total,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalPages: page.TotalPages,
	})
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	var filter ledger.Filter

	if raw := q.Get("kind"); raw != "" {
		kind := ledger.OperationKind(raw)
		if !kind.Valid() {
			return filter, errInvalidParam("kind", raw)
		}
		filter.Kind = &kind
	}
	if raw := q.Get("currency"); raw != "" {
		currency := ledger.Currency(raw)
		filter.Currency = &currency
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseTimeParam(raw, false)
		if err != nil {
			return filter, errInvalidParam("from", raw)
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseTimeParam(raw, true)
		if err != nil {
			return filter, errInvalidParam("to", raw)
		}
		filter.To = &to
	}
	if q.Get("period") == "today" {
		from, to := ledger.TodayRange(time.Now())
		filter.From, filter.To = &from, &to
	}
	filter.Search = q.Get("q")

	return filter, nil
}

// parseTimeParam accepts RFC3339 or a bare date. A bare "to" date is
// widened to the end of that day so the range stays inclusive.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		ts = ts.Add(24*time.Hour - time.Nanosecond)
	}
	return ts, nil
}

func parseSort(r *http.Request) ledger.Sort {
	q := r.URL.Query()
	s := ledger.Sort{Field: ledger.SortByTimestamp, Direction: ledger.SortAsc}
	if q.Get("sort") == "amount" {
		s.Field = ledger.SortByAmount
	}
	if q.Get("dir") == "desc" {
		s.Direction = ledger.SortDesc
	}
	return s
}

func parsePage(r *http.Request) ledger.PageRequest {
	q := r.URL.Query()
	page := ledger.PageRequest{Number: 1, Size: ledger.DefaultPageSize}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page.Number = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		page.Size = n
	}
	return page
}

type invalidParamError struct {
	param string
	value string
}

func errInvalidParam(param, value string) error {
	return &invalidParamError{param: param, value: value}
}

func (e *invalidParamError) Error() string {
	return "invalid " + e.param + ": " + e.value
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeDomainError maps ledger error kinds to HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientFundsError
	if errors.As(err, &insufficient) {
		available, _ := insufficient.Available.Float64()
		writeError(w, http.StatusConflict, "insufficient_funds", err.Error(), map[string]any{
			"currency":  string(insufficient.Currency),
			"available": available,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrAlreadyOpen):
		writeError(w, http.StatusConflict, "already_open", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyClosed):
		writeError(w, http.StatusConflict, "already_closed", err.Error(), nil)
	case errors.Is(err, ledger.ErrDrawerClosed):
		writeError(w, http.StatusConflict, "drawer_closed", err.Error(), nil)
	case errors.Is(err, ledger.ErrEmptyInitialCount):
		writeError(w, http.StatusBadRequest, "empty_initial_count", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.Is(err, ledger.ErrMissingNotes):
		writeError(w, http.StatusBadRequest, "missing_notes", err.Error(), nil)
	case errors.Is(err, ledger.ErrCurrencyNotFound):
		writeError(w, http.StatusNotFound, "currency_not_found", err.Error(), nil)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", nil)
	}
}
