/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Amounts cross the wire as JSON numbers and are converted to
  decimal.Decimal at the boundary. All arithmetic happens on decimals.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/cash-drawer/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// OpenDrawerRequest opens the drawer with one or more initial counts.
type OpenDrawerRequest struct {
	Actor           string              `json:"actor"`
	InitialBalances []InitialBalanceDTO `json:"initial_balances"`
}

// InitialBalanceDTO is one currency's opening amount.
type InitialBalanceDTO struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// CloseDrawerRequest closes the drawer.
type CloseDrawerRequest struct {
	Actor string `json:"actor"`
}

// MovementRequest is a deposit or withdrawal.
type MovementRequest struct {
	Actor     string  `json:"actor"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Notes     string  `json:"notes"`
	Reference string  `json:"reference,omitempty"`
}

// ReconcileRequest compares a manual count against the recorded balance.
type ReconcileRequest struct {
	Actor         string  `json:"actor"`
	Currency      string  `json:"currency"`
	CountedAmount float64 `json:"counted_amount"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SessionDTO represents the drawer's session state.
type SessionDTO struct {
	IsOpen   bool   `json:"is_open"`
	OpenedAt string `json:"opened_at,omitempty"`
	OpenedBy string `json:"opened_by,omitempty"`
}

// OperationDTO represents a ledger operation.
type OperationDTO struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction,omitempty"`
	Timestamp string  `json:"timestamp"`
	Actor     string  `json:"actor"`
	Notes     string  `json:"notes,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// BalanceDTO represents a projected currency balance.
type BalanceDTO struct {
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
	LastUpdated string  `json:"last_updated,omitempty"`
}

// ReconciliationDTO is the result of a reconciliation.
type ReconciliationDTO struct {
	Currency  string        `json:"currency"`
	Recorded  float64       `json:"recorded"`
	Counted   float64       `json:"counted"`
	Variance  float64       `json:"variance"`
	Balanced  bool          `json:"balanced"`
	Operation *OperationDTO `json:"operation,omitempty"`
}

// OperationPageDTO is one page of the operation history.
type OperationPageDTO struct {
	Operations []OperationDTO `json:"operations"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSessionDTO(s ledger.Session) SessionDTO {
	dto := SessionDTO{IsOpen: s.IsOpen, OpenedBy: s.OpenedBy}
	if !s.OpenedAt.IsZero() {
		dto.OpenedAt = s.OpenedAt.Format(time.RFC3339)
	}
	return dto
}

func toOperationDTO(op ledger.CashOperation) OperationDTO {
	amount, _ := op.Amount.Float64()
	return OperationDTO{
		ID:        string(op.ID),
		Kind:      string(op.Kind),
		Currency:  string(op.Currency),
		Amount:    amount,
		Direction: string(op.Direction),
		Timestamp: op.Timestamp.Format(time.RFC3339),
		Actor:     op.Actor,
		Notes:     op.Notes,
		Reference: op.Reference,
	}
}

func toOperationDTOs(ops []ledger.CashOperation) []OperationDTO {
	dtos := make([]OperationDTO, len(ops))
	for i, op := range ops {
		dtos[i] = toOperationDTO(op)
	}
	return dtos
}

func toBalanceDTO(b ledger.CurrencyBalance) BalanceDTO {
	amount, _ := b.Amount.Float64()
	dto := BalanceDTO{Currency: string(b.Currency), Amount: amount}
	if !b.LastUpdated.IsZero() {
		dto.LastUpdated = b.LastUpdated.Format(time.RFC3339)
	}
	return dto
}
