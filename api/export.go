/*
export.go - CSV export of the filtered operation history

The export is a read-only encoding of a query result: the same filters
as the list endpoint, no pagination, newest-first unless overridden.
*/
package api

import (
	"encoding/csv"
	"net/http"
	"time"

	"github.com/warp/cash-drawer/ledger"
)

// maxExportRows caps a single export. The log is in-process; this bound
// keeps a runaway export from building an unbounded response.
const maxExportRows = 100000

// ExportOperations streams the filtered operation history as CSV.
func (h *Handler) ExportOperations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error(), nil)
		return
	}

	page, err := h.Drawer.Operations(r.Context(), filter, parseSort(r),
		ledger.PageRequest{Number: 1, Size: maxExportRows})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="operations.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "kind", "currency", "amount", "direction", "timestamp", "actor", "notes", "reference"})
	for _, op := range page.Operations {
		cw.Write([]string{
			string(op.ID),
			string(op.Kind),
			string(op.Currency),
			op.Amount.String(),
			string(op.Direction),
			op.Timestamp.Format(time.RFC3339),
			op.Actor,
			op.Notes,
			op.Reference,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.Log.Error().Err(err).Msg("csv export failed")
	}
}
