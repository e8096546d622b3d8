// Package respond writes JSON responses and maps domain errors to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/shares"
	"github.com/MrJamesThe3rd/splitledger/internal/importer/splitwise"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

// RetryAfter is sent with ErrConflict, in seconds.
const RetryAfter = "1"

type errorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{settlement.ErrInvalidAmount, http.StatusBadRequest},
	{settlement.ErrMissingReason, http.StatusBadRequest},
	{settlement.ErrInvalidParties, http.StatusBadRequest},
	{settlement.ErrInvalidMethod, http.StatusBadRequest},
	{settlement.ErrNotGroupMember, http.StatusBadRequest},
	{settlement.ErrAmountExceedsRemaining, http.StatusUnprocessableEntity},
	{settlement.ErrSettlementNotFound, http.StatusNotFound},
	{settlement.ErrPaymentNotFound, http.StatusNotFound},
	{settlement.ErrUnauthorized, http.StatusForbidden},
	{auth.ErrNotMember, http.StatusForbidden},
	{settlement.ErrAlreadyResolved, http.StatusConflict},
	{settlement.ErrSettlementTerminal, http.StatusConflict},
	{settlement.ErrConflict, http.StatusConflict},
	{group.ErrNotFound, http.StatusNotFound},
	{expense.ErrNotFound, http.StatusNotFound},
	{expense.ErrInvalid, http.StatusBadRequest},
	{ledger.ErrInvalidExpense, http.StatusBadRequest},
	{ledger.ErrInvalidTransfer, http.StatusBadRequest},
	{importer.ErrUnknownFormat, http.StatusBadRequest},
	{splitwise.ErrNoHeader, http.StatusBadRequest},
	{shares.ErrNoHeader, http.StatusBadRequest},
}

// Status returns the HTTP status for err, 500 when it is not a known error.
func Status(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}

	return http.StatusInternalServerError
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err as a JSON body. Unknown errors are logged and hidden
// behind a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}

	if errors.Is(err, settlement.ErrConflict) {
		w.Header().Set("Retry-After", RetryAfter)
	}

	JSON(w, status, errorResponse{Error: msg})
}

// BadRequest reports a malformed request, as opposed to a domain error.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
