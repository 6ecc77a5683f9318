package server

import (
	"encoding/json"
	"net/http"

	"github.com/simonvc/custody/internal/ledger"
)

type errorResponse struct {
	Error string      `json:"error"`
	Code  ledger.Kind `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	msg := err.Error()
	if kind == ledger.KindInternal {
		msg = "internal error"
	}
	writeJSON(w, statusForKind(kind), errorResponse{Error: msg, Code: kind})
}

func writeKind(w http.ResponseWriter, kind ledger.Kind, msg string) {
	writeJSON(w, statusForKind(kind), errorResponse{Error: msg, Code: kind})
}

func statusForKind(kind ledger.Kind) int {
	switch kind {
	case ledger.KindAccountWithoutBalance:
		return http.StatusNotFound
	case ledger.KindInsufficientFunds,
		ledger.KindExpectedWithdrawalAmountExceedsAccountBalance:
		return http.StatusUnprocessableEntity
	case ledger.KindWithdrawTransferFailed:
		return http.StatusBadGateway
	case ledger.KindInvalidRequest:
		return http.StatusBadRequest
	case ledger.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
