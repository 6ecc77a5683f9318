package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/simonvc/custody/internal/ledger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type balanceResponse struct {
	Account ledger.AccountID `json:"account"`
	Balance ledger.Amount    `json:"balance"`
	Display string           `json:"display"`
}

type eventResponse struct {
	ledger.EventRecord
	Display string `json:"display"`
}

// amountRequest is the body of deposit and withdraw. Amount is a decimal
// string of minor units, or of display units when Display is set.
type amountRequest struct {
	Amount  *string `json:"amount,omitempty"`
	Display bool    `json:"display,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.host.Events().Subscribers(),
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	balance, err := s.host.BalanceOf(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: caller,
		Balance: balance,
		Display: s.unit.FormatWithSymbol(balance),
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmountRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Amount == nil {
		writeKind(w, ledger.KindInvalidRequest, "amount is required")
		return
	}
	value, err := s.parseAmount(req)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.host.Deposit(r.Context(), callerFrom(r.Context()), value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.eventResponse(rec))
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmountRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var requested *ledger.Amount
	if req.Amount != nil {
		a, err := s.parseAmount(req)
		if err != nil {
			writeError(w, err)
			return
		}
		requested = &a
	}

	rec, err := s.host.Withdraw(r.Context(), callerFrom(r.Context()), requested)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eventResponse(rec))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeKind(w, ledger.KindInvalidRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}

	recs, err := s.host.History(r.Context(), callerFrom(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]eventResponse, len(recs))
	for i, rec := range recs {
		out[i] = s.eventResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) eventResponse(rec ledger.EventRecord) eventResponse {
	return eventResponse{EventRecord: rec, Display: s.unit.FormatWithSymbol(rec.Amount)}
}

func (s *Server) parseAmount(req amountRequest) (ledger.Amount, error) {
	if req.Display {
		return s.unit.Parse(*req.Amount)
	}
	return ledger.ParseAmount(*req.Amount)
}

// decodeAmountRequest accepts an empty body as {}.
func decodeAmountRequest(r *http.Request) (amountRequest, error) {
	var req amountRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return amountRequest{}, fmt.Errorf("%w: invalid JSON: %v", ledger.ErrInvalidAmount, err)
	}
	return req, nil
}
