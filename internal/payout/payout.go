// Package payout delivers withdrawn value to account holders.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/simonvc/custody/internal/ledger"
	"go.uber.org/zap"
)

const (
	ModeLoopback = "loopback"
	ModeWebhook  = "webhook"
)

// Func adapts a plain function to the host's Transferer.
type Func func(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error

func (f Func) Transfer(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error {
	return f(ctx, to, amount)
}

// Loopback accepts every transfer and only logs it. It suits local runs
// where value never leaves the process.
type Loopback struct {
	unit ledger.Unit
	log  *zap.Logger
}

func NewLoopback(unit ledger.Unit, log *zap.Logger) *Loopback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loopback{unit: unit, log: log}
}

func (l *Loopback) Transfer(_ context.Context, to ledger.AccountID, amount ledger.Amount) error {
	l.log.Info("payout",
		zap.Stringer("to", to),
		zap.Stringer("amount", amount),
		zap.String("display", l.unit.FormatWithSymbol(amount)),
	)
	return nil
}

// Request is the JSON body a Webhook posts for each transfer.
type Request struct {
	To      ledger.AccountID `json:"to"`
	Amount  ledger.Amount    `json:"amount"`
	Display string           `json:"display"`
}

// Webhook hands each transfer to an external payout service over HTTP.
// Any transport error or non-2xx reply is a failed transfer.
type Webhook struct {
	url        string
	unit       ledger.Unit
	httpClient *http.Client
	log        *zap.Logger
}

func NewWebhook(url string, timeout time.Duration, unit ledger.Unit, log *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		url:  url,
		unit: unit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (w *Webhook) Transfer(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error {
	data, err := json.Marshal(Request{
		To:      to,
		Amount:  amount,
		Display: w.unit.FormatWithSymbol(amount),
	})
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		w.log.Warn("payout refused",
			zap.Stringer("to", to),
			zap.Stringer("amount", amount),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("payout refused (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	w.log.Info("payout sent", zap.Stringer("to", to), zap.Stringer("amount", amount))
	return nil
}
