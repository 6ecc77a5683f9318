package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/simonvc/custody/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var bob = ledger.AccountIDFromName("bob")

func TestWebhookPostsTransfer(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	unit := ledger.Unit{Symbol: "GAS", Decimals: 2}
	w := NewWebhook(srv.URL, time.Second, unit, nil)

	require.NoError(t, w.Transfer(context.Background(), bob, ledger.NewAmount(12345)))
	assert.Equal(t, bob, got.To)
	assert.Equal(t, ledger.NewAmount(12345), got.Amount)
	assert.Equal(t, "123.45 GAS", got.Display)
}

func TestWebhookRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recipient blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, ledger.DefaultUnit, nil)
	err := w.Transfer(context.Background(), bob, ledger.NewAmount(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "recipient blocked")
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	w := NewWebhook(srv.URL, 50*time.Millisecond, ledger.DefaultUnit, nil)
	assert.Error(t, w.Transfer(context.Background(), bob, ledger.NewAmount(1)))
}

func TestWebhookUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w := NewWebhook(url, time.Second, ledger.DefaultUnit, nil)
	assert.Error(t, w.Transfer(context.Background(), bob, ledger.NewAmount(1)))
}

func TestLoopbackLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLoopback(ledger.Unit{Symbol: "UNIT"}, zap.New(core))

	require.NoError(t, l.Transfer(context.Background(), bob, ledger.NewAmount(7)))

	entries := logs.FilterMessage("payout").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "7", fields["amount"])
	assert.Equal(t, "7 UNIT", fields["display"])
	assert.Equal(t, bob.String(), fields["to"])
}

func TestFunc(t *testing.T) {
	var calls int
	f := Func(func(context.Context, ledger.AccountID, ledger.Amount) error {
		calls++
		return nil
	})
	require.NoError(t, f.Transfer(context.Background(), bob, ledger.NewAmount(1)))
	assert.Equal(t, 1, calls)
}
