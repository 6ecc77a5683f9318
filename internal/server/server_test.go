package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/simonvc/custody/internal/host"
	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/payout"
	"github.com/simonvc/custody/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ledger.AccountIDFromName("alice")
	bob   = ledger.AccountIDFromName("bob")
)

type testEnv struct {
	srv      *httptest.Server
	host     *host.Host
	failNext atomic.Bool
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	env := &testEnv{}
	reg := prometheus.NewRegistry()
	env.host = host.New(st, payout.Func(func(context.Context, ledger.AccountID, ledger.Amount) error {
		if env.failNext.CompareAndSwap(true, false) {
			return errors.New("payout rail down")
		}
		return nil
	}), host.WithMetrics(host.NewMetrics(reg)))

	cfg.Gatherer = reg
	env.srv = httptest.NewServer(New(env.host, cfg).Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, caller *ledger.AccountID, body string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set(AccountHeader, caller.String())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func requireCode(t *testing.T, data []byte, kind ledger.Kind) {
	t.Helper()
	assert.Equal(t, kind, decode[errorResponse](t, data).Code)
}

func TestMissingCaller(t *testing.T) {
	env := newTestEnv(t, Config{})

	status, data := env.do(t, http.MethodGet, "/api/v1/balance", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	requireCode(t, data, ledger.KindInvalidRequest)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/v1/balance", nil)
	require.NoError(t, err)
	req.Header.Set(AccountHeader, "not-hex")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDepositWithdrawFlow(t *testing.T) {
	env := newTestEnv(t, Config{Unit: ledger.Unit{Symbol: "GAS", Decimals: 2}})

	status, data := env.do(t, http.MethodGet, "/api/v1/balance", &alice, "")
	assert.Equal(t, http.StatusNotFound, status)
	requireCode(t, data, ledger.KindAccountWithoutBalance)

	status, data = env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, status, string(data))
	dep := decode[eventResponse](t, data)
	assert.Equal(t, ledger.EventDeposited, dep.Kind)
	assert.Equal(t, alice, dep.Account)
	assert.Equal(t, ledger.NewAmount(1000), dep.Amount)
	assert.Equal(t, "10.00 GAS", dep.Display)

	status, data = env.do(t, http.MethodGet, "/api/v1/balance", &alice, "")
	require.Equal(t, http.StatusOK, status)
	bal := decode[balanceResponse](t, data)
	assert.Equal(t, ledger.NewAmount(1000), bal.Balance)
	assert.Equal(t, "10.00 GAS", bal.Display)

	status, data = env.do(t, http.MethodPost, "/api/v1/withdraw", &alice, `{"amount":"600"}`)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, ledger.NewAmount(600), decode[eventResponse](t, data).Amount)

	status, data = env.do(t, http.MethodPost, "/api/v1/withdraw", &alice, `{}`)
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Equal(t, ledger.NewAmount(400), decode[eventResponse](t, data).Amount)

	status, data = env.do(t, http.MethodGet, "/api/v1/balance", &alice, "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[balanceResponse](t, data).Balance.IsZero())

	status, data = env.do(t, http.MethodPost, "/api/v1/withdraw", &alice, "")
	assert.Equal(t, http.StatusNotFound, status)
	requireCode(t, data, ledger.KindAccountWithoutBalance)

	status, data = env.do(t, http.MethodGet, "/api/v1/events", &alice, "")
	require.Equal(t, http.StatusOK, status)
	events := decode[[]eventResponse](t, data)
	require.Len(t, events, 3)
	assert.Equal(t, ledger.EventWithdrawn, events[0].Kind)
	assert.Equal(t, "4.00 GAS", events[0].Display)

	status, data = env.do(t, http.MethodGet, "/api/v1/events?limit=1", &alice, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]eventResponse](t, data), 1)

	status, _ = env.do(t, http.MethodGet, "/api/v1/events?limit=zero", &alice, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, Config{})
	status, _ := env.do(t, http.MethodPost, "/api/v1/deposit", &bob, `{"amount":"100"}`)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   ledger.Kind
	}{
		{"zero deposit", "/api/v1/deposit", `{"amount":"0"}`, http.StatusUnprocessableEntity, ledger.KindInsufficientFunds},
		{"missing deposit amount", "/api/v1/deposit", `{}`, http.StatusBadRequest, ledger.KindInvalidRequest},
		{"negative amount", "/api/v1/deposit", `{"amount":"-5"}`, http.StatusBadRequest, ledger.KindInvalidRequest},
		{"too large", "/api/v1/deposit", `{"amount":"340282366920938463463374607431768211456"}`, http.StatusBadRequest, ledger.KindInvalidRequest},
		{"bad json", "/api/v1/withdraw", `{"amount":`, http.StatusBadRequest, ledger.KindInvalidRequest},
		{"exceeds balance", "/api/v1/withdraw", `{"amount":"101"}`, http.StatusUnprocessableEntity, ledger.KindExpectedWithdrawalAmountExceedsAccountBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := env.do(t, http.MethodPost, tt.path, &bob, tt.body)
			assert.Equal(t, tt.status, status, string(data))
			requireCode(t, data, tt.kind)
		})
	}

	status, data := env.do(t, http.MethodGet, "/api/v1/balance", &bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ledger.NewAmount(100), decode[balanceResponse](t, data).Balance)
}

func TestTransferFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, Config{})
	status, _ := env.do(t, http.MethodPost, "/api/v1/deposit", &bob, `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, status)

	env.failNext.Store(true)
	status, data := env.do(t, http.MethodPost, "/api/v1/withdraw", &bob, `{"amount":"300"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	requireCode(t, data, ledger.KindWithdrawTransferFailed)

	status, data = env.do(t, http.MethodGet, "/api/v1/balance", &bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ledger.NewAmount(1000), decode[balanceResponse](t, data).Balance)
}

func TestDisplayAmounts(t *testing.T) {
	env := newTestEnv(t, Config{Unit: ledger.Unit{Symbol: "GAS", Decimals: 2}})

	status, data := env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"10.50","display":true}`)
	require.Equal(t, http.StatusCreated, status, string(data))
	assert.Equal(t, ledger.NewAmount(1050), decode[eventResponse](t, data).Amount)

	status, data = env.do(t, http.MethodPost, "/api/v1/withdraw", &alice, `{"amount":"0.001","display":true}`)
	assert.Equal(t, http.StatusBadRequest, status)
	requireCode(t, data, ledger.KindInvalidRequest)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RPS: 0.001, Burst: 1})

	status, _ := env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"1"}`)
	require.Equal(t, http.StatusCreated, status)

	status, data := env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"1"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	requireCode(t, data, ledger.KindRateLimited)

	// Reads and other callers are unaffected.
	status, _ = env.do(t, http.MethodGet, "/api/v1/balance", &alice, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/api/v1/deposit", &bob, `{"amount":"1"}`)
	assert.Equal(t, http.StatusCreated, status)
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, Config{})
	status, _ := env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"5"}`)
	require.Equal(t, http.StatusCreated, status)

	status, data := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `"ok"`)

	status, data = env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), `custody_operations_total{op="deposit",outcome="ok"} 1`)
	assert.Contains(t, string(data), `custody_events_total{kind="Deposited"} 1`)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/events/ws?account=" + alice.String()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return env.host.Events().Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, _ := env.do(t, http.MethodPost, "/api/v1/deposit", &bob, `{"amount":"9"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = env.do(t, http.MethodPost, "/api/v1/deposit", &alice, `{"amount":"7"}`)
	require.Equal(t, http.StatusCreated, status)

	var got eventResponse
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, alice, got.Account, "other callers' events are filtered out")
	assert.Equal(t, ledger.NewAmount(7), got.Amount)
	assert.Equal(t, ledger.EventDeposited, got.Kind)

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestMapLimiter(t *testing.T) {
	assert.Nil(t, NewMapLimiter(0, 1, 0))
	var nilLimiter *MapLimiter
	assert.True(t, nilLimiter.Allow("x", time.Now()))

	l := NewMapLimiter(1, 2, time.Minute)
	now := time.Now()
	assert.True(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("b", now))
	assert.True(t, l.Allow("a", now.Add(time.Second)))
	assert.True(t, l.Allow("  ", now), "blank keys are not limited")
	assert.Equal(t, 2, l.Len())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	defer st.Close()

	s := New(host.New(st, payout.NewLoopback(ledger.DefaultUnit, nil)), Config{Addr: "127.0.0.1:0"})
	ln, err := newLocalListener()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/deposit", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
