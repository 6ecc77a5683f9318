package host

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type transferFunc func(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error

func (f transferFunc) Transfer(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error {
	return f(ctx, to, amount)
}

var (
	alice = ledger.AccountIDFromName("alice")
	bob   = ledger.AccountIDFromName("bob")
)

func errOf(_ ledger.EventRecord, err error) error { return err }

func amt(n uint64) ledger.Amount { return ledger.NewAmount(n) }

func ptr(a ledger.Amount) *ledger.Amount { return &a }

func newTestHost(t *testing.T, payout Transferer, opts ...Option) (*Host, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "custody.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, payout, opts...), st
}

func okPayout() Transferer {
	return transferFunc(func(context.Context, ledger.AccountID, ledger.Amount) error { return nil })
}

func drain(ch <-chan ledger.EventRecord) []ledger.EventRecord {
	var out []ledger.EventRecord
	for {
		select {
		case rec := <-ch:
			out = append(out, rec)
		default:
			return out
		}
	}
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	var paid []ledger.Amount
	h, _ := newTestHost(t, transferFunc(func(_ context.Context, to ledger.AccountID, amount ledger.Amount) error {
		assert.Equal(t, alice, to)
		paid = append(paid, amount)
		return nil
	}))

	_, err := h.BalanceOf(ctx, alice)
	assert.ErrorIs(t, err, ledger.ErrAccountWithoutBalance)

	require.NoError(t, errOf(h.Deposit(ctx, alice, amt(1000))))
	balance, err := h.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amt(1000), balance)

	require.NoError(t, errOf(h.Withdraw(ctx, alice, ptr(amt(600)))))
	balance, err = h.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amt(400), balance)

	rec, err := h.Withdraw(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.EventWithdrawn, rec.Kind)
	assert.Equal(t, amt(400), rec.Amount, "withdraw-all reports what moved")
	assert.NotEmpty(t, rec.ID)
	balance, err = h.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	assert.ErrorIs(t, errOf(h.Withdraw(ctx, alice, nil)), ledger.ErrAccountWithoutBalance)
	assert.Equal(t, []ledger.Amount{amt(600), amt(400)}, paid)

	history, err := h.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.EventWithdrawn, history[0].Kind)
	assert.Equal(t, amt(400), history[0].Amount)
	assert.Equal(t, amt(600), history[1].Amount)
	assert.Equal(t, ledger.EventDeposited, history[2].Kind)
	assert.Equal(t, amt(1000), history[2].Amount)
}

func TestFailedTransferRollsBackDebit(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("payout rejected")
	fail := false
	h, _ := newTestHost(t, transferFunc(func(context.Context, ledger.AccountID, ledger.Amount) error {
		if fail {
			return cause
		}
		return nil
	}))
	events, cancel := h.Events().Subscribe()
	defer cancel()

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(1000))))
	fail = true

	err := errOf(h.Withdraw(ctx, bob, ptr(amt(300))))
	assert.ErrorIs(t, err, ledger.ErrWithdrawTransferFailed)
	assert.ErrorIs(t, err, cause)

	balance, err := h.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, amt(1000), balance)

	history, err := h.History(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.EventDeposited, history[0].Kind)

	published := drain(events)
	require.Len(t, published, 1)
	assert.Equal(t, ledger.EventDeposited, published[0].Kind)
}

func TestTransferSeesDebitedBalance(t *testing.T) {
	ctx := context.Background()
	var h *Host
	var seen ledger.Amount
	h, _ = newTestHost(t, transferFunc(func(ctx context.Context, to ledger.AccountID, _ ledger.Amount) error {
		var err error
		seen, err = h.BalanceOf(ctx, to)
		return err
	}))

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(1000))))
	require.NoError(t, errOf(h.Withdraw(ctx, bob, ptr(amt(250)))))
	assert.Equal(t, amt(750), seen)
}

func TestReentrantWithdrawCannotDrainTwice(t *testing.T) {
	ctx := context.Background()
	var h *Host
	var nestedErr error
	calls := 0
	h, _ = newTestHost(t, transferFunc(func(ctx context.Context, to ledger.AccountID, _ ledger.Amount) error {
		calls++
		if calls == 1 {
			nestedErr = errOf(h.Withdraw(ctx, to, nil))
		}
		return nil
	}))

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(100))))
	require.NoError(t, errOf(h.Withdraw(ctx, bob, nil)))

	assert.ErrorIs(t, nestedErr, ledger.ErrAccountWithoutBalance)
	assert.Equal(t, 1, calls)

	balance, err := h.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestNestedWorkRollsBackWithOuterFailure(t *testing.T) {
	ctx := context.Background()
	var h *Host
	h, _ = newTestHost(t, transferFunc(func(ctx context.Context, _ ledger.AccountID, amount ledger.Amount) error {
		if err := errOf(h.Deposit(ctx, alice, amount)); err != nil {
			return err
		}
		return errors.New("downstream refused")
	}))
	events, cancel := h.Events().Subscribe()
	defer cancel()

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(50))))
	drain(events)

	err := errOf(h.Withdraw(ctx, bob, nil))
	assert.ErrorIs(t, err, ledger.ErrWithdrawTransferFailed)

	_, err = h.BalanceOf(ctx, alice)
	assert.ErrorIs(t, err, ledger.ErrAccountWithoutBalance)
	balance, err := h.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, amt(50), balance)
	assert.Empty(t, drain(events))
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	ctx := context.Background()
	var events <-chan ledger.EventRecord
	var duringTransfer []ledger.EventRecord
	var h *Host
	h, _ = newTestHost(t, transferFunc(func(ctx context.Context, _ ledger.AccountID, _ ledger.Amount) error {
		// The nested deposit has committed to nothing yet.
		if err := errOf(h.Deposit(ctx, alice, amt(1))); err != nil {
			return err
		}
		duringTransfer = drain(events)
		return nil
	}))
	var cancel func()
	events, cancel = h.Events().Subscribe()
	defer cancel()

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(10))))
	require.Len(t, drain(events), 1)

	require.NoError(t, errOf(h.Withdraw(ctx, bob, ptr(amt(4)))))
	assert.Empty(t, duringTransfer)

	published := drain(events)
	require.Len(t, published, 2)
	kinds := []ledger.EventKind{published[0].Kind, published[1].Kind}
	assert.ElementsMatch(t, []ledger.EventKind{ledger.EventDeposited, ledger.EventWithdrawn}, kinds)
}

func TestPanicRollsBackAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHost(t, okPayout())

	require.NoError(t, errOf(h.Deposit(ctx, alice, ledger.MaxAmount)))
	assert.Panics(t, func() {
		_ = errOf(h.Deposit(ctx, alice, amt(1)))
	})

	balance, err := h.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, ledger.MaxAmount, balance)

	history, err := h.History(ctx, alice, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCancelAfterPayoutKeepsDebit(t *testing.T) {
	ctx := context.Background()
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	paid := 0
	h, _ := newTestHost(t, transferFunc(func(context.Context, ledger.AccountID, ledger.Amount) error {
		paid++
		cancel()
		return nil
	}))

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(1000))))

	rec, err := h.Withdraw(callCtx, bob, ptr(amt(600)))
	require.NoError(t, err)
	assert.Equal(t, amt(600), rec.Amount)
	assert.Equal(t, 1, paid)

	balance, err := h.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, amt(400), balance)

	history, err := h.History(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.EventWithdrawn, history[0].Kind)
	assert.Equal(t, amt(600), history[0].Amount)
}

func TestCancelBeforePayoutRollsBack(t *testing.T) {
	ctx := context.Background()
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, _ := newTestHost(t, transferFunc(func(ctx context.Context, _ ledger.AccountID, _ ledger.Amount) error {
		cancel()
		return ctx.Err()
	}))

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(1000))))

	err := errOf(h.Withdraw(callCtx, bob, ptr(amt(600))))
	assert.ErrorIs(t, err, ledger.ErrWithdrawTransferFailed)
	assert.ErrorIs(t, err, context.Canceled)

	balance, err := h.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, amt(1000), balance)
}

func TestCancelledCallerIsNotStarted(t *testing.T) {
	callCtx, cancel := context.WithCancel(context.Background())
	cancel()

	h, _ := newTestHost(t, okPayout())
	assert.ErrorIs(t, errOf(h.Deposit(callCtx, bob, amt(5))), context.Canceled)

	_, err := h.BalanceOf(context.Background(), bob)
	assert.ErrorIs(t, err, ledger.ErrAccountWithoutBalance)
}

func TestRollbackAfterPayoutIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)
	h, _ := newTestHost(t, okPayout(), WithLogger(zap.New(core)))

	_, err := h.invoke(ctx, "withdraw", bob, ledger.Amount{}, func(ctx context.Context, _ *ledger.Ledger, env ledger.Env) error {
		require.NoError(t, env.Transfer(ctx, bob, amt(75)))
		return errors.New("disk full")
	})
	require.Error(t, err)

	entries := logs.FilterMessage("payout sent but invocation rolled back").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, bob.String(), fields["account"])
	assert.Equal(t, "75", fields["amount"])
}

func TestRejectedCallsLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	h, st := newTestHost(t, okPayout())

	assert.ErrorIs(t, errOf(h.Deposit(ctx, alice, ledger.Amount{})), ledger.ErrInsufficientFunds)
	assert.ErrorIs(t, errOf(h.Withdraw(ctx, alice, ptr(amt(1)))), ledger.ErrAccountWithoutBalance)

	require.NoError(t, errOf(h.Deposit(ctx, bob, amt(5))))
	assert.ErrorIs(t, errOf(h.Withdraw(ctx, bob, ptr(amt(6)))), ledger.ErrExpectedWithdrawalAmountExceedsAccountBalance)

	n, err := st.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := st.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h, _ := newTestHost(t, okPayout(), WithMetrics(m))

	require.NoError(t, errOf(h.Deposit(ctx, alice, amt(3))))
	require.NoError(t, errOf(h.Withdraw(ctx, alice, nil)))
	assert.Error(t, errOf(h.Withdraw(ctx, alice, nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("withdraw", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("withdraw", string(ledger.KindAccountWithoutBalance))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(ledger.EventDeposited))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(ledger.EventWithdrawn))))

	require.NoError(t, errOf(h.Deposit(ctx, bob, ledger.MaxAmount)))
	assert.Panics(t, func() {
		_ = errOf(h.Deposit(ctx, bob, amt(1)))
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit", "panic")))
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	b.Publish(ledger.EventRecord{ID: "1"})
	b.Publish(ledger.EventRecord{ID: "2"})

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}
