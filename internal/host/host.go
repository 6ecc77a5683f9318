package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/store"
	"go.uber.org/zap"
)

// Transferer moves value out of custody to an account holder.
type Transferer interface {
	Transfer(ctx context.Context, to ledger.AccountID, amount ledger.Amount) error
}

// Host runs ledger operations the way a transactional execution environment
// would: one invocation at a time, each inside a store transaction that is
// committed on success and rolled back on any error or panic. Events reach
// subscribers only after the transaction that wrote them commits.
//
// A Transferer may call back into the Host with the context it was given.
// Such nested calls join the running transaction under a savepoint instead
// of waiting for the lock.
type Host struct {
	store   *store.Store
	payout  Transferer
	events  *Broadcaster
	metrics *Metrics
	log     *zap.Logger

	mu sync.Mutex
}

type Option func(*Host)

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

func WithBroadcaster(b *Broadcaster) Option {
	return func(h *Host) { h.events = b }
}

func New(st *store.Store, payout Transferer, opts ...Option) *Host {
	h := &Host{
		store:  st,
		payout: payout,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.events == nil {
		h.events = NewBroadcaster(64)
	}
	return h
}

// Events returns the post-commit event broadcaster.
func (h *Host) Events() *Broadcaster {
	return h.events
}

// BalanceOf returns caller's balance.
func (h *Host) BalanceOf(ctx context.Context, caller ledger.AccountID) (ledger.Amount, error) {
	var balance ledger.Amount
	_, err := h.invoke(ctx, "balance_of", caller, ledger.Amount{}, func(ctx context.Context, l *ledger.Ledger, env ledger.Env) error {
		var err error
		balance, err = l.BalanceOf(ctx, env)
		return err
	})
	return balance, err
}

// Deposit credits value, which the caller has already handed over, to the
// caller's account and returns the recorded Deposited event.
func (h *Host) Deposit(ctx context.Context, caller ledger.AccountID, value ledger.Amount) (ledger.EventRecord, error) {
	recs, err := h.invoke(ctx, "deposit", caller, value, func(ctx context.Context, l *ledger.Ledger, env ledger.Env) error {
		return l.Deposit(ctx, env)
	})
	if err != nil {
		return ledger.EventRecord{}, err
	}
	return lastOfKind(recs, ledger.EventDeposited, caller), nil
}

// Withdraw pays requested, or everything when nil, out to caller and returns
// the recorded Withdrawn event, whose amount is what actually moved.
func (h *Host) Withdraw(ctx context.Context, caller ledger.AccountID, requested *ledger.Amount) (ledger.EventRecord, error) {
	recs, err := h.invoke(ctx, "withdraw", caller, ledger.Amount{}, func(ctx context.Context, l *ledger.Ledger, env ledger.Env) error {
		return l.Withdraw(ctx, env, requested)
	})
	if err != nil {
		return ledger.EventRecord{}, err
	}
	return lastOfKind(recs, ledger.EventWithdrawn, caller), nil
}

// lastOfKind picks the invocation's own event out of recs, which may also
// hold events from nested invocations made during a transfer.
func lastOfKind(recs []ledger.EventRecord, kind ledger.EventKind, account ledger.AccountID) ledger.EventRecord {
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Kind == kind && recs[i].Account == account {
			return recs[i]
		}
	}
	return ledger.EventRecord{}
}

// History returns the caller's committed events, newest first.
func (h *Host) History(ctx context.Context, caller ledger.AccountID, limit int) ([]ledger.EventRecord, error) {
	return h.store.ListEvents(ctx, store.EventFilter{Account: &caller, Limit: limit})
}

type operation func(ctx context.Context, l *ledger.Ledger, env ledger.Env) error

type frameKey struct{}

// frame is one invocation in progress.
type frame struct {
	tx      *store.Tx
	parent  *frame
	depth   int
	caller  ledger.AccountID
	value   ledger.Amount
	pending []ledger.EventRecord
	payouts []payoutRecord
	emitErr error
}

// payoutRecord is a transfer that went out during a frame. If the frame is
// rolled back the money has left custody with no debit behind it.
type payoutRecord struct {
	to     ledger.AccountID
	amount ledger.Amount
}

// invoke runs fn as one all-or-nothing invocation and returns the events it
// recorded.
func (h *Host) invoke(ctx context.Context, op string, caller ledger.AccountID, value ledger.Amount, fn operation) (recs []ledger.EventRecord, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.metrics.observePanic(op, time.Since(start))
			panic(r)
		}
		h.metrics.observe(op, err, time.Since(start))
	}()

	if parent, ok := ctx.Value(frameKey{}).(*frame); ok {
		return h.invokeNested(ctx, parent, op, caller, value, fn)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// The transaction ignores the caller's cancellation. Once a payout has
	// gone out, the debit that funded it has to commit.
	txCtx := context.WithoutCancel(ctx)
	tx, err := h.store.Begin(txCtx)
	if err != nil {
		return nil, err
	}

	f := &frame{tx: tx, caller: caller, value: value}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			h.log.Error("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		h.logOrphanedPayouts(op, f)
	}()

	if err := h.run(ctx, f, fn); err != nil {
		h.logOutcome(op, caller, value, err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		h.log.Error("commit failed", zap.String("op", op), zap.Stringer("account", caller), zap.Error(err))
		return nil, err
	}
	committed = true

	h.logOutcome(op, caller, value, nil)
	for _, rec := range f.pending {
		h.metrics.event(rec.Kind)
		h.events.Publish(rec)
	}
	return f.pending, nil
}

func (h *Host) invokeNested(ctx context.Context, parent *frame, op string, caller ledger.AccountID, value ledger.Amount, fn operation) ([]ledger.EventRecord, error) {
	f := &frame{tx: parent.tx, parent: parent, depth: parent.depth + 1, caller: caller, value: value}
	sp := fmt.Sprintf("invocation_%d", f.depth)
	txCtx := context.WithoutCancel(ctx)

	if err := f.tx.Savepoint(txCtx, sp); err != nil {
		return nil, err
	}

	released := false
	defer func() {
		if released {
			return
		}
		if rbErr := f.tx.RollbackTo(txCtx, sp); rbErr != nil {
			h.log.Error("savepoint rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		h.logOrphanedPayouts(op, f)
	}()

	if err := h.run(ctx, f, fn); err != nil {
		h.logOutcome(op, caller, value, err)
		return nil, err
	}

	if err := f.tx.Release(txCtx, sp); err != nil {
		return nil, err
	}
	released = true

	parent.pending = append(parent.pending, f.pending...)
	parent.payouts = append(parent.payouts, f.payouts...)
	h.logOutcome(op, caller, value, nil)
	return f.pending, nil
}

// run hands fn a context that carries the frame but not the caller's
// cancellation. Only the payout sees the caller's context.
func (h *Host) run(ctx context.Context, f *frame, fn operation) error {
	callCtx := context.WithValue(ctx, frameKey{}, f)
	storeCtx := context.WithoutCancel(callCtx)
	env := &callEnv{host: h, frame: f, storeCtx: storeCtx, callCtx: callCtx}

	if err := fn(storeCtx, ledger.New(f.tx), env); err != nil {
		return err
	}
	if f.emitErr != nil {
		return fmt.Errorf("record event: %w", f.emitErr)
	}
	return nil
}

// logOrphanedPayouts reports transfers whose debit was just rolled back, so
// they can be reconciled by hand.
func (h *Host) logOrphanedPayouts(op string, f *frame) {
	for _, p := range f.payouts {
		h.log.Error("payout sent but invocation rolled back",
			zap.String("op", op),
			zap.Stringer("account", p.to),
			zap.Stringer("amount", p.amount),
		)
	}
}

func (h *Host) logOutcome(op string, caller ledger.AccountID, value ledger.Amount, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Stringer("account", caller),
	}
	if !value.IsZero() {
		fields = append(fields, zap.Stringer("attached", value))
	}

	switch kind := ledger.KindOf(err); {
	case err == nil:
		h.log.Debug("invocation committed", fields...)
	case kind == ledger.KindInternal:
		h.log.Error("invocation failed", append(fields, zap.Error(err))...)
	case errors.Is(err, ledger.ErrWithdrawTransferFailed):
		h.log.Warn("invocation rolled back", append(fields, zap.String("kind", string(kind)), zap.Error(err))...)
	default:
		h.log.Debug("invocation rejected", append(fields, zap.String("kind", string(kind)))...)
	}
}

// callEnv is the ledger.Env handed to one invocation.
type callEnv struct {
	host     *Host
	frame    *frame
	storeCtx context.Context
	callCtx  context.Context
}

func (e *callEnv) Caller() ledger.AccountID {
	return e.frame.caller
}

func (e *callEnv) AttachedValue() ledger.Amount {
	return e.frame.value
}

// Transfer pays out on the caller's context, not the store context the
// ledger passes down, so a cancelled caller can still stop a payout that
// has not been sent.
func (e *callEnv) Transfer(_ context.Context, to ledger.AccountID, amount ledger.Amount) error {
	if e.host.payout == nil {
		return errors.New("no payout configured")
	}
	if err := e.host.payout.Transfer(e.callCtx, to, amount); err != nil {
		return err
	}
	e.frame.payouts = append(e.frame.payouts, payoutRecord{to: to, amount: amount})
	return nil
}

func (e *callEnv) EmitEvent(ev ledger.Event) {
	if e.frame.emitErr != nil {
		return
	}
	rec, err := e.frame.tx.AppendEvent(e.storeCtx, ev)
	if err != nil {
		e.frame.emitErr = err
		return
	}
	e.frame.pending = append(e.frame.pending, rec)
}
