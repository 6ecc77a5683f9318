package ledger

import (
	"context"
	"fmt"
)

// Ledger holds custodial balances and implements the deposit and withdraw
// state transitions. It performs no locking and no rollback: the host runs
// each call as one serialized, all-or-nothing unit.
type Ledger struct {
	balances Balances
}

func New(balances Balances) *Ledger {
	return &Ledger{balances: balances}
}

// BalanceOf returns the caller's balance, or ErrAccountWithoutBalance if the
// caller has never deposited.
func (l *Ledger) BalanceOf(ctx context.Context, env Env) (Amount, error) {
	return l.balanceOf(ctx, env.Caller())
}

// Deposit credits the value attached to the call to the caller's account.
// A zero attachment is ErrInsufficientFunds.
func (l *Ledger) Deposit(ctx context.Context, env Env) error {
	caller := env.Caller()
	funds := env.AttachedValue()
	if funds.IsZero() {
		return ErrInsufficientFunds
	}

	current, _, err := l.balances.Balance(ctx, caller)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	updated, ok := current.Add(funds)
	if !ok {
		// The host cannot deliver more than MaxAmount in total.
		panic(fmt.Sprintf("ledger: balance overflow for %s: %s + %s", caller, current, funds))
	}

	if err := l.balances.SetBalance(ctx, caller, updated); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}

	env.EmitEvent(Deposited{From: caller, Balance: funds})
	return nil
}

// Withdraw pays requested (or the whole balance when nil) out to the caller.
// The debit is stored before the transfer runs, so a transfer that re-enters
// the ledger sees the reduced balance. A failed transfer leaves the debit in
// place and returns ErrWithdrawTransferFailed; undoing it is the host's job.
func (l *Ledger) Withdraw(ctx context.Context, env Env, requested *Amount) error {
	caller := env.Caller()
	balance, err := l.balanceOf(ctx, caller)
	if err != nil {
		return err
	}

	// A stored zero is still an entry, so balanceOf lets it through.
	if balance.IsZero() {
		return ErrAccountWithoutBalance
	}

	amount := balance
	if requested != nil {
		amount = *requested
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: requested %s, balance %s", ErrExpectedWithdrawalAmountExceedsAccountBalance, amount, balance)
	}

	if err := l.balances.SetBalance(ctx, caller, balance.Sub(amount)); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}

	if err := env.Transfer(ctx, caller, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrWithdrawTransferFailed, err)
	}

	env.EmitEvent(Withdrawn{To: caller, Balance: amount})
	return nil
}

func (l *Ledger) balanceOf(ctx context.Context, id AccountID) (Amount, error) {
	balance, ok, err := l.balances.Balance(ctx, id)
	if err != nil {
		return Amount{}, fmt.Errorf("read balance: %w", err)
	}
	if !ok {
		return Amount{}, ErrAccountWithoutBalance
	}
	return balance, nil
}
