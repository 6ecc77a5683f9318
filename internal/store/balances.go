package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simonvc/custody/internal/ledger"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *Tx) Balance(ctx context.Context, id ledger.AccountID) (ledger.Amount, bool, error) {
	return balance(ctx, t.tx, id)
}

func (t *Tx) SetBalance(ctx context.Context, id ledger.AccountID, amount ledger.Amount) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (account_id, amount) VALUES (?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET amount = excluded.amount,
		 updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		id.String(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// Balance reads committed state outside of any transaction.
func (s *Store) Balance(ctx context.Context, id ledger.AccountID) (ledger.Amount, bool, error) {
	return balance(ctx, s.reader, id)
}

// CountAccounts returns how many accounts have an entry, zero balances included.
func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM balances`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func balance(ctx context.Context, q queryer, id ledger.AccountID) (ledger.Amount, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account_id = ?`, id.String()).Scan(&raw)
	if err == sql.ErrNoRows {
		return ledger.Amount{}, false, nil
	}
	if err != nil {
		return ledger.Amount{}, false, fmt.Errorf("get balance: %w", err)
	}

	amount, err := ledger.ParseAmount(raw)
	if err != nil {
		return ledger.Amount{}, false, fmt.Errorf("corrupt balance for %s: %w", id, err)
	}
	return amount, true, nil
}
