package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simonvc/custody/internal/ledger"
)

// AppendEvent writes ev to the event log as part of the transaction.
func (t *Tx) AppendEvent(ctx context.Context, ev ledger.Event) (ledger.EventRecord, error) {
	rec := ledger.EventRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Kind:      ev.Kind(),
		Account:   ev.Account(),
		Amount:    ev.Amount(),
		CreatedAt: time.Now().UTC(),
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (id, kind, account_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.Account.String(), rec.Amount.String(), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.EventRecord{}, fmt.Errorf("insert event: %w", err)
	}
	return rec, nil
}

// ListEvents returns committed events, newest first.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]ledger.EventRecord, error) {
	query := `SELECT id, kind, account_id, amount, created_at FROM events WHERE 1=1`
	args := []any{}

	if filter.Account != nil {
		query += ` AND account_id = ?`
		args = append(args, filter.Account.String())
	}

	query += ` ORDER BY id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]ledger.EventRecord, error) {
	var events []ledger.EventRecord
	for rows.Next() {
		var rec ledger.EventRecord
		var kind, account, amount, createdAt string
		if err := rows.Scan(&rec.ID, &kind, &account, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		var err error
		rec.Kind = ledger.EventKind(kind)
		if rec.Account, err = ledger.ParseAccountID(account); err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.ID, err)
		}
		if rec.Amount, err = ledger.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.ID, err)
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}
