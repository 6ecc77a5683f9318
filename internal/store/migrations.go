package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		if err := migrateV1(ctx, tx); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		// Balance mapping. Rows are never deleted: a zero amount means the
		// account deposited and then withdrew everything.
		`CREATE TABLE IF NOT EXISTS balances (
			account_id TEXT PRIMARY KEY CHECK (length(account_id) = 64),
			amount     TEXT NOT NULL CHECK (amount GLOB '[0-9]*' AND amount NOT GLOB '*[^0-9]*'),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Append-only notification log
		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL CHECK (kind IN ('Deposited','Withdrawn')),
			account_id TEXT NOT NULL,
			amount     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_account ON events(account_id, id)`,

		`CREATE TRIGGER IF NOT EXISTS trg_events_immutable_update
		BEFORE UPDATE ON events
		BEGIN
			SELECT RAISE(ABORT, 'events are append-only');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_events_immutable_delete
		BEFORE DELETE ON events
		BEGIN
			SELECT RAISE(ABORT, 'events are append-only');
		END`,

		`CREATE TRIGGER IF NOT EXISTS trg_balances_no_delete
		BEFORE DELETE ON balances
		BEGIN
			SELECT RAISE(ABORT, 'balance entries cannot be removed');
		END`,

		`INSERT INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
