package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	"github.com/simonvc/custody/internal/ledger"
	_ "modernc.org/sqlite"
)

type EventFilter struct {
	Account *ledger.AccountID
	Limit   int
	Offset  int
}

// Store persists the balance mapping and the event log in SQLite. Writes go
// through a single connection, so at most one Tx is open at a time.
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(runtime.NumCPU())

	s := &Store{writer: writer, reader: reader}

	if err := s.migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Begin opens a write transaction. The caller must Commit or Rollback it.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is one invocation's view of the store. It implements ledger.Balances.
type Tx struct {
	tx *sql.Tx
}

var _ ledger.Balances = (*Tx)(nil)

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Rolling back a finished Tx is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Savepoint opens a nested scope inside the transaction. Names must be plain
// identifiers; they are interpolated into the statement.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT `+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackTo undoes everything since the named savepoint and closes it.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `ROLLBACK TO `+name); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	return t.Release(ctx, name)
}

// Release keeps the work done since the named savepoint and closes it.
func (t *Tx) Release(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, `RELEASE `+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}
