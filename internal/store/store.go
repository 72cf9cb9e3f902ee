// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store is the single transactional handle onto Jobs, Bots, and Results:
// database/sql over github.com/lib/pq, $N placeholders, no raw SQL exposed
// past this package.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and bounds the connection pool. A call that
// finds every connection busy waits for a free one until its context is
// done; the store sets no per-call deadline of its own.
func Open(databaseURL string, maxOpen, maxIdle int) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing *sql.DB, used by tests with go-sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting accessor
// methods run either standalone or inside transaction(fn).
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// transaction runs fn inside a serializable-enough (read committed, which
// is sufficient for SELECT ... FOR UPDATE SKIP LOCKED row-level locking)
// transaction, committing on success and rolling back on error or panic.
// Every multi-statement mutation in this package goes through this helper
// so a cancelled request leaves no partial state; single-statement writes
// (CreateJob, Heartbeat, AssignOperation, SetBotHealth, the retention
// purges) run directly on the pool.
func (s *Store) transaction(ctx context.Context, fn func(ctx context.Context, q querier) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return NewTransientError("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return NewTransientError("commit tx", err)
	}
	return nil
}
