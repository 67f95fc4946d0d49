// Package store is the canonical SQLite persistence of events, node graphs,
// team ledgers, submissions, activity and staff accounts. Ledgers and
// submissions are JSONB documents; uniqueness rules the engine relies on
// (one pending submission per node, one claim per location group, one trade
// per checkpoint) are also enforced by table constraints.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/treasurehunt/internal/hunt"
)

const maxTxAttempts = 5

// errStale reports a team document written by someone else since it was read.
var errStale = errors.New("store: stale team version")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Tx is a read-write unit of work. Every ledger mutation goes through one.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn in a transaction and commits it if fn returns nil. When a
// team document turns out to be stale, the whole transaction is retried
// with fresh reads; after maxTxAttempts it fails with Conflict.
//
// fn must only touch the database through tx: the pool holds a single
// connection, so calling back into Store from fn deadlocks.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if !errors.Is(err, errStale) {
			return err
		}
		if attempt == maxTxAttempts {
			return hunt.Errorf(hunt.CodeConflict, "team was modified concurrently, try again")
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// getDoc scans a single JSONB document into dest, mapping no rows to
// NotFound with the given reason.
func getDoc(ctx context.Context, q querier, dest any, notFound string, query string, args ...any) error {
	var data string
	err := q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return hunt.Errorf(hunt.CodeNotFound, "%s", notFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return hunt.Errorf(hunt.CodeNotFound, format, args...)
	}
	return err
}

// insertOnce runs an INSERT … ON CONFLICT DO NOTHING and reports whether a
// row was written.
func insertOnce(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func newID() string {
	return uuid.NewString()
}

// Timestamps are stored as INTEGER Unix nanoseconds so they sort
// numerically and round-trip exactly.
func unixNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
