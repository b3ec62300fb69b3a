// Package vault implements the bi-temporal hub/link/satellite storage
// scheme used by the blog. Hubs hold one immutable row per business
// entity, satellites hold append-only time-versioned attribute bundles,
// and links record unversioned many-to-many relationships. "Current"
// state is the satellite row whose validity interval is still open,
// i.e. whose record_end equals the far-future sentinel.
package vault

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// sentinel is the far-future timestamp meaning "no known end yet".
var sentinel = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Sentinel returns the open-interval marker used for record_end on
// rows that are still valid.
func Sentinel() time.Time { return sentinel }

// SentinelMicros is the sentinel rendered in the storage encoding.
// Callers composing raw SQL against satellite tables bind this value
// as a parameter; it is never baked into query text.
func SentinelMicros() int64 { return sentinel.UnixMicro() }

// Micros converts a timestamp into the canonical storage encoding:
// microseconds since the Unix epoch, UTC. All vault columns use this
// encoding so that version ordering survives driver round-trips exactly.
func Micros(t time.Time) int64 { return t.UTC().UnixMicro() }

// FromMicros is the inverse of Micros.
func FromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// Now returns the current UTC time truncated to storage precision.
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Hub and satellite primitives accept it so callers can compose several
// of them inside one transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the backing database and carries the mutation protocol.
type Store struct {
	db *sql.DB
}

// New returns a Store bound to the given database. The schema must
// already be applied (see the database package).
func New(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for read-only composition queries.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a transaction, committing on nil and rolling
// back on error or panic. Partial application of a close-then-append
// pair is impossible: either both land or neither does.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isDuplicate reports whether err is a unique-constraint violation.
// MySQL surfaces error 1062, sqlite reports "UNIQUE constraint failed".
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint")
}
