package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateVersion writes the very first version of a satellite lineage.
// There is no prior row to close. Used at entity-creation time, usually
// alongside the hub insert in the same transaction via AppendSatellite;
// this convenience form runs against the store's own handle.
func (s *Store) CreateVersion(ctx context.Context, sat Satellite, hashKey string, at time.Time, payload ...string) (SatelliteRecord, error) {
	return AppendSatellite(ctx, s.db, sat, hashKey, at, payload...)
}

// Revise applies the two-step version rule as one atomic unit: close
// the current row at `at`, then append the successor starting at `at`.
// Both steps run in a single transaction, so a crash or failure between
// them can never leave the lineage with zero (or two) open rows.
//
// The close is a compare-and-swap against the record_start observed at
// the top of the transaction. If a concurrent Revise closed that row
// first, the swap misses and the whole operation fails with ErrConflict;
// the caller may retry against the new current row. Revising an entity
// that has no versions at all is ErrNoLineage.
//
// When `at` does not fall strictly after the current row's record_start
// (clock resolution collision), it is bumped to one microsecond past it
// so record_start ordering stays strict and history stays well-defined.
func (s *Store) Revise(ctx context.Context, sat Satellite, hashKey string, at time.Time, payload ...string) (SatelliteRecord, error) {
	var rec SatelliteRecord
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = ReviseTx(ctx, tx, sat, hashKey, at, payload...)
		return err
	})
	if err != nil {
		return SatelliteRecord{}, err
	}
	return rec, nil
}

// ReviseTx is Revise running inside a caller-owned transaction, for
// edits that touch more than one satellite atomically.
func ReviseTx(ctx context.Context, tx *sql.Tx, sat Satellite, hashKey string, at time.Time, payload ...string) (SatelliteRecord, error) {
	cur, err := CurrentSatellite(ctx, tx, sat, hashKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SatelliteRecord{}, fmt.Errorf("revise %s %q: %w", sat.Table, hashKey, ErrNoLineage)
		}
		return SatelliteRecord{}, err
	}
	if !at.After(cur.RecordStart) {
		at = cur.RecordStart.Add(time.Microsecond)
	}
	ok, err := casClose(ctx, tx, sat, hashKey, cur.RecordStart, at)
	if err != nil {
		return SatelliteRecord{}, err
	}
	if !ok {
		return SatelliteRecord{}, fmt.Errorf("revise %s %q: %w", sat.Table, hashKey, ErrConflict)
	}
	return AppendSatellite(ctx, tx, sat, hashKey, at, payload...)
}
