package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Satellite describes one satellite table: time-versioned attribute
// bundles keyed by (owning hash key, record_start). Every payload
// column is text; structured payloads belong to the repository layer.
type Satellite struct {
	Table       string
	KeyCol      string
	PayloadCols []string
}

// SatelliteRecord is one historical version of an entity's attributes.
// The validity interval is [RecordStart, RecordEnd); an open row has
// RecordEnd equal to the sentinel.
type SatelliteRecord struct {
	HashKey     string
	RecordStart time.Time
	RecordEnd   time.Time
	Payload     []string
}

// Open reports whether this version is still current.
func (r SatelliteRecord) Open() bool { return r.RecordEnd.Equal(sentinel) }

func (s Satellite) selectCols() string {
	return strings.Join(append([]string{s.KeyCol, "record_start", "record_end"}, s.PayloadCols...), ", ")
}

// AppendSatellite inserts a new open version. The caller is responsible
// for having closed any prior open row first (the mutation protocol
// does this inside one transaction); the schema's unique index on
// (hash key, record_end) rejects a second open row outright, which
// surfaces here as ErrConflict.
func AppendSatellite(ctx context.Context, q Querier, s Satellite, hashKey string, start time.Time, payload ...string) (SatelliteRecord, error) {
	if len(payload) != len(s.PayloadCols) {
		return SatelliteRecord{}, fmt.Errorf("%s: expected %d payload values, got %d", s.Table, len(s.PayloadCols), len(payload))
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", 3+len(payload)), ",")
	args := make([]any, 0, 3+len(payload))
	args = append(args, hashKey, Micros(start), SentinelMicros())
	for _, v := range payload {
		args = append(args, v)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table, s.selectCols(), marks)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return SatelliteRecord{}, fmt.Errorf("%s %q: %w", s.Table, hashKey, ErrConflict)
		}
		return SatelliteRecord{}, fmt.Errorf("append %s: %w", s.Table, err)
	}
	return SatelliteRecord{HashKey: hashKey, RecordStart: start, RecordEnd: sentinel, Payload: payload}, nil
}

// CloseSatellite ends the currently open version at the given instant.
// Closing an entity that has no open row is a logic error: rows are
// only ever closed on the way to being superseded.
func CloseSatellite(ctx context.Context, q Querier, s Satellite, hashKey string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET record_end = ? WHERE %s = ? AND record_end = ?", s.Table, s.KeyCol)
	res, err := q.ExecContext(ctx, query, Micros(at), hashKey, SentinelMicros())
	if err != nil {
		return fmt.Errorf("close %s: %w", s.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close %s: %w", s.Table, err)
	}
	if n == 0 {
		return fmt.Errorf("close %s %q: %w", s.Table, hashKey, ErrNoLineage)
	}
	return nil
}

// casClose closes the open row only if it is still the one observed by
// the caller (matched by record_start). A miss means a concurrent
// writer got there first.
func casClose(ctx context.Context, q Querier, s Satellite, hashKey string, observedStart, at time.Time) (bool, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET record_end = ? WHERE %s = ? AND record_start = ? AND record_end = ?",
		s.Table, s.KeyCol)
	res, err := q.ExecContext(ctx, query, Micros(at), hashKey, Micros(observedStart), SentinelMicros())
	if err != nil {
		return false, fmt.Errorf("close %s: %w", s.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close %s: %w", s.Table, err)
	}
	return n == 1, nil
}

// CurrentSatellite returns the open version for the hash key. If the
// at-most-one-open invariant was ever violated the latest record_start
// wins, keeping the answer deterministic.
func CurrentSatellite(ctx context.Context, q Querier, s Satellite, hashKey string) (SatelliteRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? AND record_end = ? ORDER BY record_start DESC LIMIT 1",
		s.selectCols(), s.Table, s.KeyCol)
	return scanSatelliteRow(q.QueryRowContext(ctx, query, hashKey, SentinelMicros()), s)
}

// SatelliteHistory returns every version for the hash key, most recent
// first. The head of a non-empty history is always the current row.
func SatelliteHistory(ctx context.Context, q Querier, s Satellite, hashKey string) ([]SatelliteRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? ORDER BY record_start DESC",
		s.selectCols(), s.Table, s.KeyCol)
	rows, err := q.QueryContext(ctx, query, hashKey)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", s.Table, err)
	}
	defer rows.Close()
	var recs []SatelliteRecord
	for rows.Next() {
		rec, err := scanSatellite(rows, s)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %s: %w", s.Table, err)
	}
	return recs, nil
}

// SatelliteAsOf returns the version whose interval [record_start,
// record_end) contains t. Timestamps before the first version yield
// ErrNotFound.
func SatelliteAsOf(ctx context.Context, q Querier, s Satellite, hashKey string, t time.Time) (SatelliteRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? AND record_start <= ? AND record_end > ? ORDER BY record_start DESC LIMIT 1",
		s.selectCols(), s.Table, s.KeyCol)
	us := Micros(t)
	return scanSatelliteRow(q.QueryRowContext(ctx, query, hashKey, us, us), s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSatellite(sc scanner, s Satellite) (SatelliteRecord, error) {
	rec := SatelliteRecord{Payload: make([]string, len(s.PayloadCols))}
	var startUs, endUs int64
	dest := make([]any, 0, 3+len(s.PayloadCols))
	dest = append(dest, &rec.HashKey, &startUs, &endUs)
	for i := range rec.Payload {
		dest = append(dest, &rec.Payload[i])
	}
	if err := sc.Scan(dest...); err != nil {
		return SatelliteRecord{}, fmt.Errorf("scan %s: %w", s.Table, err)
	}
	rec.RecordStart = FromMicros(startUs)
	rec.RecordEnd = FromMicros(endUs)
	return rec, nil
}

func scanSatelliteRow(row *sql.Row, s Satellite) (SatelliteRecord, error) {
	rec, err := scanSatellite(row, s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SatelliteRecord{}, fmt.Errorf("%s: %w", s.Table, ErrNotFound)
		}
		return SatelliteRecord{}, err
	}
	return rec, nil
}
