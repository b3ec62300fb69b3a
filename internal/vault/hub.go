package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Hub describes one hub (or link) table. The table holds exactly one
// immutable row per distinct natural key; the hash key is derived from
// the natural-key columns in declaration order. Descriptors are
// package-level constants in the repository layer, never built from
// user input.
type Hub struct {
	Table       string
	KeyCol      string
	NaturalCols []string
}

// HubRecord is one hub row. Natural holds the natural-key values in
// the same order as the descriptor's NaturalCols.
type HubRecord struct {
	HashKey string
	Created time.Time
	Natural []string
}

func (h Hub) selectCols() string {
	return strings.Join(append([]string{h.KeyCol, "created"}, h.NaturalCols...), ", ")
}

// InsertHub derives the hash key for the given natural key and writes
// the hub row. A duplicate natural key (or hash key) yields
// ErrAlreadyExists; hubs are never updated in place.
func InsertHub(ctx context.Context, q Querier, h Hub, created time.Time, natural ...string) (HubRecord, error) {
	if len(natural) != len(h.NaturalCols) {
		return HubRecord{}, fmt.Errorf("%s: expected %d natural key parts, got %d", h.Table, len(h.NaturalCols), len(natural))
	}
	key := DeriveHashKey(natural...)
	cols := h.selectCols()
	marks := strings.TrimSuffix(strings.Repeat("?,", 2+len(natural)), ",")
	args := make([]any, 0, 2+len(natural))
	args = append(args, key, Micros(created))
	for _, n := range natural {
		args = append(args, n)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", h.Table, cols, marks)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return HubRecord{}, fmt.Errorf("%s %q: %w", h.Table, key, ErrAlreadyExists)
		}
		return HubRecord{}, fmt.Errorf("insert %s: %w", h.Table, err)
	}
	return HubRecord{HashKey: key, Created: created, Natural: natural}, nil
}

// EnsureHub inserts the hub row if the natural key is new and returns
// the existing row otherwise. The returned bool reports whether a row
// was created by this call. A concurrent duplicate insert never
// succeeds twice: the loser falls back to reading the winner's row.
func EnsureHub(ctx context.Context, q Querier, h Hub, created time.Time, natural ...string) (HubRecord, bool, error) {
	rec, err := HubByNaturalKey(ctx, q, h, natural...)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return HubRecord{}, false, err
	}
	rec, err = InsertHub(ctx, q, h, created, natural...)
	if errors.Is(err, ErrAlreadyExists) {
		rec, err = HubByNaturalKey(ctx, q, h, natural...)
		return rec, false, err
	}
	if err != nil {
		return HubRecord{}, false, err
	}
	return rec, true, nil
}

// HubByHashKey loads a hub row by its surrogate key.
func HubByHashKey(ctx context.Context, q Querier, h Hub, hashKey string) (HubRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", h.selectCols(), h.Table, h.KeyCol)
	return scanHub(q.QueryRowContext(ctx, query, hashKey), h)
}

// HubByNaturalKey loads a hub row by its natural key parts, in
// descriptor column order.
func HubByNaturalKey(ctx context.Context, q Querier, h Hub, natural ...string) (HubRecord, error) {
	if len(natural) != len(h.NaturalCols) {
		return HubRecord{}, fmt.Errorf("%s: expected %d natural key parts, got %d", h.Table, len(h.NaturalCols), len(natural))
	}
	conds := make([]string, len(h.NaturalCols))
	args := make([]any, len(natural))
	for i, col := range h.NaturalCols {
		conds[i] = col + " = ?"
		args[i] = natural[i]
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", h.selectCols(), h.Table, strings.Join(conds, " AND "))
	return scanHub(q.QueryRowContext(ctx, query, args...), h)
}

func scanHub(row *sql.Row, h Hub) (HubRecord, error) {
	rec := HubRecord{Natural: make([]string, len(h.NaturalCols))}
	var createdUs int64
	dest := make([]any, 0, 2+len(h.NaturalCols))
	dest = append(dest, &rec.HashKey, &createdUs)
	for i := range rec.Natural {
		dest = append(dest, &rec.Natural[i])
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HubRecord{}, fmt.Errorf("%s: %w", h.Table, ErrNotFound)
		}
		return HubRecord{}, fmt.Errorf("scan %s: %w", h.Table, err)
	}
	rec.Created = FromMicros(createdUs)
	return rec, nil
}
