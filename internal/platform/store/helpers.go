package store

import (
	"context"

	perr "mpak/internal/platform/errors"
)

// ExecOne runs a write that must touch exactly one row
func ExecOne(ctx context.Context, q RowQuerier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n != 1 {
		return perr.Newf(perr.ErrorCodeDB, "expected one row affected, got %d", n)
	}
	return nil
}

// Scalar reads the first column of the first row into T
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var v T
	err := q.QueryRow(ctx, sql, args...).Scan(&v)
	return v, err
}

// One maps exactly one row with scan; no row is perr.ErrNotFound
func One[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) (T, error) {
	var zero T
	items, err := collect(ctx, q, scan, 2, sql, args...)
	switch {
	case err != nil:
		return zero, err
	case len(items) == 0:
		return zero, perr.ErrNotFound
	case len(items) > 1:
		return zero, perr.Newf(perr.ErrorCodeDB, "expected one row, got more")
	}
	return items[0], nil
}

// Many maps every row with scan; an empty result is a nil slice
func Many[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) ([]T, error) {
	return collect(ctx, q, scan, -1, sql, args...)
}

// collect scans up to limit rows, all of them when limit < 0
func collect[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), limit int, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for (limit < 0 || len(out) < limit) && rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
