package store

import (
	"context"
	"errors"
	"time"

	"mpak/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is what a pool and an open transaction have in common
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// traced adapts a pgxQuerier to RowQuerier and reports each statement to tracer
type traced struct {
	q      pgxQuerier
	tracer pg.QueryTracer
	slow   time.Duration
}

func (t traced) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := t.q.Exec(ctx, sql, args...)
	t.emit(ctx, sql, len(args), start, err)
	return ct, err
}

func (t traced) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.q.Query(ctx, sql, args...)
	t.emit(ctx, sql, len(args), start, err)
	if err != nil {
		return nil, err
	}
	return rows{rs}, nil
}

// QueryRow reports once Scan has run, since pgx defers the error until then
func (t traced) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	return row{r: t.q.QueryRow(ctx, sql, args...), done: func(err error) {
		t.emit(ctx, sql, len(args), start, err)
	}}
}

func (t traced) emit(ctx context.Context, sql string, nargs int, start time.Time, err error) {
	if t.tracer == nil {
		return
	}
	elapsed := time.Since(start)
	t.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:     sql,
		Args:    nargs,
		Elapsed: elapsed,
		Err:     err,
		Slow:    t.slow > 0 && elapsed >= t.slow,
	})
}

// pgAdapter is the TxRunner over the pool
type pgAdapter struct {
	traced
	p *pg.PG
}

func newPGAdapter(p *pg.PG) *pgAdapter {
	return &pgAdapter{traced: traced{q: p.Pool, tracer: p.Tracer, slow: p.Slow}, p: p}
}

// Ping implements Pinger
func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil || a.p == nil {
		return errors.New("pg: nil adapter")
	}
	return a.p.Pool.Ping(ctx)
}

// Close releases the pool
func (a *pgAdapter) Close() error { a.p.Close(); return nil }

// Tx runs fn in a transaction whose isolation comes from ctx (see WithIsolation)
func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.BeginTx(ctx, txOptions(ctx))
	if err != nil {
		return err
	}
	return runTx(ctx, tx, traced{q: tx, tracer: a.tracer, slow: a.slow}, fn)
}

// runTx commits when fn succeeds and rolls back otherwise, even on a cancelled ctx
func runTx(ctx context.Context, tx pgx.Tx, q RowQuerier, fn func(q RowQuerier) error) error {
	if err := fn(q); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return tx.Commit(ctx)
}

func txOptions(ctx context.Context) pgx.TxOptions {
	switch Isolation(ctx) {
	case IsoSerializable:
		return pgx.TxOptions{IsoLevel: pgx.Serializable}
	case IsoRepeatableRead:
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	default:
		return pgx.TxOptions{}
	}
}

type row struct {
	r    pgx.Row
	done func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.done != nil {
		x.done(err)
	}
	return err
}

type rows struct{ pgx.Rows }

func (x rows) Columns() []string {
	f := x.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}
