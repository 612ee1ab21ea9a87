package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"mpak/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recTracer struct{ events []pg.QueryEvent }

func (r *recTracer) OnQuery(_ context.Context, ev pg.QueryEvent) { r.events = append(r.events, ev) }

type scanRow struct{ err error }

func (s scanRow) Scan(dest ...any) error {
	if s.err != nil {
		return s.err
	}
	*(dest[0].(*string)) = "@acme/tools"
	return nil
}

type colRows struct {
	pgx.Rows
	names []string
}

func (c colRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(c.names))
	for i, n := range c.names {
		out[i] = pgconn.FieldDescription{Name: n}
	}
	return out
}

// fakeTx implements the pgx.Tx methods the adapter touches; the rest panic via the nil embed
type fakeTx struct {
	pgx.Tx
	execErr    error
	committed  bool
	rolledBack bool
	rbCtxErr   error
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return colRows{names: []string{"name", "version"}}, nil
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return scanRow{} }

func (f *fakeTx) Commit(context.Context) error { f.committed = true; return nil }

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	f.rbCtxErr = ctx.Err()
	return nil
}

func TestTraced_ReportsEachStatement(t *testing.T) {
	tr := &recTracer{}
	q := traced{q: &fakeTx{execErr: errors.New("unique violation")}, tracer: tr}
	ctx := context.Background()

	_, err := q.Exec(ctx, "INSERT INTO packages VALUES ($1, $2)", "a", "b")
	require.Error(t, err)

	rs, err := q.Query(ctx, "SELECT name, version FROM package_versions")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "version"}, rs.Columns())

	var name string
	require.NoError(t, q.QueryRow(ctx, "SELECT name FROM packages WHERE id = $1", 1).Scan(&name))
	assert.Equal(t, "@acme/tools", name)

	require.Len(t, tr.events, 3)
	assert.Equal(t, 2, tr.events[0].Args)
	assert.EqualError(t, tr.events[0].Err, "unique violation")
	assert.Equal(t, 0, tr.events[1].Args)
	assert.Equal(t, 1, tr.events[2].Args)
	for _, ev := range tr.events {
		assert.False(t, ev.Slow, "slow threshold is off")
	}
}

func TestTraced_QueryRowReportsScanError(t *testing.T) {
	tr := &recTracer{}
	boom := errors.New("no rows")
	q := traced{q: rowOnly{scanRow{err: boom}}, tracer: tr, slow: time.Nanosecond}

	row := q.QueryRow(context.Background(), "SELECT 1")
	assert.Empty(t, tr.events, "nothing reported before Scan")

	var s string
	assert.ErrorIs(t, row.Scan(&s), boom)
	require.Len(t, tr.events, 1)
	assert.ErrorIs(t, tr.events[0].Err, boom)
	assert.True(t, tr.events[0].Slow)
}

func TestTraced_NilTracer(t *testing.T) {
	q := traced{q: &fakeTx{}}
	ct, err := q.Exec(context.Background(), "DELETE FROM package_artifacts")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ct.RowsAffected())
}

type rowOnly struct{ r pgx.Row }

func (rowOnly) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (rowOnly) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (o rowOnly) QueryRow(context.Context, string, ...any) pgx.Row   { return o.r }

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	called := false
	err := runTx(context.Background(), tx, traced{q: tx}, func(q RowQuerier) error {
		called = true
		_, err := q.Exec(context.Background(), "UPDATE packages SET latest_version = $1", "1.0.0")
		return err
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestRunTx_RollsBackOnCancelledContext(t *testing.T) {
	tx := &fakeTx{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	boom := errors.New("lock timeout")
	err := runTx(ctx, tx, traced{q: tx}, func(RowQuerier) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	assert.NoError(t, tx.rbCtxErr, "rollback must not inherit the cancellation")
}

func TestPGAdapter_PingNil(t *testing.T) {
	var a *pgAdapter
	assert.Error(t, a.Ping(context.Background()))
}
