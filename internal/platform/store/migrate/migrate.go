// Package migrate applies the embedded SQL migrations
//
// Postgres files live under sql/pg and are applied once each, in version order,
// every file in its own transaction holding a transaction-scoped advisory lock so
// concurrent runners serialize. ClickHouse files under sql/ch are idempotent DDL
// and are replayed on every run.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"mpak/internal/platform/logger"
	"mpak/internal/platform/store"
)

//go:embed sql/pg/*.sql sql/ch/*.sql
var files embed.FS

// lockKey is the advisory lock id shared by every migration runner
const lockKey int64 = 0x6d70616b // "mpak"

// Migration is one numbered SQL file
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// PG returns the embedded postgres migrations
func PG() ([]Migration, error) { return Load(files, "sql/pg") }

// CH returns the embedded clickhouse migrations
func CH() ([]Migration, error) { return Load(files, "sql/ch") }

// Load reads NNN_name.sql files from dir in fsys, sorted by version
// duplicate versions are an error
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	out := make([]Migration, 0, len(entries))
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		v, err := strconv.Atoi(num)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migrate: bad file name %q (want NNN_name.sql)", e.Name())
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrate: version %d used by %q and %q", v, prev, e.Name())
		}
		seen[v] = e.Name()

		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: v, Name: name, SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

const createTracking = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    integer PRIMARY KEY,
	name       text NOT NULL,
	applied_at timestamptz NOT NULL DEFAULT now()
)`

// Apply runs every migration in ms not yet recorded in schema_migrations
// returns the migrations applied by this call
func Apply(ctx context.Context, db store.TxRunner, ms []Migration) ([]Migration, error) {
	log := logger.Named("migrate")

	if err := db.Tx(ctx, func(q store.RowQuerier) error {
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
			return err
		}
		_, err := q.Exec(ctx, createTracking)
		return err
	}); err != nil {
		return nil, fmt.Errorf("migrate: tracking table: %w", err)
	}

	var applied []Migration
	for _, m := range ms {
		done := false
		err := db.Tx(ctx, func(q store.RowQuerier) error {
			if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
				return err
			}
			n, err := store.Scalar[int](ctx, q, "SELECT count(*) FROM schema_migrations WHERE version = $1", m.Version)
			if err != nil {
				return err
			}
			if n > 0 {
				done = true
				return nil
			}
			if _, err := q.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err = q.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migrate: %03d_%s: %w", m.Version, m.Name, err)
		}
		if done {
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("already applied")
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applied")
		applied = append(applied, m)
	}
	return applied, nil
}

// ApplyCH replays the clickhouse DDL; statements must be idempotent
func ApplyCH(ctx context.Context, ch store.Clickhouse, ms []Migration) error {
	log := logger.Named("migrate")
	for _, m := range ms {
		for _, stmt := range splitStatements(m.SQL) {
			if err := ch.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate ch: %03d_%s: %w", m.Version, m.Name, err)
			}
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("ch ensured")
	}
	return nil
}

// splitStatements splits on ';' at line ends, clickhouse rejects multi statement queries
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
