// Package ch provides a clickhouse client for append-only event tables
package ch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse client
type Config struct {
	URL         string
	Role        string
	Tag         string
	DialTimeout time.Duration
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// Batch is a prepared insert that is appended to then sent once
type Batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// session is the subset of driver.Conn the client uses
type session interface {
	query(ctx context.Context, q string, args ...any) (Rows, error)
	exec(ctx context.Context, q string, args ...any) error
	prepare(ctx context.Context, q string) (Batch, error)
	Ping(ctx context.Context) error
	Close() error
}

// CH is a clickhouse client
type CH struct{ s session }

var dial = func(opts *clickhouse.Options) (session, error) {
	c, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	return driverSession{c: c}, nil
}

// Open parses the DSN, dials and pings the server
func Open(ctx context.Context, cfg Config) (*CH, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ch: empty URL")
	}
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ch: parse dsn: %w", err)
	}
	opts.ClientInfo = BuildClientInfo(cfg.Role, cfg.Tag)
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	s, err := dial(opts)
	if err != nil {
		return nil, fmt.Errorf("ch: open: %w", err)
	}
	c := &CH{s: s}
	if err := c.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ch: ping: %w", err)
	}
	return c, nil
}

// Insert appends rows to table in a single batch
func (c *CH) Insert(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	b, err := c.s.prepare(ctx, "INSERT INTO "+table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := b.Append(r...); err != nil {
			_ = b.Abort()
			return err
		}
	}
	return b.Send()
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return c.s.query(ctx, q, args...)
}

// Exec runs a statement that returns no rows, DDL included
func (c *CH) Exec(ctx context.Context, q string, args ...any) error {
	return c.s.exec(ctx, q, args...)
}

// Ping checks server connectivity
func (c *CH) Ping(ctx context.Context) error { return c.s.Ping(ctx) }

// Close closes resources
func (c *CH) Close() error {
	if c == nil || c.s == nil {
		return nil
	}
	return c.s.Close()
}

type driverSession struct{ c driver.Conn }

func (d driverSession) query(ctx context.Context, q string, args ...any) (Rows, error) {
	return d.c.Query(ctx, q, args...)
}

func (d driverSession) exec(ctx context.Context, q string, args ...any) error {
	return d.c.Exec(ctx, q, args...)
}

func (d driverSession) prepare(ctx context.Context, q string) (Batch, error) {
	return d.c.PrepareBatch(ctx, q)
}

func (d driverSession) Ping(ctx context.Context) error { return d.c.Ping(ctx) }
func (d driverSession) Close() error                   { return d.c.Close() }
