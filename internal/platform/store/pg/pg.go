// Package pg opens the registry's pgx pool and traces its queries
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pool
type Config struct {
	URL      string
	MaxConns int32
	// AppName is reported as application_name so publish sessions are visible in pg_stat_activity
	AppName string
	// Slow marks queries at or above this duration; zero disables the mark
	Slow time.Duration

	// ConnectRetries bounds startup pings; zero means 20
	ConnectRetries int
	// PingTimeout bounds each startup ping; zero means 3s
	PingTimeout time.Duration
}

// PG is the pool plus its optional tracer
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	Slow   time.Duration
}

var (
	newPool = pgxpool.NewWithConfig
	ping    = func(ctx context.Context, p *pgxpool.Pool) error { return p.Ping(ctx) }
	sleep   = time.Sleep
)

// Open builds the pool and waits for postgres to answer, backing off between pings
func Open(ctx context.Context, cfg Config, tracer QueryTracer) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.AppName != "" {
		if pcfg.ConnConfig.RuntimeParams == nil {
			pcfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}

	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	p := &PG{Pool: pool, Tracer: tracer, Slow: cfg.Slow}
	if err := p.await(ctx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *PG) await(ctx context.Context, cfg Config) error {
	attempts := cfg.ConnectRetries
	if attempts <= 0 {
		attempts = 20
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	backoff := 150 * time.Millisecond
	var last error
	for range attempts {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		last = ping(pctx, p.Pool)
		cancel()
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sleep(backoff)
		backoff = min(backoff*2, 2*time.Second)
	}
	return fmt.Errorf("postgres ping failed after %d attempts: %w", attempts, last)
}

// Close closes the pool; nil safe
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
