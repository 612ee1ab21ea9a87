package store

import (
	"context"
	"time"

	chx "mpak/internal/platform/store/ch"
	"mpak/internal/platform/store/pg"
)

// openPG opens the pool and wraps it with the traced adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}
	p, err := pg.Open(ctx, pg.Config{
		URL:            cfg.PG.URL,
		MaxConns:       cfg.PG.MaxConns,
		AppName:        cfg.AppName,
		Slow:           time.Duration(cfg.PG.SlowQueryMs) * time.Millisecond,
		ConnectRetries: cfg.PG.ConnectRetries,
		PingTimeout:    cfg.PG.PingTimeout,
	}, tracer)
	if err != nil {
		return nil, err
	}
	return newPGAdapter(p), nil
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{URL: cfg.CH.URL, Role: cfg.CH.Role, Tag: cfg.AppName})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
