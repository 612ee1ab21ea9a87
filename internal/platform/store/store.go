// Package store opens the registry's databases: postgres holds packages,
// versions and artifacts; clickhouse optionally receives download events
package store

import (
	"context"
	"errors"
	"fmt"

	"mpak/internal/platform/logger"
)

// Store holds whichever backends Open enabled; a disabled backend is nil
type Store struct {
	Log logger.Logger
	PG  TxRunner
	CH  Clickhouse
}

// Open connects the backends enabled in cfg. If a later backend fails the
// earlier ones are closed before returning.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{Log: logger.New(logger.Options{Level: "disabled"})}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if cfg.PG.Enabled {
		p, err := openPG(ctx, cfg, s)
		if err != nil {
			return nil, fmt.Errorf("open pg: %w", err)
		}
		s.PG = p
	}
	if cfg.CH.Enabled {
		c, err := openCH(ctx, cfg, s)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("open ch: %w", err)
		}
		s.CH = c
	}
	return s, nil
}

type backend struct {
	name string
	v    any
}

func (s *Store) backends() []backend {
	var out []backend
	if s.PG != nil {
		out = append(out, backend{"pg", s.PG})
	}
	if s.CH != nil {
		out = append(out, backend{"ch", s.CH})
	}
	return out
}

// Guard pings every backend that can be pinged and joins the failures
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	for _, b := range s.backends() {
		p, ok := b.v.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every open backend
func (s *Store) Close(context.Context) error {
	var errs []error
	for _, b := range s.backends() {
		if c, ok := b.v.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
