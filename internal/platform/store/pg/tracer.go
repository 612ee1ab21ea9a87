package pg

import (
	"context"
	"strings"
	"time"

	"mpak/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent describes one finished statement. Argument values are not kept:
// publish statements carry manifests, readmes and provenance documents.
type QueryEvent struct {
	SQL     string
	Args    int
	Elapsed time.Duration
	Err     error
	Slow    bool
}

// QueryTracer receives query events
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs every statement at debug and slow ones at warn, whatever the root level
func Tracer(root logger.Logger) QueryTracer {
	return &zlTracer{log: root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(ctx context.Context, ev QueryEvent) {
	l := logger.Enrich(ctx, z.log)
	evt := l.Debug()
	if ev.Slow {
		evt = l.Warn()
	}
	evt.Dur("elapsed", ev.Elapsed).
		Bool("slow", ev.Slow).
		Int("args", ev.Args).
		Str("sql", strings.Join(strings.Fields(ev.SQL), " ")).
		Err(ev.Err).
		Msg("pg query")
}
