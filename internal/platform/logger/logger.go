// Package logger wraps zerolog with registry defaults and request-scoped
// fields (request id, publishing identity)
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"mpak/internal/platform/config/raw"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// Options configures the root logger
type Options struct {
	Level   string
	Format  string // "console" or "json"
	Service string
	Writer  io.Writer
	Caller  bool
}

// FromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_SERVICE and LOG_CALLER
func FromEnv() Options {
	rc := raw.New().Prefix("LOG_")
	return Options{
		Level:   strings.ToLower(rc.Get("LEVEL", "info")),
		Format:  strings.ToLower(rc.Get("FORMAT", "json")),
		Service: rc.Get("SERVICE", ""),
		Caller:  rc.GetBool("CALLER", false),
	}
}

// New builds a logger from opt; unknown levels fall back to info
func New(opt Options) Logger {
	lvl, err := zerolog.ParseLevel(strings.TrimSpace(opt.Level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	b := zerolog.New(w).Level(lvl).With().Timestamp()
	if opt.Service != "" {
		b = b.Str("service", opt.Service)
	}
	if opt.Caller {
		b = b.Caller()
	}
	return b.Logger()
}

var (
	rootMu sync.RWMutex
	root   *Logger
)

// Init replaces the root logger
func Init(opt Options) {
	l := New(opt)
	rootMu.Lock()
	root = &l
	rootMu.Unlock()
}

// Get returns the root logger, built from the environment on first use
func Get() *Logger {
	rootMu.RLock()
	l := root
	rootMu.RUnlock()
	if l != nil {
		return l
	}
	rootMu.Lock()
	defer rootMu.Unlock()
	if root == nil {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		nl := New(FromEnv())
		root = &nl
	}
	return root
}

// Named returns a child of the root logger tagged with component
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

type ctxKey uint8

const (
	keyRequestID ctxKey = iota
	keyPublisher
)

// WithRequest annotates ctx with the request id and, when known, the publisher
func WithRequest(ctx context.Context, reqID, publisher string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, keyRequestID, reqID)
	}
	return WithPublisher(ctx, publisher)
}

// WithPublisher records the authenticated repository ("owner/repo") on ctx
func WithPublisher(ctx context.Context, repo string) context.Context {
	if repo == "" {
		return ctx
	}
	return context.WithValue(ctx, keyPublisher, repo)
}

// Enrich copies the request fields carried on ctx onto l
func Enrich(ctx context.Context, l Logger) Logger {
	b := l.With()
	if s, _ := ctx.Value(keyRequestID).(string); s != "" {
		b = b.Str("request_id", s)
	}
	if s, _ := ctx.Value(keyPublisher).(string); s != "" {
		b = b.Str("publisher", s)
	}
	return b.Logger()
}

// C returns the root logger enriched from ctx
func C(ctx context.Context) *Logger {
	l := Enrich(ctx, *Get())
	return &l
}

// Sanitize makes untrusted text safe for a single log field: control
// characters become spaces and the result is capped at maxLen runes
func Sanitize(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 256
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= maxLen {
			b.WriteString("...")
			break
		}
		if r < 0x20 || r == 0x7f {
			r = ' '
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
