// Package middleware adapts chi and go-chi/cors middleware for the API stack
package middleware

import (
	"net/http"
	"time"

	pstrings "mpak/internal/platform/strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	chicors "github.com/go-chi/cors"
)

// Middleware is the shape every constructor here returns
type Middleware = func(http.Handler) http.Handler

// RequestID attaches or propagates X-Request-ID
func RequestID() Middleware { return chimw.RequestID }

// RealIP trusts X-Forwarded-For / X-Real-IP from the fronting proxy
func RealIP() Middleware { return chimw.RealIP }

// Timeout cancels the request context after d
func Timeout(d time.Duration) Middleware { return chimw.Timeout(d) }

// NoCache marks every response uncacheable; signed download urls must not be reused by proxies
func NoCache() Middleware { return chimw.NoCache }

// Compress gzips JSON and text bodies at level; artifact streams are left alone
func Compress(level int) Middleware {
	c := chimw.NewCompressor(level, "application/json", "text/plain")
	return c.Handler
}

// RedirectSlashes redirects /foo/ to /foo
func RedirectSlashes() Middleware { return chimw.RedirectSlashes }

// StripSlashes strips a trailing slash from the request path
func StripSlashes() Middleware { return chimw.StripSlashes }

// Heartbeat answers GET path with 200 before routing
func Heartbeat(path string) Middleware { return chimw.Heartbeat(path) }

// CORSOptions is a narrow surface over go-chi/cors
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

// CORS lets browsers read packages and downloads; publishing is token based so credentials stay off
func CORS(o CORSOptions) Middleware {
	return chicors.Handler(chicors.Options{
		AllowedOrigins: o.AllowedOrigins,
		AllowedMethods: pstrings.IfEmpty(o.AllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		AllowedHeaders: pstrings.IfEmpty(o.AllowedHeaders, []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		ExposedHeaders: o.ExposedHeaders,
		MaxAge:         o.MaxAge,
	})
}
