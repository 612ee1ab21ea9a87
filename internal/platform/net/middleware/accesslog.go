package middleware

import (
	"net/http"
	"time"

	"mpak/internal/platform/logger"
	pnet "mpak/internal/platform/net"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger puts the chi request id on the logger context so logger.C
// picks it up; mount after RequestID
func RequestLogger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.WithRequest(r.Context(), pnet.RequestID(r.Context()), "")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLogOptions configures AccessLog
type AccessLogOptions struct {
	// Slow logs requests at or above this duration at warn; zero disables
	Slow time.Duration
}

// AccessLog writes one line per request once the handler returns
func AccessLog(opt AccessLogOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.C(r.Context())
			evt := log.Info()
			switch {
			case status >= http.StatusInternalServerError:
				evt = log.Error()
			case opt.Slow > 0 && elapsed >= opt.Slow:
				evt = log.Warn()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", elapsed).
				Msg("request")
		})
	}
}
