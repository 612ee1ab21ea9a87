package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	phttp "mpak/internal/platform/net/http"
	"mpak/internal/platform/net/middleware"
)

// StackOptions tunes CommonStack; zero value is fine for tests
type StackOptions struct {
	CORSOrigins []string
	Timeout     time.Duration
	SlowLog     time.Duration
}

// CommonStack returns a baseline per module middleware slice
// compose with Protected for bearer-authenticated routes
func CommonStack(opts ...StackOptions) []func(http.Handler) http.Handler {
	var o StackOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.SlowLog <= 0 {
		o.SlowLog = 500 * time.Millisecond
	}
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.RequestLogger(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability
		middleware.AccessLog(middleware.AccessLogOptions{Slow: o.SlowLog}),

		middleware.CORS(middleware.CORSOptions{
			AllowedOrigins: o.CORSOrigins,
			ExposedHeaders: []string{"X-Request-ID"},
		}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(o.Timeout),
	}
}

// Bearer wires bearer token extraction to the platform JSON writer
func Bearer() func(http.Handler) http.Handler {
	return middleware.Bearer(phttp.JSON)
}
