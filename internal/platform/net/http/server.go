package http

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"time"

	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

// Server is the chi mux behind a stdlib http.Server
type Server struct {
	mux   *chi.Mux
	srv   *stdhttp.Server
	grace time.Duration
}

// NewServer reads PORT, SHUTDOWN_GRACE, READ_HEADER_TIMEOUT and IDLE_TIMEOUT from cfg,
// usually the CORE_API_ view
func NewServer(cfg config.Conf) *Server {
	m := chi.NewRouter()
	return &Server{
		mux:   m,
		grace: cfg.MayDuration("SHUTDOWN_GRACE", 15*time.Second),
		srv: &stdhttp.Server{
			Addr:              cfg.MayString("PORT", ":4000"),
			Handler:           m,
			ReadHeaderTimeout: cfg.MayDuration("READ_HEADER_TIMEOUT", 10*time.Second),
			IdleTimeout:       cfg.MayDuration("IDLE_TIMEOUT", 120*time.Second),
		},
	}
}

// Router is the mount point for modules
func (s *Server) Router() Router { return AdaptChi(s.mux) }

// Handler serves the mounted routes without listening
func (s *Server) Handler() stdhttp.Handler { return s.mux }

// Run listens on the configured address until ctx ends, then drains within SHUTDOWN_GRACE
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.Named("http")
	log.Info().Str("addr", ln.Addr().String()).Msg("http listening")

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
		defer cancel()
		if err := s.srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	})
	defer stop()

	if err := s.srv.Serve(ln); !errors.Is(err, stdhttp.ErrServerClosed) {
		return err
	}
	return nil
}
