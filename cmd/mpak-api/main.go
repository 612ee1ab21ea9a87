package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpak/internal/adapters/blob"
	"mpak/internal/modkit/repokit"
	"mpak/internal/platform/async"
	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"
	phttp "mpak/internal/platform/net/http"
	"mpak/internal/platform/store"

	"mpak/internal/services/api"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_API_") // listener, timeouts, cors
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// clickhouse only carries download analytics and stays optional
	st, err := store.Open(
		ctx,
		store.Config{
			AppName: "mpak-api",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),
			},
			CH: store.CHConfig{
				Enabled: chCfg.MayBool("ENABLED", false),
				URL:     chCfg.MayString("DBURL", ""),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	repokit.MustGuard(ctx, st)

	blobs, err := blob.Open(blob.OptionsFromConf(root.Prefix("BLOB_"), apiCfg.MayString("PUBLIC_URL", "http://localhost:4000")))
	if err != nil {
		l.Panic().Err(err).Msg("blob.Open failed")
	}

	runner := async.New(root.Prefix("ASYNC_"))

	srv := phttp.NewServer(apiCfg)
	api.Mount(
		srv.Router(),
		api.Options{
			Config:         root,
			Store:          st,
			Blob:           blobs,
			Async:          runner,
			Logger:         l,
			EnableProfiler: apiCfg.MayBool("PROFILER", false),
		},
	)

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}

	// let detached counters and scan triggers finish
	wctx, cancel := context.WithTimeout(context.Background(), apiCfg.MayDuration("DRAIN_TIMEOUT", 30*time.Second))
	defer cancel()
	if err := runner.Wait(wctx); err != nil {
		l.Warn().Err(err).Msg("async tasks still running at exit")
	}
}
