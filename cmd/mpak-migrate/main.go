package main

import (
	"context"
	"flag"
	"os"

	"mpak/internal/modkit/repokit"
	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"
	"mpak/internal/platform/store"
	"mpak/internal/platform/store/migrate"
)

func main() {
	var (
		fCH   = flag.Bool("ch", false, "also ensure the clickhouse analytics tables")
		fList = flag.Bool("list", false, "print the embedded migrations and exit")
	)
	flag.Parse()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	l := logger.Named("migrate")

	pgMigs, err := migrate.PG()
	if err != nil {
		l.Fatal().Err(err).Msg("load pg migrations")
	}
	if *fList {
		for _, m := range pgMigs {
			l.Info().Int("version", m.Version).Str("name", m.Name).Msg("pg")
		}
		os.Exit(0)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		AppName: "mpak-migrate",
		PG: store.PGConfig{
			Enabled:  true,
			URL:      pgCfg.MustString("DBURL"),
			MaxConns: 2,
		},
		CH: store.CHConfig{
			Enabled: *fCH,
			URL:     chCfg.MayString("DBURL", ""),
		},
	}, store.WithLogger(*logger.Get()))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() { _ = st.Close(context.Background()) }()

	applied, err := migrate.Apply(ctx, st.PG, pgMigs)
	if err != nil {
		l.Fatal().Err(err).Msg("pg migrations failed")
	}
	l.Info().Int("applied", len(applied)).Int("total", len(pgMigs)).Msg("pg schema up to date")

	if *fCH {
		repokit.MustPing(ctx, "ch", st.CH)
		chMigs, err := migrate.CH()
		if err != nil {
			l.Fatal().Err(err).Msg("load ch migrations")
		}
		if err := migrate.ApplyCH(ctx, st.CH, chMigs); err != nil {
			l.Fatal().Err(err).Msg("ch migrations failed")
		}
	}
}
