package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"nqlc/internal/core/version"
	"nqlc/internal/platform/config"
	"nqlc/internal/platform/logger"
	"nqlc/internal/platform/store"
	canrepo "nqlc/internal/services/canonical/repo"
	canservice "nqlc/internal/services/canonical/service"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("NQLC_PGSQL_")
	watchCfg := root.Prefix("NQLC_CANON_")
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	build := version.Info("nqlc-watcher")
	l.Info().Str("version", build.Version).Str("commit", build.Commit).Msg("starting")

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{
			Enabled:  true,
			URL:      pgCfg.MustString("DBURL"),
			MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 2)),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	repo := canrepo.NewPG(st.PG)
	if err := repo.EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("canonical schema setup failed")
	}

	canonicalizer := canservice.NewCanonicalizer()
	interval := watchCfg.MayDuration("POLL_INTERVAL", 2*time.Second)
	watcher := canservice.NewWatcher(repo, canonicalizer, interval)

	l.Info().Dur("interval", interval).Msg("canonical watcher starting")
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Fatal().Err(err).Msg("watcher stopped")
	}
	l.Info().Msg("canonical watcher stopped")
}
