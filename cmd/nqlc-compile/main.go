package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"

	"nqlc/internal/core/semantic"
	"nqlc/internal/core/version"
	"nqlc/internal/platform/config"
	"nqlc/internal/platform/logger"
	"nqlc/internal/platform/store"
	candomain "nqlc/internal/services/canonical/domain"
	canrepo "nqlc/internal/services/canonical/repo"
	canservice "nqlc/internal/services/canonical/service"
	"nqlc/internal/services/compile"
	datasetdomain "nqlc/internal/services/dataset/domain"
	datasetrepo "nqlc/internal/services/dataset/repo"
	datasetservice "nqlc/internal/services/dataset/service"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("NQLC_PGSQL_")
	chCfg := root.Prefix("NQLC_CLICKHOUSE_")
	l := logger.Get()

	var (
		catalogPath = flag.String("catalog", root.Prefix("NQLC_").MayString("CATALOG", "semantic.yaml"), "semantic catalog YAML")
		payloadPath = flag.String("payload", "-", "NQL payload file, or - for stdin")
	)
	flag.Parse()

	build := version.Info("nqlc-compile")
	l.Debug().Str("version", build.Version).Str("commit", build.Commit).Msg("starting")

	cat, err := semantic.Load(*catalogPath)
	if err != nil {
		l.Fatal().Err(err).Str("path", *catalogPath).Msg("semantic catalog load failed")
	}

	raw, err := readPayload(*payloadPath)
	if err != nil {
		l.Fatal().Err(err).Msg("payload read failed")
	}

	ctx := context.Background()
	pgEnabled := pgCfg.MayBool("ENABLED", false)
	chEnabled := chCfg.MayBool("ENABLED", false)

	var canonRepo candomain.Repo = canrepo.NewMemory()
	var exec datasetdomain.Executor

	if pgEnabled || chEnabled {
		st, err := store.Open(ctx, store.Config{
			PG: store.PGConfig{
				Enabled:  pgEnabled,
				URL:      pgCfg.MayString("DBURL", ""),
				MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 4)),
			},
			CH: store.CHConfig{
				Enabled:    chEnabled,
				URL:        chCfg.MayString("DBURL", ""),
				ClientName: "nqlc",
				ClientTag:  "compile",
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
		if st.PG != nil {
			pg := canrepo.NewPG(st.PG)
			if err := pg.EnsureSchema(ctx); err != nil {
				l.Fatal().Err(err).Msg("canonical schema setup failed")
			}
			canonRepo = pg
		}
		if st.CH != nil {
			exec = datasetservice.New(datasetrepo.NewCH(st.CH, cat))
		}
	}

	canonicalizer := canservice.NewCanonicalizer()
	canonVersion, err := canonRepo.Version(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("canonical version unavailable; cache stays empty")
	} else if mappings, err := canonRepo.LoadMappings(ctx); err != nil {
		l.Warn().Err(err).Msg("canonical load failed; cache stays empty")
	} else {
		canonicalizer.Load(mappings, canonVersion)
	}

	svc := compile.New(cat, canonicalizer, exec)
	compiled, err := svc.Compile(ctx, raw, nil)
	if err != nil {
		l.Fatal().Err(err).Msg("compile failed")
	}

	out := map[string]any{
		"query_id":    compiled.QueryID,
		"sql":         compiled.SQL,
		"decision":    compiled.Decision.Decision,
		"diagnostics": compiled.Decision.Diagnostics,
		"critic_pass": compiled.NQL.Provenance.CriticPass,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		l.Fatal().Err(err).Msg("encode output failed")
	}
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
