package service

import (
	"context"
	"time"

	"nqlc/internal/platform/logger"
	"nqlc/internal/services/canonical/domain"
)

// DefaultPollInterval bounds how stale the cache may run behind the store
const DefaultPollInterval = 2 * time.Second

// Watcher polls the store version and reloads the canonicalizer on drift.
// Store errors are logged and retried on the next tick; a flaky store must
// never take the watcher down
type Watcher struct {
	repo          domain.Repo
	canonicalizer *Canonicalizer
	interval      time.Duration
	log           *logger.Logger
}

// NewWatcher constructs a watcher. interval <= 0 falls back to the default
func NewWatcher(repo domain.Repo, c *Canonicalizer, interval time.Duration) *Watcher {
	if repo == nil {
		panic("canonical.Watcher requires a non-nil Repo")
	}
	if c == nil {
		panic("canonical.Watcher requires a non-nil Canonicalizer")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		repo:          repo,
		canonicalizer: c,
		interval:      interval,
		log:           logger.Named("canonical.watcher"),
	}
}

// Run loads the cache once, then polls until the context is canceled
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.reload(ctx); err != nil {
		w.log.Warn().Err(err).Msg("initial canonical load failed")
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	version, err := w.repo.Version(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("canonical version check failed")
		return
	}
	if version == w.canonicalizer.Version() {
		return
	}
	if err := w.reload(ctx); err != nil {
		w.log.Warn().Err(err).Int64("store_version", version).Msg("canonical reload failed")
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	version, err := w.repo.Version(ctx)
	if err != nil {
		return err
	}
	mappings, err := w.repo.LoadMappings(ctx)
	if err != nil {
		return err
	}
	w.canonicalizer.Load(mappings, version)
	w.log.Debug().Int64("version", version).Int("dims", len(mappings)).Msg("canonical cache loaded")
	return nil
}
