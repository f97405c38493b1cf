package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"nqlc/internal/platform/testkit"
	"nqlc/internal/services/canonical/domain"
	"nqlc/internal/services/canonical/repo"
)

type flakyRepo struct {
	inner *repo.Memory
	fail  atomic.Bool
}

func (f *flakyRepo) Version(ctx context.Context) (int64, error) {
	if f.fail.Load() {
		return 0, errors.New("store down")
	}
	return f.inner.Version(ctx)
}

func (f *flakyRepo) LoadMappings(ctx context.Context) (domain.Mappings, error) {
	if f.fail.Load() {
		return nil, errors.New("store down")
	}
	return f.inner.LoadMappings(ctx)
}

func (f *flakyRepo) Promote(
	ctx context.Context,
	dim, synonym, canonical string,
	score float64,
	promotedBy string,
) (int64, error) {
	return f.inner.Promote(ctx, dim, synonym, canonical, score, promotedBy)
}

func (f *flakyRepo) SynonymValues(ctx context.Context, dim string) ([]string, []string, error) {
	return f.inner.SynonymValues(ctx, dim)
}

func (f *flakyRepo) DimMapping(ctx context.Context, dim string) (map[string]string, error) {
	return f.inner.DimMapping(ctx, dim)
}

func waitForVersion(t *testing.T, c *Canonicalizer, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Version() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cache version = %d, want %d", c.Version(), want)
}

func TestWatcher_ReloadsOnVersionDrift(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repo.NewMemory()
	_, err := store.Promote(ctx, "area", "noho", "North Hollywood", 0.9, "tester")
	testkit.MustNoErr(t, err)

	cache := NewCanonicalizer()
	watcher := NewWatcher(store, cache, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// initial load picks up the promotion made before the watcher started
	waitForVersion(t, cache, 2)
	if res := cache.Resolve("area", "noho"); !res.Applied {
		t.Fatalf("initial load missing mapping: %+v", res)
	}

	// a later promotion drifts the store version and the poller catches up
	_, err = store.Promote(ctx, "area", "dtla", "Downtown", 0.8, "tester")
	testkit.MustNoErr(t, err)
	waitForVersion(t, cache, 3)
	if res := cache.Resolve("area", "DTLA"); !res.Applied || res.Value != "Downtown" {
		t.Fatalf("drift reload missing mapping: %+v", res)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcher_SurvivesStoreErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flaky := &flakyRepo{inner: repo.NewMemory()}
	_, err := flaky.inner.Promote(ctx, "area", "noho", "North Hollywood", 0.9, "tester")
	testkit.MustNoErr(t, err)
	flaky.fail.Store(true)

	cache := NewCanonicalizer()
	watcher := NewWatcher(flaky, cache, 10*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// errors are tolerated until the store recovers
	time.Sleep(50 * time.Millisecond)
	if cache.Version() != 0 {
		t.Fatalf("cache loaded through a failing store: %d", cache.Version())
	}
	flaky.fail.Store(false)
	waitForVersion(t, cache, 2)

	cancel()
	<-done
}

func TestNewWatcher_DefaultsInterval(t *testing.T) {
	w := NewWatcher(repo.NewMemory(), NewCanonicalizer(), 0)
	if w.interval != DefaultPollInterval {
		t.Fatalf("interval = %v", w.interval)
	}
	testkit.MustPanic(t, func() { NewWatcher(nil, NewCanonicalizer(), 0) })
	testkit.MustPanic(t, func() { NewWatcher(repo.NewMemory(), nil, 0) })
}
