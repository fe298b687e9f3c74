package daemon

import (
	"context"
	"testing"

	"mixtape/internal/fetch"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
	"mixtape/internal/tags"
	"mixtape/internal/testsupport"
	"mixtape/internal/workflow"
)

// gatedFetcher succeeds for every url once release is closed. A nil release
// never blocks.
type gatedFetcher struct {
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) (fetch.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return fetch.Result{}, ctx.Err()
		}
	}
	return fetch.Result{
		Title:    "Song",
		Artist:   "Uploader",
		Duration: 30,
		Filename: "Song.mp3",
		Filepath: "/music/Song.mp3",
	}, nil
}

type noopTagger struct{}

func (noopTagger) Apply(context.Context, string, tags.Metadata) error { return nil }

type noopNotifier struct{}

func (noopNotifier) BatchFinished(context.Context, notifications.Summary) error { return nil }

func newTestDaemon(t *testing.T, fetcher workflow.Fetcher, opts ...testsupport.ConfigOption) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, st, logger,
		workflow.WithFetcher(fetcher),
		workflow.WithTagger(noopTagger{}),
		workflow.WithNotifier(noopNotifier{}),
	)
	t.Cleanup(mgr.Stop)
	d, err := New(cfg, st, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}
