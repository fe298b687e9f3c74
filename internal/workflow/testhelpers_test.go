package workflow_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/fetch"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
	"mixtape/internal/store"
	"mixtape/internal/tags"
	"mixtape/internal/testsupport"
	"mixtape/internal/workflow"
)

// stubFetcher succeeds for every url unless told otherwise. Urls with a gate
// block until the gate is closed or the context ends.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]string
	panics  map[string]bool
	gates   map[string]chan struct{}
	started chan string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		fail:    make(map[string]string),
		panics:  make(map[string]bool),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (fetch.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	gate := s.gates[url]
	failMsg, shouldFail := s.fail[url]
	shouldPanic := s.panics[url]
	s.mu.Unlock()

	s.started <- url
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return fetch.Result{}, ctx.Err()
		}
	}
	if shouldPanic {
		panic("decoder exploded")
	}
	if shouldFail {
		return fetch.Result{}, errors.New(failMsg)
	}
	name := path.Base(url)
	return fetch.Result{
		Title:    "Title " + name,
		Artist:   "Uploader",
		Duration: 60,
		Filename: name + ".mp3",
		Filepath: "/music/" + name + ".mp3",
	}, nil
}

func (s *stubFetcher) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// stubTagger records every tag write. Paths listed in panics blow up instead.
type stubTagger struct {
	mu     sync.Mutex
	metas  []tags.Metadata
	panics map[string]bool
}

func (s *stubTagger) Apply(_ context.Context, path string, meta tags.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics[path] {
		panic("id3 frame overflow")
	}
	s.metas = append(s.metas, meta)
	return nil
}

func (s *stubTagger) Metas() []tags.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tags.Metadata(nil), s.metas...)
}

type stubNotifier struct {
	mu        sync.Mutex
	summaries []notifications.Summary
	err       error
}

func (s *stubNotifier) BatchFinished(_ context.Context, summary notifications.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return s.err
}

func (s *stubNotifier) Summaries() []notifications.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Summary(nil), s.summaries...)
}

type harness struct {
	cfg      *config.Config
	store    store.Store
	fetcher  *stubFetcher
	tagger   *stubTagger
	notifier *stubNotifier
	mgr      *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		cfg:      cfg,
		store:    st,
		fetcher:  newStubFetcher(),
		tagger:   &stubTagger{panics: make(map[string]bool)},
		notifier: &stubNotifier{},
	}
	h.mgr = h.newManager(t)
	return h
}

// newManager builds another manager over the same store, as a restarted
// daemon would.
func (h *harness) newManager(t *testing.T) *workflow.Manager {
	t.Helper()
	return h.managerOver(t, h.store)
}

func (h *harness) managerOver(t *testing.T, st store.Store) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(h.cfg, st, logging.NewNop(),
		workflow.WithFetcher(h.fetcher),
		workflow.WithTagger(h.tagger),
		workflow.WithNotifier(h.notifier),
	)
	t.Cleanup(mgr.Stop)
	return mgr
}

func (h *harness) create(t *testing.T, name string, urls ...string) *batch.Batch {
	t.Helper()
	b, err := h.mgr.Create(context.Background(), batch.Request{Name: name, URLs: urls})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

// waitIdle waits until mgr has no running workers.
func waitIdle(t *testing.T, mgr *workflow.Manager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for mgr.ActiveWorkers() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("workers did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitStarted blocks until the fetcher reports a call for url.
func waitStarted(t *testing.T, f *stubFetcher, url string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == url {
				return
			}
		case <-timeout:
			t.Fatalf("fetch of %s never started", url)
		}
	}
}

func mustGet(t *testing.T, mgr *workflow.Manager, id string) *batch.Batch {
	t.Helper()
	b, err := mgr.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return b
}

func checkCounters(t *testing.T, b *batch.Batch) {
	t.Helper()
	if b.TotalTasks != len(b.Tasks) {
		t.Fatalf("total_tasks %d != task count %d", b.TotalTasks, len(b.Tasks))
	}
	if b.CompletedTasks+b.FailedTasks > b.TotalTasks {
		t.Fatalf("counters overflow: %d+%d > %d", b.CompletedTasks, b.FailedTasks, b.TotalTasks)
	}
}

// flakyStore panics on the first save of a batch that has a completed task.
type flakyStore struct {
	store.Store
	mu    sync.Mutex
	fired bool
}

func (s *flakyStore) Save(ctx context.Context, b *batch.Batch) error {
	s.mu.Lock()
	fire := !s.fired && b.CompletedTasks > 0
	if fire {
		s.fired = true
	}
	s.mu.Unlock()
	if fire {
		panic("sqlite driver exploded")
	}
	return s.Store.Save(ctx, b)
}
