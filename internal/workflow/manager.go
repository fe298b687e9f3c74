package workflow

import (
	"context"
	"log/slog"
	"sync"

	"mixtape/internal/config"
	"mixtape/internal/fetch"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
	"mixtape/internal/store"
	"mixtape/internal/tags"
)

// Manager owns the active batch index and one worker goroutine per started
// batch.
type Manager struct {
	cfg      *config.Config
	store    store.Store
	logger   *slog.Logger
	fetcher  Fetcher
	tagger   Tagger
	notifier Notifier

	mu      sync.Mutex
	active  map[string]*handle
	stopped bool

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	subMu sync.Mutex
	subs  map[string]map[chan Progress]struct{}
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithFetcher replaces the yt-dlp fetcher.
func WithFetcher(f Fetcher) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.fetcher = f
		}
	}
}

// WithTagger replaces the ID3 tag writer.
func WithTagger(t Tagger) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tagger = t
		}
	}
}

// WithNotifier replaces the configured notification service.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// NewManager constructs a workflow manager backed by st. Collaborators not
// supplied through opts are built from cfg.
func NewManager(cfg *config.Config, st store.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	runCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		active:    make(map[string]*handle),
		runCtx:    runCtx,
		cancelRun: cancel,
		subs:      make(map[string]map[chan Progress]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fetcher == nil {
		m.fetcher = fetch.New(cfg, logger, fetch.WithTempRoot(cfg.FetchTempDir()))
	}
	if m.tagger == nil {
		m.tagger = tags.NewWriter(logger)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	return m
}

// Stop cancels every worker and waits for them to return. Tasks in flight are
// left in the downloading state for startup recovery to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.cancelRun()
	m.wg.Wait()
}

// ActiveWorkers reports how many batches currently have a worker attached.
func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	count := 0
	for _, h := range handles {
		if h.isRunning() {
			count++
		}
	}
	return count
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Manager) lookup(id string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// register inserts h unless another handle for the same id won the race, in
// which case the existing handle is returned.
func (m *Manager) register(h *handle) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.active[h.batch.ID]; ok {
		return existing
	}
	m.active[h.batch.ID] = h
	return h
}

func (m *Manager) unregister(id string, h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.active[id]; ok && current == h {
		delete(m.active, id)
	}
}

func (m *Manager) activeHandles() []*handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles := make([]*handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	return handles
}
