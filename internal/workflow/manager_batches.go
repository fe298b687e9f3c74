package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/logging"
	"mixtape/internal/store"
)

// Create validates req, persists the new batch and registers it as active.
// Nothing is stored when validation fails.
func (m *Manager) Create(ctx context.Context, req batch.Request) (*batch.Batch, error) {
	b, err := req.Build(m.cfg.Batch.MaxURLs)
	if err != nil {
		return nil, err
	}
	h := newHandle(b)
	snap, rev, _ := h.mutate(func(*batch.Batch) error { return nil })
	m.register(h)
	m.persist(ctx, h, snap, rev)

	m.batchLogger(ctx, b.ID).Info("batch created",
		logging.String(logging.FieldEventType, "batch_created"),
		logging.String("name", b.Name),
		logging.Int("tasks", b.TotalTasks),
		logging.Bool("auto_tag", b.Options.AutoTag),
	)
	return snap, nil
}

// Start moves a pending batch to downloading and launches its worker. It
// returns without waiting for any task.
func (m *Manager) Start(ctx context.Context, id string) error {
	if m.isStopped() {
		return errManagerStopped
	}
	h, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	snap, rev, err := h.mutate(func(b *batch.Batch) error { return b.MarkStarted() })
	if err != nil {
		if errors.Is(err, errDeleted) {
			return batch.NotFoundError(id)
		}
		return err
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)

	if err := m.spawn(h); err != nil {
		return err
	}
	m.batchLogger(ctx, id).Info("batch started",
		logging.String(logging.FieldEventType, "batch_started"),
		logging.Int("tasks", snap.TotalTasks),
	)
	return nil
}

// Cancel marks a pending or downloading batch cancelled. A running worker
// notices at its next task boundary.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	h, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	snap, rev, err := h.mutate(func(b *batch.Batch) error { return b.Cancel() })
	if err != nil {
		if errors.Is(err, errDeleted) {
			return batch.NotFoundError(id)
		}
		return err
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)
	m.batchLogger(ctx, id).Info("batch cancelled",
		logging.String(logging.FieldEventType, "batch_cancelled"),
		logging.Int("completed", snap.CompletedTasks),
		logging.Int("failed", snap.FailedTasks),
	)
	return nil
}

// Get returns a deep copy of the batch, preferring the active copy.
func (m *Manager) Get(ctx context.Context, id string) (*batch.Batch, error) {
	h, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.snapshot(), nil
}

// Progress returns the polling view of one batch.
func (m *Manager) Progress(ctx context.Context, id string) (Progress, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(b), nil
}

// List returns every known batch, newest first. Active copies win over
// stored records.
func (m *Manager) List(ctx context.Context) ([]*batch.Batch, error) {
	records, err := m.store.List(ctx)
	if err != nil && len(records) == 0 {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	if err != nil {
		logging.WarnWithContext(m.logger, "some batch records could not be read", "store_list_partial",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or remove the unreadable record files"),
			logging.String(logging.FieldImpact, "unreadable batches are omitted from listings"),
		)
	}

	byID := make(map[string]*batch.Batch, len(records))
	for _, rec := range records {
		if rec.Batch != nil {
			byID[rec.Batch.ID] = rec.Batch
		}
	}
	for _, h := range m.activeHandles() {
		if h.isDeleted() {
			continue
		}
		snap := h.snapshot()
		byID[snap.ID] = snap
	}

	out := make([]*batch.Batch, 0, len(byID))
	for _, b := range byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes the batch from the active index and the store whatever its
// status. A running worker stops without persisting again.
func (m *Manager) Delete(ctx context.Context, id string) error {
	h := m.lookup(id)
	if h != nil {
		h.markDeleted()
		m.unregister(id, h)
		h.writeMu.Lock()
		defer h.writeMu.Unlock()
	}

	err := m.store.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if h == nil {
			return batch.NotFoundError(id)
		}
	case err != nil:
		return fmt.Errorf("delete batch %s: %w", id, err)
	}

	m.closeSubscribers(id)
	m.batchLogger(ctx, id).Info("batch deleted",
		logging.String(logging.FieldEventType, "batch_deleted"),
		logging.Bool("was_active", h != nil),
	)
	return nil
}

// Statistics aggregates counters across every known batch.
func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	batches, err := m.List(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return computeStatistics(batches), nil
}

// CleanupOlderThan removes stored batches last written more than days ago.
// days <= 0 uses the configured retention. Idle active copies of removed
// batches are dropped too.
func (m *Manager) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = m.cfg.Storage.CleanupDays
	}
	if days <= 0 {
		return 0, batch.ValidationError("cleanup days must be positive")
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := m.store.PruneOlderThan(ctx, cutoff)
	for _, id := range removed {
		if h := m.lookup(id); h != nil && !h.isRunning() {
			h.markDeleted()
			m.unregister(id, h)
			m.closeSubscribers(id)
		}
	}
	if err != nil {
		return len(removed), fmt.Errorf("cleanup batches: %w", err)
	}
	m.logger.Info("old batches cleaned up",
		logging.String(logging.FieldEventType, "batch_cleanup"),
		logging.Int("days", days),
		logging.Int("removed", len(removed)),
	)
	return len(removed), nil
}

// acquire returns the active handle for id, loading the batch from the store
// when it is not active. Loaded batches that are not terminal are registered.
func (m *Manager) acquire(ctx context.Context, id string) (*handle, error) {
	if id == "" {
		return nil, batch.ValidationError("batch id is required")
	}
	if h := m.lookup(id); h != nil {
		return h, nil
	}
	b, err := m.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, batch.NotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", id, err)
	}
	h := newHandle(b)
	if b.Status.IsTerminal() {
		return h, nil
	}
	return m.register(h), nil
}

// persist writes snap unless a newer revision is already stored or the batch
// was deleted. Failures are logged; memory stays authoritative.
func (m *Manager) persist(ctx context.Context, h *handle, snap *batch.Batch, rev uint64) {
	if snap == nil {
		return
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if rev <= h.persisted || h.isDeleted() {
		return
	}
	if err := m.store.Save(ctx, snap); err != nil {
		logger := m.batchLogger(ctx, snap.ID)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, batch state not persisted")
			return
		}
		logging.ErrorWithContext(logger, "failed to persist batch", "batch_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the batch store location and free space"),
		)
		return
	}
	h.persisted = rev
}
