package workflow

import (
	"context"
	"errors"
	"sync"

	"mixtape/internal/batch"
)

// errDeleted stops a worker whose batch was deleted underneath it.
var errDeleted = errors.New("batch deleted")

// handle is the in-memory home of one active batch.
//
// mu guards the batch value and is held only while mutating or cloning it.
// writeMu serializes store writes; persisted is the newest revision written,
// so a slower writer holding an older snapshot never overwrites a newer one.
type handle struct {
	mu      sync.Mutex
	batch   *batch.Batch
	rev     uint64
	deleted bool
	running bool
	stop    context.CancelFunc

	writeMu   sync.Mutex
	persisted uint64
}

func newHandle(b *batch.Batch) *handle {
	return &handle{batch: b}
}

// mutate applies fn to the batch and returns a snapshot tagged with the new
// revision. The batch is left untouched by callers when fn fails.
func (h *handle) mutate(fn func(*batch.Batch) error) (*batch.Batch, uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleted {
		return nil, 0, errDeleted
	}
	if err := fn(h.batch); err != nil {
		return nil, 0, err
	}
	h.rev++
	return h.batch.Clone(), h.rev, nil
}

func (h *handle) snapshot() *batch.Batch {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batch.Clone()
}

func (h *handle) status() batch.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batch.Status
}

func (h *handle) isDeleted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deleted
}

func (h *handle) isRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// markDeleted flags the handle and aborts its worker, if any.
func (h *handle) markDeleted() {
	h.mu.Lock()
	h.deleted = true
	stop := h.stop
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// claim reserves the handle for a worker. It reports false when a worker is
// already attached or the handle was deleted.
func (h *handle) claim(stop context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.deleted {
		return false
	}
	h.running = true
	h.stop = stop
	return true
}

func (h *handle) release() {
	h.mu.Lock()
	stop := h.stop
	h.running = false
	h.stop = nil
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}
