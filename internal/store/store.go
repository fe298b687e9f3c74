package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/config"
)

// ErrNotFound is returned when no record exists for a batch id.
var ErrNotFound = errors.New("batch record not found")

// Record is one stored batch together with the time it was last written.
type Record struct {
	Batch     *batch.Batch
	UpdatedAt time.Time
}

// Store persists one record per batch id. Save replaces the whole record.
type Store interface {
	Save(ctx context.Context, b *batch.Batch) error
	Load(ctx context.Context, id string) (*batch.Batch, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
	// PruneOlderThan removes records last written before cutoff and returns
	// their ids.
	PruneOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Storage.Backend {
	case config.StorageBackendDir, "":
		return OpenDir(cfg.Storage.BatchDir)
	case config.StorageBackendSQLite:
		return OpenSQLite(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Storage.Backend)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func validID(id string) error {
	if id == "" {
		return errors.New("store: batch id is required")
	}
	for _, r := range id {
		if r == '/' || r == '\\' || r == 0 {
			return fmt.Errorf("store: invalid batch id %q", id)
		}
	}
	if id == "." || id == ".." {
		return fmt.Errorf("store: invalid batch id %q", id)
	}
	return nil
}
