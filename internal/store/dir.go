package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mixtape/internal/batch"
)

const recordExt = ".json"

// DirStore keeps each batch in <dir>/<id>.json.
type DirStore struct {
	dir string
}

// OpenDir prepares a directory-backed store.
func OpenDir(dir string) (*DirStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store: batch directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batch directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the directory holding the records.
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// Save writes the record to a temp file in the same directory and renames it
// over the previous one so readers never see a partial document.
func (s *DirStore) Save(ctx context.Context, b *batch.Batch) error {
	if b == nil {
		return errors.New("store: nil batch")
	}
	if err := validID(b.ID); err != nil {
		return err
	}
	if err := ensureContext(ctx).Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", b.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+b.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(b.ID)); err != nil {
		cleanup()
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

func (s *DirStore) Load(ctx context.Context, id string) (*batch.Batch, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	return readRecord(s.path(id))
}

func readRecord(path string) (*batch.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var b batch.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return &b, nil
}

// List returns every readable record. Unreadable files are skipped and
// reported through the joined error alongside the records that did load.
func (s *DirStore) List(ctx context.Context) ([]Record, error) {
	ctx = ensureContext(ctx)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read batch directory: %w", err)
	}
	records := make([]Record, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		b, err := readRecord(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, Record{Batch: b, UpdatedAt: info.ModTime()})
	}
	return records, errors.Join(errs...)
}

func (s *DirStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := ensureContext(ctx).Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// PruneOlderThan removes records whose file modification time is before
// cutoff, regardless of batch status.
func (s *DirStore) PruneOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx = ensureContext(ctx)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read batch directory: %w", err)
	}
	var removed []string
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		removed = append(removed, strings.TrimSuffix(name, recordExt))
	}
	return removed, errors.Join(errs...)
}

func (s *DirStore) Close() error { return nil }
