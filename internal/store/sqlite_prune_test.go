package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mixtape/internal/batch"
)

func TestSQLitePruneOlderThan(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "batches.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	old := batch.New("", "old", []string{"https://b23.tv/a"}, batch.Options{})
	recent := batch.New("", "recent", []string{"https://b23.tv/b"}, batch.Options{})

	s.now = func() time.Time { return time.Now().AddDate(0, 0, -30) }
	if err := s.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if err := s.Save(ctx, recent); err != nil {
		t.Fatal(err)
	}

	removed, err := s.PruneOlderThan(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if len(removed) != 1 || removed[0] != old.ID {
		t.Fatalf("removed = %v, want [%s]", removed, old.ID)
	}
	if _, err := s.Load(ctx, recent.ID); err != nil {
		t.Fatalf("recent batch pruned: %v", err)
	}
}

func TestSQLiteReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	b := batch.New("", "keep", []string{"https://b23.tv/a"}, batch.Options{})
	if err := s.Save(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	loaded, err := reopened.Load(context.Background(), b.ID)
	if err != nil || loaded.Name != "keep" {
		t.Fatalf("Load after reopen: %v %+v", err, loaded)
	}
}
