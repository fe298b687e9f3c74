package testsupport

import (
	"context"
	"testing"

	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/store"
)

// MustOpenStore opens the configured batch store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SaveBatch builds a pending batch from urls and writes it to st.
func SaveBatch(t testing.TB, st store.Store, name string, urls ...string) *batch.Batch {
	t.Helper()

	b := batch.New("", name, urls, batch.Options{})
	if err := st.Save(context.Background(), b); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return b
}
