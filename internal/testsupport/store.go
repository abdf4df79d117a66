package testsupport

import (
	"context"
	"testing"

	"mimic/internal/config"
	"mimic/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewDraftClone creates a draft clone record for tests using the provided store.
func NewDraftClone(t testing.TB, store *registry.Store, ownerID, name string) *registry.CloneRecord {
	t.Helper()

	record, err := store.NewClone(context.Background(), ownerID, name, "", "", registry.DefaultSubmitOptions())
	if err != nil {
		t.Fatalf("store.NewClone: %v", err)
	}
	return record
}
