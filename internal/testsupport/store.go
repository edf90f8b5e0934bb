package testsupport

import (
	"context"
	"testing"

	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/source"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedEntries records entries as a complete listing.
func SeedEntries(t testing.TB, store *catalog.Store, entries ...source.Entry) catalog.SyncResult {
	t.Helper()

	result, err := store.SyncSources(context.Background(), entries)
	if err != nil {
		t.Fatalf("store.SyncSources: %v", err)
	}
	return result
}

// MustIdentity persists an identity for tests.
func MustIdentity(t testing.TB, store *catalog.Store, input catalog.IdentityInput) catalog.Identity {
	t.Helper()

	identity, err := store.UpsertIdentity(context.Background(), input)
	if err != nil {
		t.Fatalf("store.UpsertIdentity: %v", err)
	}
	return identity
}
