package testsupport

import (
	"testing"

	"shivuk/internal/blobstore"
	"shivuk/internal/config"
	"shivuk/internal/docstore"
)

// MustOpenStore opens a document store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *docstore.SQLiteStore {
	t.Helper()

	store, err := docstore.OpenFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("docstore.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenBlobs opens an in-memory blob store using the configured base URL.
func MustOpenBlobs(t testing.TB, cfg *config.Config) *blobstore.Store {
	t.Helper()

	blobs, err := blobstore.Open(blobstore.Options{InMemory: true, BaseURL: cfg.Blobs.BaseURL})
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = blobs.Close()
	})
	return blobs
}
