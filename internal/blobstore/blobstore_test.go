package blobstore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shivuk/internal/blobstore"
	"shivuk/internal/dataurl"
	"shivuk/internal/services"
)

func openMemory(t *testing.T, baseURL string) *blobstore.Store {
	t.Helper()
	store, err := blobstore.Open(blobstore.Options{InMemory: true, BaseURL: baseURL})
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUploadReturnsDurableURL(t *testing.T) {
	store := openMemory(t, "http://127.0.0.1:7488/blobs/")
	encoded := dataurl.Encode("image/jpeg", []byte("jpeg-bytes"))

	got, err := store.Upload(context.Background(), "library/u1/1700000000000-ab12.jpg", encoded)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	want := "http://127.0.0.1:7488/blobs/library/u1/1700000000000-ab12.jpg"
	if got != want {
		t.Fatalf("unexpected url: got %q want %q", got, want)
	}
	if dataurl.IsEncoded(got) {
		t.Fatal("returned URL must not be inline-encoded")
	}

	key, ok := store.Resolve(got)
	if !ok {
		t.Fatalf("Resolve(%q) failed", got)
	}
	raw, mediaType, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(raw) != "jpeg-bytes" || mediaType != "image/jpeg" {
		t.Fatalf("unexpected blob: %q %q", raw, mediaType)
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	store := openMemory(t, "http://localhost/blobs")
	ctx := context.Background()

	if _, err := store.Upload(ctx, "logos/a.png", "https://example.com/a.png"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for non data URL, got %v", err)
	}
	if _, err := store.Upload(ctx, "../escape.png", dataurl.Encode("image/png", []byte("x"))); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for traversal, got %v", err)
	}
	if _, err := store.Upload(ctx, "", dataurl.Encode("image/png", []byte("x"))); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty hint, got %v", err)
	}
}

func TestGetMissingBlob(t *testing.T) {
	store := openMemory(t, "http://localhost/blobs")
	if _, _, err := store.Get("nope.png"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandlerServesUploadedBlob(t *testing.T) {
	store := openMemory(t, "http://example.test/blobs")
	url, err := store.Upload(context.Background(), "brands/u1/logo.png", dataurl.Encode("image/png", []byte("png")))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	srv := httptest.NewServer(store.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + strings.TrimPrefix(url, "http://example.test"))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "png" {
		t.Fatalf("unexpected body: %q", body)
	}

	missing, err := http.Get(srv.URL + "/blobs/brands/u1/missing.png")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestUniqueNameIsDistinctPerCall(t *testing.T) {
	encoded := dataurl.Encode("image/webp", []byte("x"))
	now := time.UnixMilli(1700000000000)
	a := blobstore.UniqueName("library/u1", "Café Logo", encoded, now)
	b := blobstore.UniqueName("library/u1", "Café Logo", encoded, now)
	if a == b {
		t.Fatalf("expected distinct names, got %q twice", a)
	}
	if !strings.HasPrefix(a, "library/u1/1700000000000-cafe-logo-") || !strings.HasSuffix(a, ".webp") {
		t.Fatalf("unexpected name shape: %q", a)
	}
}
