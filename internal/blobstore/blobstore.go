// Package blobstore stores promoted images and serves them back at stable
// retrieval URLs.
//
// Uploads accept inline data URLs, persist the decoded bytes in a Badger
// key-value store under the caller's path hint, and return
// "<base_url>/<path hint>". The same store backs an HTTP handler so the
// returned URLs resolve while `shivuk serve` is running.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"shivuk/internal/config"
	"shivuk/internal/dataurl"
	"shivuk/internal/logging"
	"shivuk/internal/services"
)

// Uploader is the blob store contract the registries depend on.
type Uploader interface {
	Upload(ctx context.Context, pathHint, encoded string) (string, error)
}

// ErrNotFound reports a fetch for a path that was never uploaded.
var ErrNotFound = fmt.Errorf("%w: blob", services.ErrNotFound)

const (
	dataPrefix = "data/"
	typePrefix = "type/"
)

// Options configures a Store.
type Options struct {
	Dir      string
	InMemory bool
	BaseURL  string
	Logger   *slog.Logger
}

// Store is a Badger-backed blob store.
type Store struct {
	db      *badger.DB
	baseURL string
	logger  *slog.Logger
}

// OpenFromConfig opens the blob store under the configured data directory.
func OpenFromConfig(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	return Open(Options{Dir: cfg.BlobStoreDir(), BaseURL: cfg.Blobs.BaseURL, Logger: logger})
}

// Open opens or creates the blob store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).WithLoggingLevel(badger.ERROR)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &Store{
		db:      db,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logging.NewComponentLogger(opts.Logger, "blobstore"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upload decodes an inline data URL, stores it at pathHint, and returns the
// durable retrieval URL. An existing blob at the same path is overwritten.
func (s *Store) Upload(ctx context.Context, pathHint, encoded string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanPath(pathHint)
	if err != nil {
		return "", err
	}
	raw, mediaType, err := dataurl.Decode(encoded)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "blobstore", "upload", key, err)
	}
	if err := s.Put(key, mediaType, raw); err != nil {
		return "", err
	}
	s.logger.Debug("blob stored",
		logging.String("path", key),
		logging.String("media_type", mediaType),
		logging.Int("bytes", len(raw)),
	)
	return s.URL(key), nil
}

// Put stores raw bytes at key.
func (s *Store) Put(key, mediaType string, raw []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+key), raw); err != nil {
			return err
		}
		return txn.Set([]byte(typePrefix+key), []byte(mediaType))
	})
	if err != nil {
		return fmt.Errorf("store blob %s: %w", key, err)
	}
	return nil
}

// Get returns the bytes and media type stored at key.
func (s *Store) Get(key string) ([]byte, string, error) {
	key, err := cleanPath(key)
	if err != nil {
		return nil, "", err
	}
	var (
		raw       []byte
		mediaType string
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + key))
		if err != nil {
			return err
		}
		if raw, err = item.ValueCopy(nil); err != nil {
			return err
		}
		typeItem, err := txn.Get([]byte(typePrefix + key))
		if err != nil {
			return err
		}
		return typeItem.Value(func(val []byte) error {
			mediaType = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read blob %s: %w", key, err)
	}
	return raw, mediaType, nil
}

// Resolve maps a retrieval URL produced by this store back to its key.
func (s *Store) Resolve(rawURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return "", false
	}
	return key, true
}

// URL returns the retrieval URL for key.
func (s *Store) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/")
}

func cleanPath(hint string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(hint), "/")
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "path", "path hint is required", nil)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", services.Wrap(services.ErrValidation, "blobstore", "path", fmt.Sprintf("invalid path hint %q", hint), nil)
		}
	}
	return path.Clean(trimmed), nil
}
