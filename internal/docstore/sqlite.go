package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shivuk/internal/config"
	"shivuk/internal/logging"
	"shivuk/internal/services"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Options configures a SQLiteStore.
type Options struct {
	// MaxDocumentBytes rejects encoded documents above this size. Zero disables the check.
	MaxDocumentBytes int
	// WatchExternal re-emits snapshots when another process writes the database.
	WatchExternal bool
	Logger        *slog.Logger
}

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	maxBytes int
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup

	watcher *watcher
}

// OpenFromConfig opens the document database under the configured data directory.
func OpenFromConfig(cfg *config.Config, logger *slog.Logger) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return Open(cfg.DocumentStorePath(), Options{
		MaxDocumentBytes: cfg.Store.MaxDocumentBytes,
		WatchExternal:    cfg.Store.WatchExternalChanges,
		Logger:           logger,
	})
}

// Open initializes or connects to the document database at path.
func Open(path string, opts Options) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes in-process writers; other processes rely on busy_timeout.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{
		db:       db,
		path:     path,
		maxBytes: opts.MaxDocumentBytes,
		logger:   logging.NewComponentLogger(opts.Logger, "docstore"),
		now:      time.Now,
		subs:     make(map[*subscription]struct{}),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.WatchExternal {
		w, err := newWatcher(path, store.notifyAll, store.logger)
		if err != nil {
			logging.WarnWithContext(store.logger, "external change watcher unavailable", "store_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits"),
				logging.String(logging.FieldImpact, "changes from other processes appear after the next local write"),
			)
		} else {
			store.watcher = w
		}
	}

	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close stops every subscription and closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
	return s.db.Close()
}

// Create inserts a new document with a store-assigned id.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields any) (string, error) {
	ctx = ensureContext(ctx)
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "docstore", "create", "encode document", err)
	}
	if err := s.checkSize(data); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := s.now().UnixMilli()
	if err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, string(data), now, now,
		)
		return execErr
	}); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	s.notify(collection)
	return id, nil
}

// Update merges fields into the top level of an existing document. Nil values
// are stored as JSON null rather than removing the key.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	ctx = ensureContext(ctx)
	if err := validateCollection(collection); err != nil {
		return err
	}
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "docstore", "update", fmt.Sprintf("%s/%s", collection, id), nil)
		}
		if err != nil {
			return err
		}

		merged := map[string]json.RawMessage{}
		if err := json.Unmarshal([]byte(raw), &merged); err != nil {
			return fmt.Errorf("decode stored document: %w", err)
		}
		for key, value := range fields {
			encoded, err := json.Marshal(value)
			if err != nil {
				return services.Wrap(services.ErrValidation, "docstore", "update", "encode field "+key, err)
			}
			merged[key] = encoded
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode merged document: %w", err)
		}
		if err := s.checkSize(data); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			string(data), s.now().UnixMilli(), collection, id,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.notify(collection)
	return nil
}

// Delete removes one document. Deleting a missing document succeeds.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	ctx = ensureContext(ctx)
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
		return execErr
	}); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.notify(collection)
	return nil
}

// DeleteMany removes the given documents in one transaction and returns how
// many existed.
func (s *SQLiteStore) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	ctx = ensureContext(ctx)
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int
	err := retryOnBusy(ctx, func() error {
		deleted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, collection, id)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				deleted += int(n)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	s.notify(collection)
	return deleted, nil
}

// List returns the current ordered document set of a collection.
func (s *SQLiteStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	ctx = ensureContext(ctx)
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	query := `SELECT id, data FROM documents WHERE collection = ? ORDER BY `
	args := []any{collection}
	if q.OrderBy != "" {
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		query += "json_extract(data, ?) " + direction + ", "
		args = append(args, "$."+q.OrderBy)
	}
	query += "seq ASC"

	var docs []Document
	err := retryOnBusy(ctx, func() error {
		docs = docs[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id   string
				data string
			)
			if err := rows.Scan(&id, &data); err != nil {
				return err
			}
			docs = append(docs, Document{ID: id, Data: json.RawMessage(data)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

func (s *SQLiteStore) checkSize(data []byte) error {
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return fmt.Errorf("%w (%d > %d bytes)", ErrDocumentTooLarge, len(data), s.maxBytes)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
