// Package prefs is a lightweight scalar cache kept outside the document
// store. It holds values that must be available before a store
// subscription delivers its first snapshot, such as the active brand
// selection.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"shivuk/internal/logging"
)

// Cache provides process-safe access to a JSON file of string values.
// Reads go to disk so values written by other processes are observed.
// With an empty path the cache keeps values in memory only.
type Cache struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu     sync.Mutex
	memory map[string]string
}

// New returns a cache backed by path.
func New(path string, logger *slog.Logger) *Cache {
	c := &Cache{
		path:   path,
		logger: logging.NewComponentLogger(logger, "prefs"),
		memory: make(map[string]string),
	}
	if path != "" {
		c.lock = flock.New(path + ".lock")
	}
	return c
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		value, ok := c.memory[key]
		return value, ok
	}
	values, err := c.read()
	if err != nil {
		logging.WarnWithContext(c.logger, "preference cache unreadable", "prefs_load_failed",
			logging.Error(err),
			logging.String("path", c.path),
			logging.String(logging.FieldErrorHint, "delete the file to reset preferences"),
			logging.String(logging.FieldImpact, "cached selections fall back to defaults"),
		)
		value, ok := c.memory[key]
		return value, ok
	}
	value, ok := values[key]
	return value, ok
}

// Set stores value under key. An empty value removes the key.
func (c *Cache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == "" {
		delete(c.memory, key)
	} else {
		c.memory[key] = value
	}
	if c.path == "" {
		return nil
	}

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock preferences: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	values, err := c.read()
	if err != nil {
		values = map[string]string{}
	}
	if value == "" {
		delete(values, key)
	} else {
		values[key] = value
	}
	return c.write(values)
}

func (c *Cache) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return values, nil
}

func (c *Cache) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
