package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shivuk/internal/logging"
)

var errStoreClosed = errors.New("document store closed")

const (
	watchQuietPeriod  = 75 * time.Millisecond
	watchPollInterval = time.Second
)

// watcher turns commits to the database by any other connection into
// snapshot refreshes. File events only schedule a check; the commit counter
// reported by PRAGMA data_version decides whether anything changed.
type watcher struct {
	fs      *fsnotify.Watcher
	probe   *sql.DB
	base    string
	onDirt  func()
	logger  *slog.Logger
	version int64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newWatcher(dbPath string, onDirt func(), logger *slog.Logger) (*watcher, error) {
	probe, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open watch connection: %w", err)
	}
	// data_version is only meaningful when read from the same connection.
	probe.SetMaxOpenConns(1)
	probe.SetMaxIdleConns(1)
	if _, err := probe.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = probe.Close()
		return nil, fmt.Errorf("configure watch connection: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = probe.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(dbPath)); err != nil {
		_ = fsw.Close()
		_ = probe.Close()
		return nil, err
	}
	w := &watcher{
		fs:     fsw,
		probe:  probe,
		base:   filepath.Base(dbPath),
		onDirt: onDirt,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if w.version, err = w.dataVersion(); err != nil {
		_ = fsw.Close()
		_ = probe.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer close(w.done)
	quiet := time.NewTimer(watchQuietPeriod)
	quiet.Stop()
	defer quiet.Stop()
	poll := time.NewTicker(watchPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// The shared-memory index changes on reads too; only commits matter.
			if name := filepath.Base(event.Name); name != w.base && name != w.base+"-wal" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				quiet.Reset(watchQuietPeriod)
			}
		case <-quiet.C:
			w.check()
		case <-poll.C:
			w.check()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("store watcher error", logging.Error(err))
		}
	}
}

// check refreshes subscribers when another connection committed since the last check.
func (w *watcher) check() {
	version, err := w.dataVersion()
	if err != nil {
		w.logger.Debug("store data version unavailable", logging.Error(err))
		w.onDirt()
		return
	}
	if version == w.version {
		return
	}
	w.version = version
	w.onDirt()
}

func (w *watcher) dataVersion() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), watchPollInterval)
	defer cancel()
	var version int64
	if err := w.probe.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return version, nil
}

func (w *watcher) Close() {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		_ = w.fs.Close()
		_ = w.probe.Close()
	})
}
