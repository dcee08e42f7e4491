// Package app assembles the stores, registries, and generation session from
// a loaded config. The CLI and the MCP server share one App per process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shivuk/internal/blobstore"
	"shivuk/internal/brands"
	"shivuk/internal/config"
	"shivuk/internal/credentials"
	"shivuk/internal/docstore"
	"shivuk/internal/generation"
	"shivuk/internal/library"
	"shivuk/internal/logging"
	"shivuk/internal/notifications"
	"shivuk/internal/prefs"
	"shivuk/internal/services"
	"shivuk/internal/services/gemini"
)

const defaultReadyTimeout = 10 * time.Second

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *docstore.SQLiteStore
	Blobs     *blobstore.Store
	Prefs     *prefs.Cache
	Brands    *brands.Registry
	Library   *library.Registry
	Generator *gemini.Client
	Notifier  notifications.Service
	Session   *generation.Session
}

// Options tunes Open.
type Options struct {
	// Generator overrides the gemini client built from config.
	Generator generation.Generator
	// Credentials overrides the static provider built from config.
	Credentials credentials.Provider
	// InMemoryBlobs keeps blob bytes in memory; used by tests.
	InMemoryBlobs bool
	// ReadyTimeout bounds the wait for the first snapshots.
	ReadyTimeout time.Duration
}

// Open builds the component graph and signs in as the configured identity.
// When no identity is configured the registries stay logged out and every
// mutation is a no-op.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := docstore.OpenFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	blobOpts := blobstore.Options{Dir: cfg.BlobStoreDir(), BaseURL: cfg.Blobs.BaseURL, Logger: logger}
	if opts.InMemoryBlobs {
		blobOpts = blobstore.Options{InMemory: true, BaseURL: cfg.Blobs.BaseURL, Logger: logger}
	}
	blobs, err := blobstore.Open(blobOpts)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store (is `shivuk serve` already running?): %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Blobs:    blobs,
		Prefs:    prefs.New(cfg.PrefsPath(), logger),
		Notifier: notifications.NewService(cfg),
	}
	a.Brands = brands.New(brands.Options{
		Store:    store,
		Blobs:    blobs,
		Prefs:    a.Prefs,
		Defaults: cfg.Brands,
		Logger:   logger,
	})
	a.Library = library.New(library.Options{
		Store:  store,
		Blobs:  blobs,
		Logger: logger,
	})

	generator := opts.Generator
	if generator == nil {
		a.Generator = gemini.NewFromConfig(cfg, logger)
		generator = a.Generator
	}
	creds := opts.Credentials
	if creds == nil {
		creds = credentials.Static{Key: cfg.Generation.APIKey}
	}

	sessionOpts := generation.OptionsFromConfig(cfg)
	sessionOpts.Generator = generator
	sessionOpts.Library = a.Library
	sessionOpts.Brands = a.Brands
	sessionOpts.Notifier = a.Notifier
	sessionOpts.Credentials = creds
	sessionOpts.Logger = logger
	a.Session = generation.New(sessionOpts)

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if err := a.SignIn(ctx, cfg.Identity.UserID, timeout); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// SignIn switches both registries to uid and waits for their first snapshots.
func (a *App) SignIn(ctx context.Context, uid string, timeout time.Duration) error {
	if err := a.Brands.SetIdentity(ctx, uid); err != nil {
		return err
	}
	if err := a.Library.SetIdentity(ctx, uid); err != nil {
		return err
	}
	if uid == "" {
		a.Logger.Warn("no identity configured; brand and library operations are disabled",
			logging.String(logging.FieldEventType, "identity_missing"),
			logging.String(logging.FieldErrorHint, "set identity.user_id or SHIVUK_USER_ID"),
		)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.Brands.WaitReady(waitCtx); err != nil {
		return fmt.Errorf("load brands: %w", err)
	}
	if err := a.Library.WaitReady(waitCtx); err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	return nil
}

// RequireIdentity fails with services.ErrNoIdentity when the app is logged out.
func (a *App) RequireIdentity() error {
	if a.Config.Identity.UserID == "" {
		return services.Wrap(services.ErrNoIdentity, "app", "", "set identity.user_id or SHIVUK_USER_ID", nil)
	}
	return nil
}

// Close releases subscriptions and stores in reverse order of creation.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Library != nil {
		a.Library.Close()
	}
	if a.Brands != nil {
		a.Brands.Close()
	}
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			a.Logger.Warn("close blob store", logging.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("close document store", logging.Error(err))
		}
	}
}
