package testsupport

import (
	"path/filepath"
	"testing"

	"shivuk/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Progress intervals are shortened so generation tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.VideoDir = filepath.Join(base, "videos")
	cfgVal.Identity.UserID = "test-user"
	cfgVal.Store.WatchExternalChanges = false
	cfgVal.Blobs.BaseURL = "http://blobs.test/blobs"
	cfgVal.Generation.ProgressIntervalMS = 5
	cfgVal.Generation.VideoProgressIntervalMS = 5
	cfgVal.Generation.VideoPollIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIKey sets the generation API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.APIKey = key
	}
}

// WithMaxDocumentBytes lowers the document size ceiling.
func WithMaxDocumentBytes(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.MaxDocumentBytes = n
	}
}

// WithExternalWatch enables the cross-process change watcher.
func WithExternalWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.WatchExternalChanges = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithUserID overrides the configured identity; an empty value logs out.
func WithUserID(uid string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Identity.UserID = uid
	}
}
