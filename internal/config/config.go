package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	VideoDir string `toml:"video_dir"`
}

// Identity selects the user namespace every collection is scoped under.
type Identity struct {
	UserID string `toml:"user_id"`
}

// Store contains configuration for the document store.
type Store struct {
	MaxDocumentBytes     int  `toml:"max_document_bytes"`
	WatchExternalChanges bool `toml:"watch_external_changes"`
}

// Blobs contains configuration for the blob store and its retrieval endpoint.
type Blobs struct {
	BaseURL string `toml:"base_url"`
	Bind    string `toml:"bind"`
}

// Generation contains configuration for the generative content service.
type Generation struct {
	APIKey                   string `toml:"api_key"`
	TextModel                string `toml:"text_model"`
	ImageModel               string `toml:"image_model"`
	CaptionModel             string `toml:"caption_model"`
	VideoModel               string `toml:"video_model"`
	Language                 string `toml:"language"`
	DefaultStyle             string `toml:"default_style"`
	ImageAspectRatio         string `toml:"image_aspect_ratio"`
	VideoResolution          string `toml:"video_resolution"`
	VideoAspectRatio         string `toml:"video_aspect_ratio"`
	VideoPollIntervalSeconds int    `toml:"video_poll_interval_seconds"`
	ProgressIntervalMS       int    `toml:"progress_interval_ms"`
	VideoProgressIntervalMS  int    `toml:"video_progress_interval_ms"`
}

// Brands contains the defaults stamped on automatically and explicitly created brands.
type Brands struct {
	DefaultName string `toml:"default_name"`
	NewName     string `toml:"new_name"`
	Primary     string `toml:"primary"`
	Secondary   string `toml:"secondary"`
	Accent      string `toml:"accent"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Generation     bool   `toml:"generation"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shivuk.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and downloaded video directories
//   - Identity: the user namespace for brands, library, and folders
//   - Store: document size ceiling and cross-process change watching
//   - Blobs: durable image URLs and the HTTP bind serving them
//   - Generation: credentials, models, and progress pacing
//   - Brands: default brand name and color triple
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Identity      Identity      `toml:"identity"`
	Store         Store         `toml:"store"`
	Blobs         Blobs         `toml:"blobs"`
	Generation    Generation    `toml:"generation"`
	Brands        Brands        `toml:"brands"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shivuk/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shivuk.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log, and video directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.VideoDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DocumentStorePath is the SQLite database holding brands, library items, and folders.
func (c *Config) DocumentStorePath() string {
	return filepath.Join(c.Paths.DataDir, "documents.db")
}

// BlobStoreDir is the directory backing the blob store.
func (c *Config) BlobStoreDir() string {
	return filepath.Join(c.Paths.DataDir, "blobs")
}

// PrefsPath is the scalar preference cache (active brand selection).
func (c *Config) PrefsPath() string {
	return filepath.Join(c.Paths.DataDir, "prefs.json")
}

// LogFilePath is the shared log file written by every shivuk process. Empty
// when no log directory is configured.
func (c *Config) LogFilePath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "shivuk.log")
}

// ProgressInterval returns the pipeline step interval for the given generation mode.
func (c *Config) ProgressInterval(video bool) time.Duration {
	if video {
		return time.Duration(c.Generation.VideoProgressIntervalMS) * time.Millisecond
	}
	return time.Duration(c.Generation.ProgressIntervalMS) * time.Millisecond
}

// VideoPollInterval returns how often long-running video jobs are polled.
func (c *Config) VideoPollInterval() time.Duration {
	return time.Duration(c.Generation.VideoPollIntervalSeconds) * time.Second
}

// HasGenerationKey reports whether a generation credential is configured.
func (c *Config) HasGenerationKey() bool {
	return strings.TrimSpace(c.Generation.APIKey) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.Generation.APIKey != "" {
		clone.Generation.APIKey = "********"
	}
	data, err := toml.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
