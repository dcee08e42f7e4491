package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIdentity()
	c.normalizeStore()
	c.normalizeBlobs()
	c.normalizeGeneration()
	c.normalizeBrands()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.VideoDir) == "" {
		c.Paths.VideoDir = defaultVideoDir
	}
	if c.Paths.VideoDir, err = expandPath(c.Paths.VideoDir); err != nil {
		return fmt.Errorf("paths.video_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIdentity() {
	if value, ok := os.LookupEnv("SHIVUK_USER_ID"); ok && strings.TrimSpace(value) != "" {
		c.Identity.UserID = value
	}
	c.Identity.UserID = strings.TrimSpace(c.Identity.UserID)
}

func (c *Config) normalizeStore() {
	if c.Store.MaxDocumentBytes <= 0 {
		c.Store.MaxDocumentBytes = defaultMaxDocumentBytes
	}
}

func (c *Config) normalizeBlobs() {
	c.Blobs.BaseURL = strings.TrimRight(strings.TrimSpace(c.Blobs.BaseURL), "/")
	if c.Blobs.BaseURL == "" {
		c.Blobs.BaseURL = defaultBlobBaseURL
	}
	c.Blobs.Bind = strings.TrimSpace(c.Blobs.Bind)
	if c.Blobs.Bind == "" {
		c.Blobs.Bind = defaultBlobBind
	}
}

func (c *Config) normalizeGeneration() {
	g := &c.Generation
	if strings.TrimSpace(g.APIKey) == "" {
		for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				g.APIKey = value
				break
			}
		}
	}
	g.APIKey = strings.TrimSpace(g.APIKey)
	g.TextModel = fallback(g.TextModel, defaultTextModel)
	g.ImageModel = fallback(g.ImageModel, defaultImageModel)
	g.CaptionModel = fallback(g.CaptionModel, defaultCaptionModel)
	g.VideoModel = fallback(g.VideoModel, defaultVideoModel)
	g.Language = fallback(g.Language, defaultLanguage)
	g.DefaultStyle = fallback(g.DefaultStyle, defaultStyle)
	g.ImageAspectRatio = fallback(g.ImageAspectRatio, defaultImageAspectRatio)
	g.VideoResolution = fallback(g.VideoResolution, defaultVideoResolution)
	g.VideoAspectRatio = fallback(g.VideoAspectRatio, defaultVideoAspectRatio)
	if g.VideoPollIntervalSeconds <= 0 {
		g.VideoPollIntervalSeconds = defaultVideoPollIntervalSeconds
	}
	if g.ProgressIntervalMS <= 0 {
		g.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if g.VideoProgressIntervalMS <= 0 {
		g.VideoProgressIntervalMS = defaultVideoProgressIntervalMS
	}
}

func (c *Config) normalizeBrands() {
	b := &c.Brands
	b.DefaultName = fallback(b.DefaultName, defaultBrandName)
	b.NewName = fallback(b.NewName, defaultNewBrandName)
	b.Primary = strings.ToUpper(fallback(b.Primary, defaultPrimaryColor))
	b.Secondary = strings.ToUpper(fallback(b.Secondary, defaultSecondaryColor))
	b.Accent = strings.ToUpper(fallback(b.Accent, defaultAccentColor))
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHIVUK_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}
