package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate ensures the configuration is usable.
//
// A missing generation key is not a validation failure: registries and
// library commands work without one, and generation reports it when invoked.
func (c *Config) Validate() error {
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateBlobs(); err != nil {
		return err
	}
	if err := c.validateBrands(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if strings.ContainsAny(c.Identity.UserID, "/\\") {
		return fmt.Errorf("identity.user_id %q must not contain path separators", c.Identity.UserID)
	}
	return nil
}

func (c *Config) validateBlobs() error {
	parsed, err := url.Parse(c.Blobs.BaseURL)
	if err != nil {
		return fmt.Errorf("blobs.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("blobs.base_url must be an http(s) URL, got %q", c.Blobs.BaseURL)
	}
	return nil
}

func (c *Config) validateBrands() error {
	for name, value := range map[string]string{
		"brands.primary":   c.Brands.Primary,
		"brands.secondary": c.Brands.Secondary,
		"brands.accent":    c.Brands.Accent,
	} {
		if !hexColorPattern.MatchString(value) {
			return fmt.Errorf("%s must be a #RRGGBB color, got %q", name, value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.New("logging.format must be console or json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
