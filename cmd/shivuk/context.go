package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
	"shivuk/internal/config"
	"shivuk/internal/logging"
)

type commandContext struct {
	configFlag *string
	appOpts    app.Options

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, opts app.Options) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		appOpts:    opts,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// cliLogger writes only to the log file so command output stays clean.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	path := cfg.LogFilePath()
	if path == "" {
		return logging.NewNop(), nil
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "json",
		OutputPaths: []string{path},
	})
}

// withApp opens the component graph for the duration of fn.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, cfg, logger, c.appOpts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withIdentity is withApp for commands that read or write user data.
func (c *commandContext) withIdentity(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.RequireIdentity(); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
