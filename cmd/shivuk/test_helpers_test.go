package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shivuk/internal/app"
	"shivuk/internal/config"
	"shivuk/internal/dataurl"
	"shivuk/internal/services/gemini"
	"shivuk/internal/testsupport"
)

type stubGenerator struct{}

func (stubGenerator) GenerateContent(context.Context, string, string) (gemini.Content, error) {
	return gemini.Content{
		Title:             "Launch week",
		Content:           "Everything ships on Friday.",
		Hashtags:          "#launch",
		ImagePrompt:       "rocket on a pad",
		GeneratedImageURL: dataurl.Encode("image/png", []byte{0x89, 'P', 'N', 'G'}),
	}, nil
}

func (stubGenerator) GenerateCaption(_ context.Context, image, _ string) (gemini.Content, error) {
	return gemini.Content{Title: "Caption", Content: "A caption", GeneratedImageURL: image}, nil
}

func (stubGenerator) EditImage(_ context.Context, image, _ string) (string, error) {
	return image, nil
}

func (stubGenerator) GenerateVideo(context.Context, string, string) (string, error) {
	return "file:///tmp/clip.mp4", nil
}

func (stubGenerator) GenerateVideoCaption(context.Context, string) (string, error) {
	return "clip caption", nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("SHIVUK_USER_ID", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommandWithOptions(app.Options{
		Generator:     stubGenerator{},
		InMemoryBlobs: true,
		ReadyTimeout:  5 * time.Second,
	})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
