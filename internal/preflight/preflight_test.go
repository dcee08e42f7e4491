package preflight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shivuk/internal/config"
	"shivuk/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a 1-byte floor, got: %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, math.MaxUint64)
	if result.Passed {
		t.Fatal("expected failure with an unreachable floor")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected shortfall detail, got %q", result.Detail)
	}
}

func TestCheckFreeSpace_MissingPath(t *testing.T) {
	result := CheckFreeSpace("space", filepath.Join(t.TempDir(), "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckGeneration_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.APIKey = ""
	result := CheckGeneration(context.Background(), &cfg)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	if !strings.Contains(result.Detail, "API key missing") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckIdentity(t *testing.T) {
	cfg := config.Default()
	cfg.Identity.UserID = "  "
	if CheckIdentity(&cfg).Passed {
		t.Fatal("expected failure for blank user id")
	}
	cfg.Identity.UserID = "u1"
	if result := CheckIdentity(&cfg); !result.Passed || result.Detail != "u1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
	if results := RunLocal(nil); results != nil {
		t.Fatal("expected nil local results for nil config")
	}
}

func TestRunLocal_SharedVolume(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.VideoDir = filepath.Join(root, "videos")
	cfg.Identity.UserID = "u1"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	results := RunLocal(&cfg)
	// data dir + data space + video dir + identity
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesGenerationCheck(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.VideoDir = ""
	cfg.Generation.APIKey = ""

	results := RunAll(context.Background(), &cfg)
	last := results[len(results)-1]
	if last.Name != "Generation API" || last.Passed {
		t.Fatalf("expected failing generation check last, got %+v", last)
	}
}

func TestSummarizeGenerationError(t *testing.T) {
	err := services.Wrap(services.ErrQuota, "gemini", "health check", "429", nil)
	if got := summarizeGenerationError(err); got != services.UserMessage(err) {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := summarizeGenerationError(context.DeadlineExceeded); !strings.Contains(got, "timed out") {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{512 << 20, "512.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tc := range tests {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
