package main

import (
	"io"
	"strings"
	"testing"

	"shivuk/internal/preflight"
)

func TestRenderCheckFailureWithoutColor(t *testing.T) {
	got := renderCheck(preflight.Result{Name: "Identity", Detail: "no user_id configured"}, false)
	if !strings.HasPrefix(got, "Identity ") {
		t.Fatalf("expected name first, got %q", got)
	}
	if !strings.HasSuffix(got, "FAIL  no user_id configured") {
		t.Fatalf("expected verdict and detail, got %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("expected no escape codes, got %q", got)
	}
}

func TestRenderCheckColorsVerdictOnly(t *testing.T) {
	got := renderCheck(preflight.Result{Name: "Generation API", Passed: true, Detail: "API reachable"}, true)
	if !strings.Contains(got, colorPass+"pass"+colorReset) {
		t.Fatalf("expected colored verdict, got %q", got)
	}
	if !strings.HasSuffix(got, "API reachable") {
		t.Fatalf("expected plain detail, got %q", got)
	}
}

func TestRenderCheckWithoutDetail(t *testing.T) {
	got := renderCheck(preflight.Result{Name: "Blobs", Passed: true, Detail: "  "}, false)
	if !strings.HasSuffix(got, "pass") {
		t.Fatalf("expected bare verdict, got %q", got)
	}
}

func TestRenderCheckSummary(t *testing.T) {
	results := []preflight.Result{{Name: "a", Passed: true}, {Name: "b"}}
	if got := renderCheckSummary(results, false, false); got != "2 checks, 1 failed" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := renderCheckSummary(results, true, false); !strings.Contains(got, "not contacted") {
		t.Fatalf("expected offline note, got %q", got)
	}
}

func TestIsTerminalNonFile(t *testing.T) {
	if isTerminal(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
