package services_test

import (
	"errors"
	"strings"
	"testing"

	"shivuk/internal/services"
)

func TestWrapIncludesDetailAndMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrValidation, "brands", "remove", "last brand", base)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if got := err.Error(); got != "validation error: brands: remove: last brand: boom" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, services.KindNone},
		{"validation marker", services.Wrap(services.ErrValidation, "brands", "remove", "", nil), services.KindValidation},
		{"busy marker", services.ErrBusy, services.KindBusy},
		{"quota marker", services.Wrap(services.ErrQuota, "gemini", "generate", "", nil), services.KindQuota},
		{"storage marker", services.Wrap(services.ErrStorageQuota, "docstore", "create", "", nil), services.KindStorageQuota},
		{"configuration marker", services.ErrConfiguration, services.KindConfiguration},
		{"status code text", errors.New("Error 429: Too Many Requests"), services.KindQuota},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), services.KindQuota},
		{"quota text", errors.New("You exceeded your current Quota"), services.KindQuota},
		{"api key text", errors.New("API key not valid. Please pass a valid API key."), services.KindConfiguration},
		{"document too large", errors.New("document exceeds the maximum allowed size"), services.KindStorageQuota},
		{"other", errors.New("connection reset"), services.KindTransient},
		{"transient marker with quota-like title", services.Wrap(services.ErrTransient, "library", "add item", "429 quota tips", errors.New("disk I/O error")), services.KindTransient},
		{"transient marker with size-like id", services.Wrap(services.ErrTransient, "brands", "remove", "too large", nil), services.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestUserMessagesAreDistinct(t *testing.T) {
	quota := services.UserMessage(services.ErrQuota)
	storage := services.UserMessage(services.ErrStorageQuota)
	generic := services.UserMessage(errors.New("connection reset"))
	config := services.UserMessage(services.ErrConfiguration)

	seen := map[string]bool{}
	for _, msg := range []string{quota, storage, generic, config} {
		if msg == "" {
			t.Fatal("expected non-empty message")
		}
		if seen[msg] {
			t.Fatalf("duplicate user message %q", msg)
		}
		seen[msg] = true
	}
	if !strings.Contains(storage, "Reduce the image size") {
		t.Fatalf("expected storage guidance, got %q", storage)
	}
}

func TestUserMessageTruncatesGenericDetail(t *testing.T) {
	msg := services.UserMessage(errors.New(strings.Repeat("x", 400)))
	if !strings.HasSuffix(msg, "...") {
		t.Fatalf("expected truncated message, got %q", msg)
	}
	if len(msg) > len("Generation failed: ")+150+3 {
		t.Fatalf("message not truncated: %d", len(msg))
	}
}

func TestUserMessageValidationStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "", "", "at least one brand is required", nil)
	if got := services.UserMessage(err); got != "at least one brand is required" {
		t.Fatalf("unexpected validation message: %q", got)
	}
}
