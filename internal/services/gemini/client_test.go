package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shivuk/internal/dataurl"
	"shivuk/internal/services"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func textResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"groundingMetadata": map[string]any{
					"groundingChunks": []any{
						map[string]any{"web": map[string]any{"uri": "https://example.com/a", "title": "Example"}},
						map[string]any{"web": map[string]any{"uri": "", "title": "missing uri"}},
					},
				},
			},
		},
	}
}

func imageResponse() map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role": "model",
					"parts": []any{map[string]any{
						"inlineData": map[string]any{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(pngBytes),
						},
					}},
				},
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, key string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:   key,
		BaseURL:  server.URL,
		VideoDir: t.TempDir(),
	}, WithHTTPClient(server.Client()), WithRetryMaxAttempts(1))
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestMissingKeyFailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, "")

	ctx := context.Background()
	image := dataurl.Encode("image/png", pngBytes)
	calls := map[string]func() error{
		"content": func() error { _, err := client.GenerateContent(ctx, "x", ""); return err },
		"caption": func() error { _, err := client.GenerateCaption(ctx, image, ""); return err },
		"edit":    func() error { _, err := client.EditImage(ctx, image, "brighter"); return err },
		"video":   func() error { _, err := client.GenerateVideo(ctx, "x", ""); return err },
		"health":  func() error { return client.HealthCheck(ctx) },
		"video caption": func() error {
			_, err := client.GenerateVideoCaption(ctx, "x")
			return err
		},
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestGenerateContent(t *testing.T) {
	var imagePrompt atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "gemini-3-pro-preview"):
			writeJSON(t, w, textResponse(`{"title":"T","content":"C","hashtags":"#x","imagePrompt":"P"}`))
		case strings.Contains(r.URL.Path, "gemini-2.5-flash-image"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			raw, _ := json.Marshal(body)
			imagePrompt.Store(string(raw))
			writeJSON(t, w, imageResponse())
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, "test-key")

	got, err := client.GenerateContent(context.Background(), "Launch sale", "")
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if got.Title != "T" || got.Content != "C" || got.Hashtags != "#x" || got.ImagePrompt != "P" {
		t.Fatalf("unexpected content %+v", got)
	}
	if !strings.HasPrefix(got.GeneratedImageURL, "data:image/png;base64,") {
		t.Fatalf("expected inline image, got %q", got.GeneratedImageURL)
	}
	if len(got.Sources) != 1 || got.Sources[0].URI != "https://example.com/a" {
		t.Fatalf("unexpected sources %+v", got.Sources)
	}
	if body, _ := imagePrompt.Load().(string); !strings.Contains(body, "luxury style: P") {
		t.Fatalf("image prompt not derived from content: %s", body)
	}
}

func TestGenerateContentQuota(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	}, "test-key")

	_, err := client.GenerateContent(context.Background(), "x", "")
	if err == nil {
		t.Fatal("expected quota error")
	}
	if !services.IsQuota(err) {
		t.Fatalf("expected quota classification, got %v", err)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		writeJSON(t, w, textResponse("Watch this! #launch"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL},
		WithHTTPClient(server.Client()),
		WithRetryMaxAttempts(2),
		WithSleeper(func(time.Duration) {}),
	)
	caption, err := client.GenerateVideoCaption(context.Background(), "sunset")
	if err != nil {
		t.Fatalf("GenerateVideoCaption failed: %v", err)
	}
	if caption != "Watch this! #launch" {
		t.Fatalf("unexpected caption %q", caption)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
}

func TestGenerateCaptionEchoesImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, textResponse("```json\n{\"title\":\"Cap\",\"content\":\"Body\",\"hashtags\":\"#a\",\"imagePrompt\":\"\"}\n```"))
	}, "test-key")

	image := dataurl.Encode("image/png", pngBytes)
	got, err := client.GenerateCaption(context.Background(), image, "summer launch")
	if err != nil {
		t.Fatalf("GenerateCaption failed: %v", err)
	}
	if got.GeneratedImageURL != image {
		t.Fatalf("expected the input image echoed back")
	}
	if got.Title != "Cap" || got.ImagePrompt != "Original image" {
		t.Fatalf("unexpected caption %+v", got)
	}
}

func TestEditImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, imageResponse())
	}, "test-key")

	edited, err := client.EditImage(context.Background(), dataurl.Encode("image/jpeg", []byte{1}), "remove the background")
	if err != nil {
		t.Fatalf("EditImage failed: %v", err)
	}
	raw, mediaType, err := dataurl.Decode(edited)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if mediaType != "image/png" || string(raw) != string(pngBytes) {
		t.Fatalf("unexpected edited image %s %v", mediaType, raw)
	}
}

func TestEditImageWithoutImageInResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, textResponse("I cannot do that"))
	}, "test-key")

	_, err := client.EditImage(context.Background(), dataurl.Encode("image/png", pngBytes), "x")
	if err == nil {
		t.Fatal("expected an error")
	}
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestDownloadVideo(t *testing.T) {
	var gotKey, gotQueryKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotQueryKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	client := NewClient(Config{APIKey: "secret", VideoDir: dir}, WithHTTPClient(server.Client()))
	link, err := client.downloadVideo(context.Background(), server.URL+"/files/abc:download?alt=media")
	if err != nil {
		t.Fatalf("downloadVideo failed: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotQueryKey != "" {
		t.Fatalf("expected no api key in the query, got %q", gotQueryKey)
	}
	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme != "file" {
		t.Fatalf("expected file URL, got %q", link)
	}
	data, err := os.ReadFile(parsed.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Fatalf("unexpected video contents %q", data)
	}
}

func TestDownloadVideoExpiredLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer server.Close()

	dir := t.TempDir()
	client := NewClient(Config{APIKey: "secret", VideoDir: dir}, WithHTTPClient(server.Client()))
	if _, err := client.downloadVideo(context.Background(), server.URL+"/v"); err == nil {
		t.Fatal("expected download failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no partial files, found %d", len(entries))
	}
}

func TestDownloadVideoTransportErrorOmitsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	uri := server.URL + "/v?alt=media"
	server.Close()

	client := NewClient(Config{APIKey: "SECRET-KEY-123", VideoDir: t.TempDir()})
	_, err := client.downloadVideo(context.Background(), uri)
	if err == nil {
		t.Fatal("expected download failure")
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Fatalf("error leaks the api key: %v", err)
	}
	if msg := services.UserMessage(err); strings.Contains(msg, "SECRET-KEY-123") {
		t.Fatalf("user message leaks the api key: %q", msg)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "plain", raw: `{"title":"a"}`},
		{name: "fenced", raw: "```json\n{\"title\":\"a\"}\n```"},
		{name: "bare fence", raw: "```\n{\"title\":\"a\"}\n```"},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "garbage", raw: "not json", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out Content
			err := decodeJSON(tc.raw, &out)
			if tc.wantErr != (err != nil) {
				t.Fatalf("decodeJSON error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && out.Title != "a" {
				t.Fatalf("unexpected title %q", out.Title)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.Contains(r.URL.Path, "models/") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, map[string]any{"name": "models/test", "displayName": "Test"})
	}, "key")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestHealthCheckRejectedKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}, "bad")
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
