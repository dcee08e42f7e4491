package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shivuk/internal/config"
	"shivuk/internal/services"
)

const userAgent = "Shivuk-Go/0.1.0"

// Service defines the notification surface used by the generation session.
type Service interface {
	NotifyGenerationCompleted(ctx context.Context, mode, title string) error
	NotifyGenerationFailed(ctx context.Context, mode string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		generation: cfg.Notifications.Generation,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	generation bool
	errors     bool
}

var modeLabels = map[string]string{
	"post":    "Post",
	"caption": "Caption",
	"video":   "Video",
}

func modeLabel(mode string) string {
	mode = strings.TrimSpace(mode)
	if label, ok := modeLabels[mode]; ok {
		return label
	}
	if mode == "" {
		return "Content"
	}
	return mode
}

func (n *ntfyService) NotifyGenerationCompleted(ctx context.Context, mode, title string) error {
	if !n.generation {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled"
	}
	label := modeLabel(mode)
	data := payload{
		title:   fmt.Sprintf("Shivuk - %s Ready", label),
		message: fmt.Sprintf("✅ %s ready: %s", label, title),
		tags:    []string{"shivuk", strings.ToLower(label), "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationFailed(ctx context.Context, mode string, cause error) error {
	if !n.errors {
		return nil
	}
	label := modeLabel(mode)
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(label)
	builder.WriteString(" generation failed: ")
	if cause != nil {
		builder.WriteString(services.UserMessage(cause))
	} else {
		builder.WriteString("unknown")
	}

	priority := "high"
	if services.Classify(cause) == services.KindQuota {
		priority = "urgent"
	}
	data := payload{
		title:    "Shivuk - Error",
		message:  builder.String(),
		tags:     []string{"shivuk", "error", string(services.Classify(cause))},
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Shivuk - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"shivuk", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if tags := compact(data.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func compact(tags []string) []string {
	out := tags[:0:0]
	for _, tag := range tags {
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

type noopService struct{}

func (noopService) NotifyGenerationCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyGenerationFailed(context.Context, string, error) error     { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
