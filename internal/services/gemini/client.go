package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"shivuk/internal/config"
	"shivuk/internal/logging"
	"shivuk/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultPollInterval   = 5 * time.Second
)

// Config captures the runtime settings required to talk to the service.
type Config struct {
	APIKey            string
	BaseURL           string
	TextModel         string
	ImageModel        string
	CaptionModel      string
	VideoModel        string
	Language          string
	ImageAspectRatio  string
	VideoResolution   string
	VideoAspectRatio  string
	VideoPollInterval time.Duration
	VideoDir          string
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIKey:            cfg.Generation.APIKey,
		TextModel:         cfg.Generation.TextModel,
		ImageModel:        cfg.Generation.ImageModel,
		CaptionModel:      cfg.Generation.CaptionModel,
		VideoModel:        cfg.Generation.VideoModel,
		Language:          cfg.Generation.Language,
		ImageAspectRatio:  cfg.Generation.ImageAspectRatio,
		VideoResolution:   cfg.Generation.VideoResolution,
		VideoAspectRatio:  cfg.Generation.VideoAspectRatio,
		VideoPollInterval: cfg.VideoPollInterval(),
		VideoDir:          cfg.Paths.VideoDir,
	}
}

// Client talks to the generation service. The SDK client is created on first
// use so a missing key is reported without any network traffic.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
	now              func() time.Time

	mu  sync.Mutex
	sdk *genai.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "gemini")
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry and poll sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	defaults := config.Default().Generation
	client := &Client{
		cfg: Config{
			APIKey:            strings.TrimSpace(cfg.APIKey),
			BaseURL:           strings.TrimSpace(cfg.BaseURL),
			TextModel:         fallback(cfg.TextModel, defaults.TextModel),
			ImageModel:        fallback(cfg.ImageModel, defaults.ImageModel),
			CaptionModel:      fallback(cfg.CaptionModel, defaults.CaptionModel),
			VideoModel:        fallback(cfg.VideoModel, defaults.VideoModel),
			Language:          fallback(cfg.Language, defaults.Language),
			ImageAspectRatio:  fallback(cfg.ImageAspectRatio, defaults.ImageAspectRatio),
			VideoResolution:   fallback(cfg.VideoResolution, defaults.VideoResolution),
			VideoAspectRatio:  fallback(cfg.VideoAspectRatio, defaults.VideoAspectRatio),
			VideoPollInterval: cfg.VideoPollInterval,
			VideoDir:          strings.TrimSpace(cfg.VideoDir),
		},
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
		logger:           logging.NewComponentLogger(nil, "gemini"),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		now:              time.Now,
	}
	if client.cfg.VideoPollInterval <= 0 {
		client.cfg.VideoPollInterval = defaultPollInterval
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from the application config.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	return NewClient(ConfigFrom(cfg), append([]Option{WithLogger(logger)}, opts...)...)
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return c.cfg.APIKey != ""
}

// HealthCheck verifies that the key is accepted and the text model exists.
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "health check"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, op, func() error {
		_, err := sdk.Models.Get(ctx, c.cfg.TextModel, nil)
		return err
	})
}

func (c *Client) client(ctx context.Context, op string) (*genai.Client, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", op, "API key not configured", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk != nil {
		return c.sdk, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}
	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", op, "create client", err)
	}
	c.sdk = sdk
	return sdk, nil
}

// withRetry runs call, retrying server-side and timeout failures. Quota
// failures are returned at once so the caller can offer a key change.
func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = call()
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(ctx, err) {
			break
		}
		delay := c.backoffDelay(attempt)
		c.logger.Debug("retrying generation request",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return classify(op, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code, ok := apiErrorCode(err); ok {
		return code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

func errorf(op, format string, args ...any) error {
	return services.Wrap(services.ErrTransient, "gemini", op, fmt.Sprintf(format, args...), nil)
}
