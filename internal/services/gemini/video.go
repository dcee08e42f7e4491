package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"shivuk/internal/dataurl"
	"shivuk/internal/logging"
	"shivuk/internal/services"
)

// GenerateVideo starts a video job for prompt, optionally seeded with an
// image, polls it to completion, and downloads the result into the video
// directory at once because the service link expires. It returns a file://
// URL.
func (c *Client) GenerateVideo(ctx context.Context, prompt, image string) (string, error) {
	const op = "generate video"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return "", err
	}
	if c.cfg.VideoDir == "" {
		return "", services.Wrap(services.ErrConfiguration, "gemini", op, "video directory not configured", nil)
	}

	var seed *genai.Image
	if image != "" {
		raw, mediaType, err := dataurl.Decode(image)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "gemini", op, "reference image", err)
		}
		seed = &genai.Image{ImageBytes: raw, MIMEType: mediaType}
	}

	var operation *genai.GenerateVideosOperation
	err = c.withRetry(ctx, op, func() error {
		var callErr error
		operation, callErr = sdk.Models.GenerateVideos(ctx, c.cfg.VideoModel,
			"Cinematic, high quality: "+strings.TrimSpace(prompt),
			seed,
			&genai.GenerateVideosConfig{
				NumberOfVideos: 1,
				Resolution:     c.cfg.VideoResolution,
				AspectRatio:    c.cfg.VideoAspectRatio,
			},
		)
		return callErr
	})
	if err != nil {
		return "", err
	}
	c.logger.Info("video job started", logging.String("operation", operation.Name))

	for !operation.Done {
		if err := c.sleep(ctx, c.cfg.VideoPollInterval); err != nil {
			return "", err
		}
		current := operation
		err = c.withRetry(ctx, "poll video", func() error {
			next, callErr := sdk.Operations.GetVideosOperation(ctx, current, nil)
			if callErr == nil {
				operation = next
			}
			return callErr
		})
		if err != nil {
			return "", err
		}
	}
	if len(operation.Error) > 0 {
		return "", errorf(op, "video job failed: %v", operation.Error)
	}
	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 ||
		operation.Response.GeneratedVideos[0] == nil || operation.Response.GeneratedVideos[0].Video == nil {
		return "", errorf(op, "video job returned no video")
	}

	video := operation.Response.GeneratedVideos[0].Video
	if len(video.VideoBytes) > 0 {
		return c.saveVideo(func(w io.Writer) error {
			_, err := w.Write(video.VideoBytes)
			return err
		})
	}
	if video.URI == "" {
		return "", errorf(op, "video job returned no video")
	}
	return c.downloadVideo(ctx, video.URI)
}

// downloadVideo fetches uri, authenticating with the API key, into the video
// directory.
func (c *Client) downloadVideo(ctx context.Context, uri string) (string, error) {
	const op = "download video"
	if _, err := url.Parse(uri); err != nil {
		return "", errorf(op, "invalid video uri %q", uri)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", errorf(op, "new request: %v", err)
	}
	// The key travels in a header so transport errors, which quote the URL, never carry it.
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "gemini", op, "http error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classify(op, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return c.saveVideo(func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

func (c *Client) saveVideo(write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(c.cfg.VideoDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure video directory: %w", err)
	}
	name := strconv.FormatInt(c.now().UnixMilli(), 10) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + ".mp4"
	final := filepath.Join(c.cfg.VideoDir, name)

	tmp, err := os.CreateTemp(c.cfg.VideoDir, ".video-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", services.Wrap(services.ErrTransient, "gemini", "download video", "write video", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close video file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize video file: %w", err)
	}
	c.logger.Info("video saved", logging.String("path", final))
	return (&url.URL{Scheme: "file", Path: final}).String(), nil
}

// GenerateVideoCaption writes a short caption with emojis and a call to
// action for a video described by prompt.
func (c *Client) GenerateVideoCaption(ctx context.Context, prompt string) (string, error) {
	const op = "generate video caption"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return "", err
	}
	var resp *genai.GenerateContentResponse
	err = c.withRetry(ctx, op, func() error {
		var callErr error
		resp, callErr = sdk.Models.GenerateContent(ctx, c.cfg.CaptionModel,
			genai.Text(fmt.Sprintf("Write a caption for this video: %q. Language: %s. Include emojis and a call to action.", prompt, c.cfg.Language)),
			nil,
		)
		return callErr
	})
	if err != nil {
		return "", err
	}
	caption := strings.TrimSpace(resp.Text())
	if caption == "" {
		return "", errorf(op, "empty caption")
	}
	return caption, nil
}
