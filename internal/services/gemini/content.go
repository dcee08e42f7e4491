package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"shivuk/internal/dataurl"
	"shivuk/internal/logging"
	"shivuk/internal/services"
)

const backgroundPrompt = "High-end commercial photography background, minimal, text-space friendly, luxury style: %s. 8k, photorealistic."

// Source is one web page the text model grounded its answer on.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Content is the structured result of a post or caption request.
type Content struct {
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Hashtags          string   `json:"hashtags"`
	ImagePrompt       string   `json:"imagePrompt"`
	GeneratedImageURL string   `json:"generatedImageUrl,omitempty"`
	Sources           []Source `json:"sources,omitempty"`
}

var contentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"content":     {Type: genai.TypeString},
		"hashtags":    {Type: genai.TypeString},
		"imagePrompt": {Type: genai.TypeString},
	},
	Required: []string{"title", "content", "hashtags", "imagePrompt"},
}

// GenerateContent writes a post for prompt, optionally analysing a reference
// image, then renders a background image from the returned image prompt.
// A failed or empty image render leaves GeneratedImageURL blank.
func (c *Client) GenerateContent(ctx context.Context, prompt, image string) (Content, error) {
	const op = "generate content"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return Content{}, err
	}
	prompt = strings.TrimSpace(prompt)

	var parts []*genai.Part
	if image != "" {
		raw, mediaType, err := dataurl.Decode(image)
		if err != nil {
			return Content{}, services.Wrap(services.ErrValidation, "gemini", op, "reference image", err)
		}
		parts = append(parts, genai.NewPartFromBytes(raw, mediaType))
		prompt = "Analyse the attached image. Based on it and the following context, create the content: " + prompt
	}
	parts = append(parts, genai.NewPartFromText(fmt.Sprintf(
		"You are a senior creative director. Write one high-conversion social media post (caption plus image prompt).\nCONTEXT: %s\nRULES: write title, content and hashtags in %s; write imagePrompt in English.",
		prompt, c.cfg.Language,
	)))

	var resp *genai.GenerateContentResponse
	err = c.withRetry(ctx, op, func() error {
		var callErr error
		resp, callErr = sdk.Models.GenerateContent(ctx, c.cfg.TextModel,
			[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
			&genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				ResponseSchema:   contentSchema,
				Tools:            []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			},
		)
		return callErr
	})
	if err != nil {
		return Content{}, err
	}

	var out Content
	if err := decodeJSON(resp.Text(), &out); err != nil {
		return Content{}, errorf(op, "parse payload: %v", err)
	}
	out.Sources = groundingSources(resp)
	if out.Title == "" {
		out.Title = "Untitled post"
	}

	img, err := c.renderImage(ctx, sdk, fmt.Sprintf(backgroundPrompt, out.ImagePrompt))
	if err != nil {
		if services.IsQuota(err) {
			return Content{}, err
		}
		logging.WarnWithContext(c.logger, "background image not generated", "image_generation_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "post saved without a generated image"),
		)
	}
	out.GeneratedImageURL = img
	return out, nil
}

func (c *Client) renderImage(ctx context.Context, sdk *genai.Client, prompt string) (string, error) {
	var resp *genai.GenerateContentResponse
	err := c.withRetry(ctx, "generate image", func() error {
		var callErr error
		resp, callErr = sdk.Models.GenerateContent(ctx, c.cfg.ImageModel,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				ImageConfig: &genai.ImageConfig{AspectRatio: c.cfg.ImageAspectRatio},
			},
		)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return firstInlineImage(resp), nil
}

// GenerateCaption writes a caption for image. The result echoes image as
// its GeneratedImageURL.
func (c *Client) GenerateCaption(ctx context.Context, image, extra string) (Content, error) {
	const op = "generate caption"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return Content{}, err
	}
	raw, mediaType, err := dataurl.Decode(image)
	if err != nil {
		return Content{}, services.Wrap(services.ErrValidation, "gemini", op, "image", err)
	}
	prompt := strings.TrimSpace(fmt.Sprintf("Analyse this image and write an Instagram/LinkedIn caption in %s. %s", c.cfg.Language, extra))

	var resp *genai.GenerateContentResponse
	err = c.withRetry(ctx, op, func() error {
		var callErr error
		resp, callErr = sdk.Models.GenerateContent(ctx, c.cfg.TextModel,
			[]*genai.Content{genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromBytes(raw, mediaType),
				genai.NewPartFromText(prompt),
			}, genai.RoleUser)},
			&genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				ResponseSchema:   contentSchema,
			},
		)
		return callErr
	})
	if err != nil {
		return Content{}, err
	}

	var out Content
	if err := decodeJSON(resp.Text(), &out); err != nil {
		return Content{}, errorf(op, "parse payload: %v", err)
	}
	if out.Title == "" {
		out.Title = "Generated caption"
	}
	if out.ImagePrompt == "" {
		out.ImagePrompt = "Original image"
	}
	out.GeneratedImageURL = image
	return out, nil
}

// EditImage applies instruction to image and returns the edited image as a
// data URL.
func (c *Client) EditImage(ctx context.Context, image, instruction string) (string, error) {
	const op = "edit image"
	sdk, err := c.client(ctx, op)
	if err != nil {
		return "", err
	}
	raw, mediaType, err := dataurl.Decode(image)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "gemini", op, "image", err)
	}

	var resp *genai.GenerateContentResponse
	err = c.withRetry(ctx, op, func() error {
		var callErr error
		resp, callErr = sdk.Models.GenerateContent(ctx, c.cfg.ImageModel,
			[]*genai.Content{genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromBytes(raw, mediaType),
				genai.NewPartFromText(instruction),
			}, genai.RoleUser)},
			nil,
		)
		return callErr
	})
	if err != nil {
		return "", err
	}
	edited := firstInlineImage(resp)
	if edited == "" {
		return "", errorf(op, "response contained no image")
	}
	return edited, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return dataurl.Encode(part.InlineData.MIMEType, part.InlineData.Data)
		}
	}
	return ""
}

func groundingSources(resp *genai.GenerateContentResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		sources = append(sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}

// decodeJSON tolerates a fenced code block around the payload.
func decodeJSON(raw string, v any) error {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "```") {
		payload = strings.TrimPrefix(payload, "```json")
		payload = strings.TrimPrefix(payload, "```")
		payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")
	}
	if payload == "" {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal([]byte(payload), v)
}
