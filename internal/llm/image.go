package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/snappy-loop/storyteller/internal/config"
	"github.com/snappy-loop/storyteller/internal/models"
)

// ErrNoImageURL is returned when the image API answers without a usable URL.
var ErrNoImageURL = errors.New("no image url in response")

// GenerateImage asks the configured image model for a picture, downloads it from the
// returned one-time URL and decodes it.
// For the gemini provider the image is staged first; callers must ReleaseImage the result.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	log.Debug().
		Str("provider", c.imageProvider).
		Str("prompt", truncate(prompt, 50)).
		Msg("Generating image")

	var (
		url        string
		stagingKey string
		err        error
	)
	if c.imageProvider == config.ImageProviderGemini {
		url, stagingKey, err = c.stageGeminiImage(ctx, prompt)
	} else {
		url, err = c.requestImageURL(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	img, err := c.fetchImage(ctx, url)
	if err != nil {
		if stagingKey != "" {
			c.ReleaseImage(ctx, &models.GeneratedImage{StagingKey: stagingKey})
		}
		return nil, err
	}
	img.Model = c.activeImageModel()
	img.StagingKey = stagingKey

	log.Info().
		Str("caller", "GenerateImage").
		Str("model", img.Model).
		Str("mime_type", img.MimeType).
		Int("image_size_bytes", len(img.Data)).
		Str("resolution", fmt.Sprintf("%dx%d", img.Bitmap.Bounds().Dx(), img.Bitmap.Bounds().Dy())).
		Msg("Image generated")

	return img, nil
}

// requestImageURL calls the OpenAI-compatible images endpoint and returns the first URL.
func (c *Client) requestImageURL(ctx context.Context, prompt string) (string, error) {
	resp, err := c.openai.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		log.Warn().
			Str("model", c.imageModel).
			Int("data", len(resp.Data)).
			Msg("Image response carried no URL")
		return "", ErrNoImageURL
	}
	return resp.Data[0].URL, nil
}

// fetchImage downloads and decodes the image behind url.
func (c *Client) fetchImage(ctx context.Context, url string) (*models.GeneratedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code fetching image: %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", c.maxImageBytes)
	}

	bitmap, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &models.GeneratedImage{
		Bitmap:    bitmap,
		SourceURL: url,
		MimeType:  "image/" + format,
		Data:      data,
	}, nil
}
