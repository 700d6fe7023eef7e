package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/models"
	"google.golang.org/genai"
)

// stageGeminiImage generates an image with Gemini (strict IMAGE modality), uploads the
// blob to the staging bucket and returns a presigned URL for it along with its key.
func (c *Client) stageGeminiImage(ctx context.Context, prompt string) (string, string, error) {
	data, mimeType, err := c.generateGeminiImage(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	key := "staging/" + uuid.New().String() + extensionForMIME(mimeType)
	if err := c.stager.Upload(ctx, key, bytes.NewReader(data), mimeType, int64(len(data))); err != nil {
		return "", "", fmt.Errorf("failed to stage image: %w", err)
	}

	url, err := c.stager.GeneratePresignedURL(key, c.presignTTL)
	if err != nil {
		c.ReleaseImage(ctx, &models.GeneratedImage{StagingKey: key})
		return "", "", fmt.Errorf("failed to presign staged image: %w", err)
	}
	return url, key, nil
}

// generateGeminiImage returns the first inline image blob of the response.
func (c *Client) generateGeminiImage(ctx context.Context, prompt string) ([]byte, string, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.geminiModel, genai.Text(prompt), config)
	if err != nil {
		return nil, "", fmt.Errorf("gemini image request: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for j, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			log.Debug().
				Str("caller", "GenerateImage").
				Int("candidate", i).
				Int("part", j).
				Str("mime_type", mimeType).
				Int("image_size_bytes", len(part.InlineData.Data)).
				Msg("Gemini response (image blob)")
			return part.InlineData.Data, mimeType, nil
		}
	}

	log.Warn().
		Str("model", c.geminiModel).
		Int("candidates", len(resp.Candidates)).
		Msg("No image blob in Gemini response")
	return nil, "", ErrNoImageURL
}

// ReleaseImage removes a staged image. It is a no-op for images that were not staged.
func (c *Client) ReleaseImage(ctx context.Context, img *models.GeneratedImage) {
	if img == nil || img.StagingKey == "" || c.stager == nil {
		return
	}
	if err := c.stager.Delete(context.WithoutCancel(ctx), img.StagingKey); err != nil {
		log.Warn().Err(err).Str("key", img.StagingKey).Msg("Failed to release staged image")
	}
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
