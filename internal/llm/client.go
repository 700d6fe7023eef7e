package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/snappy-loop/storyteller/internal/config"
	"google.golang.org/genai"
)

// maxResponseLogBytes is the max length of a model response to log in full (to avoid huge logs).
const maxResponseLogBytes = 8192

// logResponse logs model response text, truncating if over maxResponseLogBytes.
func logResponse(caller, raw string) {
	if len(raw) <= maxResponseLogBytes {
		log.Debug().Str("caller", caller).Str("response", raw).Msg("Model response")
		return
	}
	log.Debug().
		Str("caller", caller).
		Str("response", raw[:maxResponseLogBytes]+"... [truncated]").
		Int("response_len", len(raw)).
		Msg("Model response")
}

// ImageStager hosts image bytes behind a temporary URL. Implemented by storage.Client.
type ImageStager interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string, contentLength int64) error
	GeneratePresignedURL(key string, expiration time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Client wraps the Together (OpenAI-compatible) and Gemini APIs
type Client struct {
	openai        *openai.Client
	genaiClient   *genai.Client // only for IMAGE_PROVIDER=gemini
	stager        ImageStager   // only for IMAGE_PROVIDER=gemini
	httpClient    *http.Client  // fetches generated image bytes
	imageProvider string
	imageModel    string
	geminiModel   string
	storyModel    string
	maxImageBytes int64
	presignTTL    time.Duration
}

// NewClient creates a new LLM client.
// stager may be nil unless cfg.ImageProvider is gemini.
func NewClient(ctx context.Context, cfg *config.Config, stager ImageStager) (*Client, error) {
	oaCfg := openai.DefaultConfig(cfg.TogetherAPIKey)
	oaCfg.BaseURL = cfg.TogetherBaseURL
	oaCfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	c := &Client{
		openai:        openai.NewClientWithConfig(oaCfg),
		httpClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		imageProvider: cfg.ImageProvider,
		imageModel:    cfg.ImageModel,
		geminiModel:   cfg.GeminiModelImage,
		storyModel:    cfg.StoryModel,
		maxImageBytes: cfg.MaxImageBytes,
		presignTTL:    cfg.S3PresignTTL,
	}
	if c.maxImageBytes <= 0 {
		c.maxImageBytes = 20 * 1024 * 1024
	}

	if cfg.ImageProvider == config.ImageProviderGemini {
		if stager == nil {
			return nil, fmt.Errorf("gemini image provider requires a staging bucket")
		}
		genaiCfg := &genai.ClientConfig{APIKey: cfg.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
		if cfg.GeminiAPIEndpoint != "" {
			genaiCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiAPIEndpoint}
		}
		gc, err := genai.NewClient(ctx, genaiCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize genai client: %w", err)
		}
		c.genaiClient = gc
		c.stager = stager
	}

	log.Info().
		Str("base_url", cfg.TogetherBaseURL).
		Str("image_provider", c.imageProvider).
		Str("image_model", c.activeImageModel()).
		Str("story_model", c.storyModel).
		Msg("LLM client initialized")

	return c, nil
}

func (c *Client) activeImageModel() string {
	if c.imageProvider == config.ImageProviderGemini {
		return c.geminiModel
	}
	return c.imageModel
}

// truncate shortens s to at most n bytes for log previews.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
