package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Image providers understood by the llm client.
const (
	ImageProviderTogether = "together"
	ImageProviderGemini   = "gemini"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr string
	LogLevel string

	// Together (OpenAI-compatible) API, used for the story and, by default, the image
	TogetherAPIKey  string
	TogetherBaseURL string
	ImageProvider   string // together or gemini
	ImageModel      string // e.g. black-forest-labs/FLUX.1-schnell-Free
	StoryModel      string // vision chat model, e.g. meta-llama/Llama-Vision-Free

	// Gemini API (IMAGE_PROVIDER=gemini only)
	GeminiAPIKey      string
	GeminiAPIEndpoint string // if set, overrides default Gemini API base URL
	GeminiModelImage  string

	// S3/Storage, hosts Gemini images behind a presigned URL
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3PresignTTL time.Duration

	// Processing
	HTTPTimeout    time.Duration
	MaxImageBytes  int64
	MaxTopicLength int

	// Session
	SessionSecret string
	SessionTTL    time.Duration

	// Export
	FontPath string // optional UTF-8 TTF for non-Latin story languages
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file, using process environment only")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TogetherAPIKey:  getEnv("TOGETHER_API_KEY", ""),
		TogetherBaseURL: getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1"),
		ImageProvider:   strings.ToLower(getEnv("IMAGE_PROVIDER", ImageProviderTogether)),
		ImageModel:      getEnv("IMAGE_MODEL", "black-forest-labs/FLUX.1-schnell-Free"),
		StoryModel:      getEnv("STORY_MODEL", "meta-llama/Llama-Vision-Free"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelImage:  getEnv("GEMINI_MODEL_IMAGE", "gemini-2.5-flash-image"),

		S3Endpoint:   getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3PresignTTL: getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 2*time.Minute),
		MaxImageBytes:  getEnvInt64("MAX_IMAGE_BYTES", 20*1024*1024), // 20MB
		MaxTopicLength: clampMin(getEnvInt("MAX_TOPIC_LENGTH", 500), 1),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", time.Hour),

		FontPath: getEnv("FONT_PATH", ""),
	}
}

// Validate checks that the settings required by the selected providers are present.
func (c *Config) Validate() error {
	if c.TogetherAPIKey == "" {
		return fmt.Errorf("TOGETHER_API_KEY is required")
	}
	switch c.ImageProvider {
	case ImageProviderTogether:
	case ImageProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when IMAGE_PROVIDER=gemini")
		}
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when IMAGE_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("invalid IMAGE_PROVIDER %q: must be together or gemini", c.ImageProvider)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
