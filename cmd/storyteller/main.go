package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/config"
	"github.com/snappy-loop/storyteller/internal/llm"
	"github.com/snappy-loop/storyteller/internal/services"
	"github.com/snappy-loop/storyteller/internal/storage"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "storyteller",
	Short:         "Generate an image for a topic and stream a story about it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(os.Getenv("LOG_LEVEL"))

	rootCmd.AddCommand(serveCmd, generateCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setLogLevel(logLevel string) {
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// loadConfig reads the environment (and .env) and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	setLogLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newStoryService wires the model client, and the staging bucket when Gemini draws the image.
func newStoryService(ctx context.Context, cfg *config.Config) (*services.StoryService, error) {
	var stager llm.ImageStager
	if cfg.ImageProvider == config.ImageProviderGemini {
		storageClient, err := storage.NewClient(ctx,
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage client: %w", err)
		}
		stager = storageClient
	}

	client, err := llm.NewClient(ctx, cfg, stager)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}
	return services.NewStoryService(client, client, cfg.MaxTopicLength), nil
}
