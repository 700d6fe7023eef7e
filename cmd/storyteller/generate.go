package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/export"
	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/snappy-loop/storyteller/internal/session"
	"github.com/spf13/cobra"
)

var generateOpts struct {
	topic    string
	mood     string
	language string
	size     string
	out      string
	imageOut string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one story in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateOpts.topic, "topic", "t", "", "what the picture and the story are about")
	f.StringVarP(&generateOpts.mood, "mood", "m", models.DefaultMood, "story mood")
	f.StringVarP(&generateOpts.language, "language", "l", models.DefaultLanguage, "story language")
	f.StringVarP(&generateOpts.size, "size", "s", string(models.SizeShort), "Short, Medium or Long")
	f.StringVarP(&generateOpts.out, "out", "o", "", "write the story as a PDF to this path")
	f.StringVar(&generateOpts.imageOut, "image-out", "", "save the generated image to this path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storyService, err := newStoryService(ctx, cfg)
	if err != nil {
		return err
	}

	req := models.StoryRequest{
		Topic:    generateOpts.topic,
		Mood:     generateOpts.mood,
		Language: generateOpts.language,
		Size:     models.StorySize(generateOpts.size),
	}

	out := cmd.OutOrStdout()
	story, err := storyService.Generate(ctx, req, &terminalSink{out: out})
	if story != nil && story.Text != "" {
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	// The terminal keeps a single State for the one story it generated.
	state := session.State{
		Request:     story.Request,
		Image:       story.Image,
		StoryPrompt: story.StoryPrompt,
		Story:       story.Text,
		CompletedAt: *story.FinishedAt,
	}
	return saveOutputs(state, cfg.FontPath)
}

func saveOutputs(state session.State, fontPath string) error {
	if generateOpts.imageOut != "" && state.Image != nil {
		if err := os.WriteFile(generateOpts.imageOut, state.Image.Data, 0o644); err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		log.Info().Str("path", generateOpts.imageOut).Msg("Image saved")
	}

	if generateOpts.out == "" {
		return nil
	}
	doc := export.Document{Title: export.DefaultTitle, Topic: state.Request.Topic, Story: state.Story}
	if state.Image != nil {
		doc.Image = state.Image.Bitmap
	}
	pdf, err := export.NewExporter(fontPath).Export(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(generateOpts.out, pdf, 0o644); err != nil {
		return fmt.Errorf("failed to save PDF: %w", err)
	}
	log.Info().Str("path", generateOpts.out).Int("bytes", len(pdf)).Msg("PDF saved")
	return nil
}

// terminalSink prints the story to out and progress to the log.
type terminalSink struct {
	out io.Writer
}

func (t *terminalSink) Status(msg string) { log.Info().Msg(msg) }
func (t *terminalSink) Warning(msg string) { log.Warn().Msg(msg) }

func (t *terminalSink) Image(img *models.GeneratedImage) {
	log.Info().Str("url", img.SourceURL).Str("mime_type", img.MimeType).Msg("Image ready")
}

func (t *terminalSink) Prompt(storyPrompt string) {
	log.Info().Str("prompt", storyPrompt).Msg("Story prompt")
}

func (t *terminalSink) Fragment(text string) { fmt.Fprint(t.out, text) }
