package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/llm"
	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/snappy-loop/storyteller/internal/prompt"
)

// Status messages shown while a story is generated.
const (
	StatusGeneratingImage = "Generating your Image…"
	StatusCreatingStory   = "Creating your story…"
	WarningEmptyTopic     = "Please enter a topic for your story."
)

// Generation stages reported by StageError.
const (
	StageImage  = "image"
	StageStory  = "story"
	StageStream = "stream"
)

var (
	// ErrEmptyTopic is returned before any network call when the topic is blank.
	ErrEmptyTopic = errors.New("topic is required")
	// ErrTopicTooLong is returned when the topic exceeds the configured limit.
	ErrTopicTooLong = errors.New("topic is too long")
	// ErrEmptyStory is returned when the stream ends without any story text.
	ErrEmptyStory = errors.New("the model returned no story text")
)

// StageError tells which step of a generation failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ImageRequester produces the picture a story is written about.
type ImageRequester interface {
	GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error)
	ReleaseImage(ctx context.Context, img *models.GeneratedImage)
}

// StoryNarrator opens a streamed story about an image.
type StoryNarrator interface {
	GenerateStory(ctx context.Context, imageURL string, p prompt.Prompts) (*llm.StoryStream, error)
}

// Sink receives progress of one generation as it happens.
type Sink interface {
	Status(msg string)
	Warning(msg string)
	Image(img *models.GeneratedImage)
	Prompt(storyPrompt string)
	Fragment(text string)
}

// StoryService runs one image-then-story generation cycle
type StoryService struct {
	images         ImageRequester
	narrator       StoryNarrator
	maxTopicLength int
}

// NewStoryService creates a new StoryService. maxTopicLength <= 0 disables the limit.
func NewStoryService(images ImageRequester, narrator StoryNarrator, maxTopicLength int) *StoryService {
	return &StoryService{
		images:         images,
		narrator:       narrator,
		maxTopicLength: maxTopicLength,
	}
}

// Validate applies defaults to req and checks it. Nothing is sent upstream.
func (s *StoryService) Validate(req models.StoryRequest) (models.StoryRequest, error) {
	req = req.WithDefaults()
	if req.Topic == "" {
		return req, ErrEmptyTopic
	}
	if s.maxTopicLength > 0 && utf8.RuneCountInString(req.Topic) > s.maxTopicLength {
		return req, fmt.Errorf("%w: %d characters, limit is %d", ErrTopicTooLong, utf8.RuneCountInString(req.Topic), s.maxTopicLength)
	}
	size, err := models.ParseStorySize(string(req.Size))
	if err != nil {
		return req, err
	}
	req.Size = size
	return req, nil
}

// Generate produces an image for req, then streams a story about it into sink.
//
// The returned Story is nil when validation or the image step fails. When the story
// stream fails midway, or ends without any text, the Story carries the text received so
// far with Complete=false, together with a StageError.
func (s *StoryService) Generate(ctx context.Context, req models.StoryRequest, sink Sink) (*models.Story, error) {
	req, err := s.Validate(req)
	if err != nil {
		if errors.Is(err, ErrEmptyTopic) {
			sink.Warning(WarningEmptyTopic)
		}
		return nil, err
	}

	p, err := prompt.Build(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompts: %w", err)
	}

	story := &models.Story{Request: req, StartedAt: time.Now()}

	sink.Status(StatusGeneratingImage)
	img, err := s.images.GenerateImage(ctx, p.Image)
	if err != nil {
		log.Error().Err(err).Str("topic", req.Topic).Msg("Image generation failed")
		return nil, &StageError{Stage: StageImage, Err: err}
	}
	defer s.images.ReleaseImage(ctx, img)

	story.Image = img
	sink.Image(img)

	sink.Status(StatusCreatingStory)
	story.StoryPrompt = p.Story
	sink.Prompt(p.Story)

	stream, err := s.narrator.GenerateStory(ctx, img.SourceURL, p)
	if err != nil {
		log.Error().Err(err).Str("topic", req.Topic).Msg("Story request failed")
		finish(story)
		return story, &StageError{Stage: StageStory, Err: err}
	}

	var text strings.Builder
	for fragment, err := range stream.Fragments() {
		if err != nil {
			story.Text = text.String()
			finish(story)
			log.Warn().Err(err).
				Int("fragments", story.Fragments).
				Int("chars", text.Len()).
				Msg("Story stream interrupted")
			return story, &StageError{Stage: StageStream, Err: err}
		}
		text.WriteString(fragment)
		story.Fragments++
		sink.Fragment(fragment)
	}

	story.Text = text.String()
	finish(story)
	if strings.TrimSpace(story.Text) == "" {
		log.Warn().Int("fragments", story.Fragments).Msg("Story stream ended without text")
		return story, &StageError{Stage: StageStream, Err: ErrEmptyStory}
	}
	story.Complete = true
	llm.LogStory(story.Text)

	log.Info().
		Str("topic", req.Topic).
		Str("size", string(req.Size)).
		Int("fragments", story.Fragments).
		Dur("elapsed", story.FinishedAt.Sub(story.StartedAt)).
		Msg("Story generated")

	return story, nil
}

func finish(story *models.Story) {
	now := time.Now()
	story.FinishedAt = &now
}
