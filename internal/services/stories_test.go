package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/snappy-loop/storyteller/internal/llm"
	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/snappy-loop/storyteller/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkReplay struct {
	chunks []openai.ChatCompletionStreamResponse
	err    error
	pos    int
}

func (c *chunkReplay) Recv() (openai.ChatCompletionStreamResponse, error) {
	if c.pos < len(c.chunks) {
		chunk := c.chunks[c.pos]
		c.pos++
		return chunk, nil
	}
	if c.err != nil {
		return openai.ChatCompletionStreamResponse{}, c.err
	}
	return openai.ChatCompletionStreamResponse{}, io.EOF
}

func (c *chunkReplay) Close() error { return nil }

func chunks(parts ...string) []openai.ChatCompletionStreamResponse {
	out := make([]openai.ChatCompletionStreamResponse, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, openai.ChatCompletionStreamResponse{
			Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: p}}},
		})
	}
	// usage-only terminal chunk
	return append(out, openai.ChatCompletionStreamResponse{})
}

type fakeImages struct {
	err      error
	prompts  []string
	released []*models.GeneratedImage
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &models.GeneratedImage{SourceURL: "https://img.example/cat.png", MimeType: "image/png"}, nil
}

func (f *fakeImages) ReleaseImage(ctx context.Context, img *models.GeneratedImage) {
	f.released = append(f.released, img)
}

type fakeNarrator struct {
	openErr  error
	stream   *chunkReplay
	calls    int
	imageURL string
	prompts  prompt.Prompts
}

func (f *fakeNarrator) GenerateStory(ctx context.Context, imageURL string, p prompt.Prompts) (*llm.StoryStream, error) {
	f.calls++
	f.imageURL = imageURL
	f.prompts = p
	if f.openErr != nil {
		return nil, f.openErr
	}
	return llm.NewStoryStream(f.stream), nil
}

// recordingSink flattens sink calls into "kind:value" events.
type recordingSink struct {
	events []string
}

func (r *recordingSink) Status(msg string) { r.events = append(r.events, "status:"+msg) }
func (r *recordingSink) Warning(msg string) { r.events = append(r.events, "warning:"+msg) }
func (r *recordingSink) Image(img *models.GeneratedImage) {
	r.events = append(r.events, "image:"+img.SourceURL)
}
func (r *recordingSink) Prompt(p string) { r.events = append(r.events, "prompt:"+p) }
func (r *recordingSink) Fragment(t string) { r.events = append(r.events, "fragment:"+t) }

func TestGenerate_Success(t *testing.T) {
	images := &fakeImages{}
	narrator := &fakeNarrator{stream: &chunkReplay{chunks: chunks("Once", " upon", " a time.")}}
	sink := &recordingSink{}
	svc := NewStoryService(images, narrator, 500)

	story, err := svc.Generate(context.Background(), models.StoryRequest{Topic: "  a cat  "}, sink)
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time.", story.Text)
	assert.True(t, story.Complete)
	assert.Equal(t, 3, story.Fragments)
	assert.NotNil(t, story.FinishedAt)
	assert.Equal(t, models.StoryRequest{Topic: "a cat", Mood: "funny", Language: "English", Size: models.SizeShort}, story.Request)

	assert.Equal(t, []string{"An image related to a cat"}, images.prompts)
	assert.Equal(t, "https://img.example/cat.png", narrator.imageURL)
	assert.Equal(t, "You are a helpful multilingual Story teller and you will answer in English.", narrator.prompts.System)

	storyPrompt := "Create a short funny story based on the image generated in simple English."
	assert.Equal(t, storyPrompt, story.StoryPrompt)
	assert.Equal(t, []string{
		"status:" + StatusGeneratingImage,
		"image:https://img.example/cat.png",
		"status:" + StatusCreatingStory,
		"prompt:" + storyPrompt,
		"fragment:Once",
		"fragment: upon",
		"fragment: a time.",
	}, sink.events)

	assert.Len(t, images.released, 1, "staged image must be released")
}

func TestGenerate_EmptyTopicMakesNoCalls(t *testing.T) {
	for _, topic := range []string{"", "   ", "\n\t"} {
		images := &fakeImages{}
		narrator := &fakeNarrator{}
		sink := &recordingSink{}

		story, err := NewStoryService(images, narrator, 500).Generate(context.Background(), models.StoryRequest{Topic: topic}, sink)

		assert.ErrorIs(t, err, ErrEmptyTopic)
		assert.Nil(t, story)
		assert.Empty(t, images.prompts)
		assert.Zero(t, narrator.calls)
		assert.Equal(t, []string{"warning:" + WarningEmptyTopic}, sink.events)
	}
}

func TestGenerate_TopicTooLong(t *testing.T) {
	images := &fakeImages{}
	sink := &recordingSink{}

	_, err := NewStoryService(images, &fakeNarrator{}, 5).Generate(context.Background(), models.StoryRequest{Topic: "dinosaurs"}, sink)

	assert.ErrorIs(t, err, ErrTopicTooLong)
	assert.Empty(t, images.prompts)
	assert.Empty(t, sink.events)
}

func TestGenerate_InvalidSize(t *testing.T) {
	images := &fakeImages{}
	_, err := NewStoryService(images, &fakeNarrator{}, 0).Generate(context.Background(),
		models.StoryRequest{Topic: "a cat", Size: "Huge"}, &recordingSink{})

	require.Error(t, err)
	assert.Empty(t, images.prompts)
}

func TestGenerate_ImageFailureSkipsStory(t *testing.T) {
	images := &fakeImages{err: llm.ErrNoImageURL}
	narrator := &fakeNarrator{}
	sink := &recordingSink{}

	story, err := NewStoryService(images, narrator, 500).Generate(context.Background(), models.StoryRequest{Topic: "a cat"}, sink)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageImage, stageErr.Stage)
	assert.ErrorIs(t, err, llm.ErrNoImageURL)
	assert.Nil(t, story)
	assert.Zero(t, narrator.calls)
	assert.Equal(t, []string{"status:" + StatusGeneratingImage}, sink.events)
	assert.Empty(t, images.released)
}

func TestGenerate_StoryOpenFailure(t *testing.T) {
	images := &fakeImages{}
	narrator := &fakeNarrator{openErr: errors.New("401 unauthorized")}

	story, err := NewStoryService(images, narrator, 500).Generate(context.Background(), models.StoryRequest{Topic: "a cat"}, &recordingSink{})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStory, stageErr.Stage)
	require.NotNil(t, story)
	assert.False(t, story.Complete)
	assert.Empty(t, story.Text)
	assert.NotNil(t, story.Image)
	assert.Len(t, images.released, 1)
}

func TestGenerate_MidStreamFailureKeepsPartialText(t *testing.T) {
	images := &fakeImages{}
	broken := errors.New("connection reset")
	narrator := &fakeNarrator{stream: &chunkReplay{
		chunks: chunks("Once", " upon")[:2],
		err:    broken,
	}}
	sink := &recordingSink{}

	story, err := NewStoryService(images, narrator, 500).Generate(context.Background(), models.StoryRequest{Topic: "a cat"}, sink)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStream, stageErr.Stage)
	assert.ErrorIs(t, err, broken)

	require.NotNil(t, story)
	assert.Equal(t, "Once upon", story.Text)
	assert.False(t, story.Complete)
	assert.Equal(t, 2, story.Fragments)
	assert.Len(t, images.released, 1)

	var fragments []string
	for _, e := range sink.events {
		if strings.HasPrefix(e, "fragment:") {
			fragments = append(fragments, e)
		}
	}
	assert.Equal(t, []string{"fragment:Once", "fragment: upon"}, fragments)
}

func TestGenerate_BlankStoryIsNotComplete(t *testing.T) {
	images := &fakeImages{}
	narrator := &fakeNarrator{stream: &chunkReplay{chunks: chunks("", " ", "\n")}}
	sink := &recordingSink{}

	story, err := NewStoryService(images, narrator, 500).Generate(context.Background(), models.StoryRequest{Topic: "a cat"}, sink)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStream, stageErr.Stage)
	assert.ErrorIs(t, err, ErrEmptyStory)

	require.NotNil(t, story)
	assert.False(t, story.Complete)
	assert.Equal(t, 3, story.Fragments)
	assert.NotNil(t, story.FinishedAt)
	assert.Len(t, images.released, 1)
	assert.Contains(t, sink.events, "fragment:", "empty fragments still reach the sink")
}

func TestGenerate_UsesRequestedOptions(t *testing.T) {
	narrator := &fakeNarrator{stream: &chunkReplay{chunks: chunks("Il était une fois.")}}
	req := models.StoryRequest{Topic: "un chat", Mood: "sad", Language: "French", Size: "long"}

	story, err := NewStoryService(&fakeImages{}, narrator, 500).Generate(context.Background(), req, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, models.SizeLong, story.Request.Size)
	assert.Equal(t, "Create a long sad story based on the image generated in simple French.", narrator.prompts.Story)
	assert.Equal(t, "You are a helpful multilingual Story teller and you will answer in French.", narrator.prompts.System)
}

func TestStageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageStream, Err: inner}
	assert.Equal(t, "stream step failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
