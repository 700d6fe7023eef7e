package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/snappy-loop/storyteller/internal/prompt"
)

// GenerateStory opens a streaming chat completion that narrates a story about the image at imageURL.
// An error means the stream was never opened.
func (c *Client) GenerateStory(ctx context.Context, imageURL string, p prompt.Prompts) (*StoryStream, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.storyModel,
		Messages: storyMessages(imageURL, p),
		Stream:   true,
	}

	log.Debug().
		Str("model", c.storyModel).
		Str("story_prompt", p.Story).
		Str("image_url", truncate(imageURL, 80)).
		Msg("Opening story stream")

	stream, err := c.openai.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("story request: %w", err)
	}
	return NewStoryStream(stream), nil
}

// storyMessages builds the user turn (story prompt + image) followed by the system persona.
func storyMessages(imageURL string, p prompt.Prompts) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: p.Story},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
			},
		},
		{
			Role: openai.ChatMessageRoleSystem,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: p.System},
			},
		},
	}
}

// LogStory logs the final story text at debug level.
func LogStory(text string) {
	logResponse("GenerateStory", text)
}
