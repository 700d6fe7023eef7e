// Package prompt builds the image, story and system prompts for one generation cycle.
package prompt

import (
	"fmt"
	"strings"

	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/tmc/langchaingo/prompts"
)

var (
	imageTemplate = prompts.NewPromptTemplate(
		"An image related to {{.topic}}",
		[]string{"topic"},
	)
	storyTemplate = prompts.NewPromptTemplate(
		"Create a {{.size}} {{.mood}} story based on the image generated in simple {{.language}}.",
		[]string{"size", "mood", "language"},
	)
	systemTemplate = prompts.NewPromptTemplate(
		"You are a helpful multilingual Story teller and you will answer in {{.language}}.",
		[]string{"language"},
	)
)

// Prompts holds the rendered prompts for one request.
type Prompts struct {
	Image  string
	Story  string
	System string
}

// Build renders the three prompts. The request is expected to have defaults applied.
func Build(req models.StoryRequest) (Prompts, error) {
	image, err := imageTemplate.Format(map[string]any{"topic": req.Topic})
	if err != nil {
		return Prompts{}, fmt.Errorf("image prompt: %w", err)
	}
	story, err := storyTemplate.Format(map[string]any{
		"size":     strings.ToLower(string(req.Size)),
		"mood":     req.Mood,
		"language": req.Language,
	})
	if err != nil {
		return Prompts{}, fmt.Errorf("story prompt: %w", err)
	}
	system, err := systemTemplate.Format(map[string]any{"language": req.Language})
	if err != nil {
		return Prompts{}, fmt.Errorf("system prompt: %w", err)
	}
	return Prompts{Image: image, Story: story, System: system}, nil
}
