package models

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Form defaults, matching the placeholders shown in the UI.
const (
	DefaultMood     = "funny"
	DefaultLanguage = "English"
)

// StorySize is the requested story length.
type StorySize string

const (
	SizeShort  StorySize = "Short"
	SizeMedium StorySize = "Medium"
	SizeLong   StorySize = "Long"
)

// StorySizes lists the sizes in the order the form offers them.
var StorySizes = []StorySize{SizeShort, SizeMedium, SizeLong}

// ParseStorySize accepts a size name case-insensitively. Empty means Short.
func ParseStorySize(s string) (StorySize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "short":
		return SizeShort, nil
	case "medium":
		return SizeMedium, nil
	case "long":
		return SizeLong, nil
	}
	return "", fmt.Errorf("invalid size %q: must be Short, Medium, or Long", s)
}

// StoryRequest is the user input for one generation cycle
type StoryRequest struct {
	Topic    string    `json:"topic"`
	Mood     string    `json:"mood"`
	Language string    `json:"language"`
	Size     StorySize `json:"size"`
}

// WithDefaults returns a copy with surrounding whitespace trimmed and empty optional fields defaulted.
func (r StoryRequest) WithDefaults() StoryRequest {
	out := StoryRequest{
		Topic:    strings.TrimSpace(r.Topic),
		Mood:     strings.TrimSpace(r.Mood),
		Language: strings.TrimSpace(r.Language),
		Size:     r.Size,
	}
	if out.Mood == "" {
		out.Mood = DefaultMood
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	if out.Size == "" {
		out.Size = SizeShort
	}
	return out
}

// GeneratedImage is a decoded picture together with the URL it was fetched from
type GeneratedImage struct {
	Bitmap    image.Image `json:"-"`
	SourceURL string      `json:"source_url"`
	MimeType  string      `json:"mime_type"` // e.g. "image/png", "image/jpeg"
	Data      []byte      `json:"-"`         // encoded bytes as downloaded
	Model     string      `json:"model"`

	// StagingKey is set when the image was uploaded to the staging bucket to obtain SourceURL.
	StagingKey string `json:"-"`
}

// Story is the outcome of one generation cycle
type Story struct {
	Request     StoryRequest    `json:"request"`
	Image       *GeneratedImage `json:"image,omitempty"`
	StoryPrompt string          `json:"story_prompt"`
	Text        string          `json:"text"`
	Fragments   int             `json:"fragments"`
	Complete    bool            `json:"complete"` // false when the stream failed midway; Text is then partial
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}
