package llm

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
)

// ErrStreamConsumed is yielded when Fragments is called on an already consumed stream.
var ErrStreamConsumed = errors.New("story stream already consumed")

// ChunkReceiver is the pull side of a streaming chat completion.
// *openai.ChatCompletionStream implements it.
type ChunkReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// EventKind distinguishes the two shapes a stream chunk can take.
type EventKind int

const (
	// EventDelta carries a (possibly empty) piece of text.
	EventDelta EventKind = iota
	// EventTerminal is the choice-less chunk the API sends before closing the stream.
	EventTerminal
)

// Event is a decoded stream chunk.
type Event struct {
	Kind EventKind
	Text string
}

// DecodeEvent maps a raw chunk to an Event. Only the first choice is read.
func DecodeEvent(chunk openai.ChatCompletionStreamResponse) Event {
	if len(chunk.Choices) == 0 {
		return Event{Kind: EventTerminal}
	}
	return Event{Kind: EventDelta, Text: chunk.Choices[0].Delta.Content}
}

// StoryStream turns a chat completion stream into a single-pass sequence of text fragments.
type StoryStream struct {
	src  ChunkReceiver
	used atomic.Bool
}

// NewStoryStream wraps src. The stream takes ownership of src and closes it.
func NewStoryStream(src ChunkReceiver) *StoryStream {
	return &StoryStream{src: src}
}

// Fragments returns the text fragments in arrival order. Nothing is read until the
// first pull, and each pull blocks until the next chunk arrives.
// Terminal chunks are skipped; empty deltas are yielded as "".
// A receive error other than io.EOF is yielded once and ends the sequence.
func (s *StoryStream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		defer s.src.Close()

		for {
			chunk, err := s.src.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("story stream: %w", err))
				return
			}
			ev := DecodeEvent(chunk)
			if ev.Kind == EventTerminal {
				continue
			}
			if !yield(ev.Text, nil) {
				return
			}
		}
	}
}

// Collect drains the stream and returns the concatenated text.
// On failure the text received so far is returned together with the error.
func Collect(s *StoryStream) (string, error) {
	var b strings.Builder
	for fragment, err := range s.Fragments() {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}
