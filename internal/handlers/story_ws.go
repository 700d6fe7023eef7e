package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/markup"
	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/snappy-loop/storyteller/internal/services"
	"github.com/snappy-loop/storyteller/internal/session"
)

const (
	storyWSReadLimit = 16 << 10
	storyWSIdle      = 10 * time.Minute
)

var storyWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// storyWSInMessage is the JSON shape sent from the client.
type storyWSInMessage struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Mood     string `json:"mood"`
	Language string `json:"language"`
	Size     string `json:"size"`
}

// storyWSOutMessage is the JSON shape sent to the client.
type storyWSOutMessage struct {
	Type      string `json:"type"` // status, warning, error, image, prompt, fragment, done
	Message   string `json:"message,omitempty"`
	Image     string `json:"image,omitempty"` // data URI
	SourceURL string `json:"source_url,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
}

// storyWSFragment is a fragment message. Text is always present, even when empty.
type storyWSFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StoryWS handles GET /ws/generate: one generation per "generate" message,
// streamed back as status, image, prompt and fragment messages.
func (h *Handler) StoryWS(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.sessions.ID(w, r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start session")
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	// Upgrade writes its own response; carry over the session cookie.
	respHeader := http.Header{}
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		respHeader["Set-Cookie"] = cookies
	}

	conn, err := storyWSUpgrader.Upgrade(w, r, respHeader)
	if err != nil {
		log.Warn().Err(err).Msg("story ws upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(storyWSReadLimit)
	conn.SetReadDeadline(time.Now().Add(storyWSIdle))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(storyWSIdle))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Debug().Err(err).Msg("story ws read")
			return
		}
		conn.SetReadDeadline(time.Now().Add(storyWSIdle))

		var in storyWSInMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			_ = writeWSJSON(conn, storyWSOutMessage{Type: "error", Message: "invalid JSON: " + err.Error()})
			continue
		}
		if in.Type != "generate" {
			_ = writeWSJSON(conn, storyWSOutMessage{Type: "error", Message: "expected type: generate"})
			continue
		}

		req := models.StoryRequest{
			Topic:    in.Topic,
			Mood:     in.Mood,
			Language: in.Language,
			Size:     models.StorySize(in.Size),
		}
		if err := h.generate(r.Context(), conn, sessionID, req); err != nil {
			log.Debug().Err(err).Msg("story ws write")
			return
		}
	}
}

// generate runs one cycle and reports its outcome. It returns an error only when the
// connection is no longer writable.
func (h *Handler) generate(ctx context.Context, conn *websocket.Conn, sessionID string, req models.StoryRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A new generation replaces whatever the session showed before.
	h.sessions.Clear(sessionID)

	sink := &wsSink{conn: conn, cancel: cancel}
	story, err := h.stories.Generate(ctx, req, sink)
	if werr := sink.failed(); werr != nil {
		return werr
	}

	switch {
	case err == nil:
		h.sessions.Save(sessionID, session.State{
			Request:     story.Request,
			Image:       story.Image,
			StoryPrompt: story.StoryPrompt,
			Story:       story.Text,
			CompletedAt: *story.FinishedAt,
		})
		return writeWSJSON(conn, storyWSOutMessage{Type: "done", HTML: markup.StoryToHTML(story.Text)})
	case errors.Is(err, services.ErrEmptyTopic):
		// the sink already sent the warning
		return nil
	default:
		return writeWSJSON(conn, storyWSOutMessage{Type: "error", Message: userMessage(err)})
	}
}

// userMessage turns a generation error into the text shown in the page.
func userMessage(err error) string {
	var stageErr *services.StageError
	if !errors.As(err, &stageErr) {
		return err.Error()
	}
	if stageErr.Stage == services.StageImage {
		return "Failed to generate image: " + stageErr.Err.Error()
	}
	return "Failed to generate story: " + stageErr.Err.Error()
}

// wsSink forwards generation progress to the socket. After the first write error
// it cancels the generation and drops further messages.
type wsSink struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *wsSink) send(msg interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := writeWSJSON(s.conn, msg); err != nil {
		s.err = err
		s.cancel()
	}
}

func (s *wsSink) failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSink) Status(msg string) { s.send(storyWSOutMessage{Type: "status", Message: msg}) }
func (s *wsSink) Warning(msg string) { s.send(storyWSOutMessage{Type: "warning", Message: msg}) }
func (s *wsSink) Prompt(p string) { s.send(storyWSOutMessage{Type: "prompt", Prompt: p}) }
func (s *wsSink) Fragment(t string) { s.send(storyWSFragment{Type: "fragment", Text: t}) }

func (s *wsSink) Image(img *models.GeneratedImage) {
	s.send(storyWSOutMessage{Type: "image", Image: imageDataURI(img), SourceURL: img.SourceURL})
}

func writeWSJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	return conn.WriteJSON(v)
}
