package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/export"
	"github.com/snappy-loop/storyteller/internal/markup"
	"github.com/snappy-loop/storyteller/internal/models"
	"github.com/snappy-loop/storyteller/internal/services"
	"github.com/snappy-loop/storyteller/internal/session"
)

// TopicPlaceholder is the example topic shown in the empty form.
const TopicPlaceholder = "Keanu Reeves riding a Dinosaurs in moon"

// storyGenerator is the subset of StoryService used by the handlers.
type storyGenerator interface {
	Generate(ctx context.Context, req models.StoryRequest, sink services.Sink) (*models.Story, error)
}

// documentExporter renders the last story of a session.
type documentExporter interface {
	Export(doc export.Document) ([]byte, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	stories  storyGenerator
	sessions *session.Store
	exporter documentExporter
}

// NewHandler creates a new handler
func NewHandler(stories storyGenerator, sessions *session.Store, exporter documentExporter) *Handler {
	return &Handler{
		stories:  stories,
		sessions: sessions,
		exporter: exporter,
	}
}

// indexData is passed to the index template.
type indexData struct {
	TopicPlaceholder string
	DefaultMood      string
	DefaultLanguage  string
	Sizes            []models.StorySize
	Last             *lastStoryView
}

// lastStoryView redisplays the session's last completed story after a reload.
type lastStoryView struct {
	Request      models.StoryRequest
	ImageDataURI template.URL
	StoryPrompt  string
	StoryHTML    template.HTML
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start session")
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	data := indexData{
		TopicPlaceholder: TopicPlaceholder,
		DefaultMood:      models.DefaultMood,
		DefaultLanguage:  models.DefaultLanguage,
		Sizes:            models.StorySizes,
	}
	if st, ok := h.sessions.Load(id); ok {
		data.Last = &lastStoryView{
			Request:      st.Request,
			ImageDataURI: template.URL(imageDataURI(st.Image)),
			StoryPrompt:  st.StoryPrompt,
			// StoryToHTML escapes its input.
			StoryHTML: template.HTML(markup.StoryToHTML(st.Story)),
		}
	}

	page, err := executeTemplateToBytes("index", data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// Export handles GET /export. It returns 409 until the session has a completed story.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "session error")
		return
	}

	st, err := h.sessions.Completed(id)
	if err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	doc := export.Document{
		Title: export.DefaultTitle,
		Topic: st.Request.Topic,
		Story: st.Story,
	}
	if st.Image != nil {
		doc.Image = st.Image.Bitmap
	}

	pdf, err := h.exporter.Export(doc)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to export story")
		writeJSONError(w, http.StatusInternalServerError, "failed to export story")
		return
	}

	w.Header().Set("Content-Type", export.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func imageDataURI(img *models.GeneratedImage) string {
	if img == nil || len(img.Data) == 0 {
		return ""
	}
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
