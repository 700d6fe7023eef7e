// Package session keeps the last completed generation per browser session.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/models"
)

const (
	cookieName = "storyteller-session"
	idKey      = "sid"
)

// ErrNoCompletedStory is returned by Completed until a generation has finished.
var ErrNoCompletedStory = errors.New("no completed story to export yet")

// State is what one session remembers between requests.
// It is only written once a story has been fully received.
type State struct {
	Request     models.StoryRequest
	Image       *models.GeneratedImage
	StoryPrompt string
	Story       string
	CompletedAt time.Time
}

// Store maps a signed session cookie to in-memory State.
type Store struct {
	cookies *sessions.CookieStore
	states  *cache.Cache
}

// NewStore creates a store. An empty secret gets a random per-process key,
// which invalidates all sessions on restart.
func NewStore(secret string, ttl time.Duration) (*Store, error) {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		log.Warn().Msg("SESSION_SECRET not set, sessions will not survive a restart")
	}

	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}

	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Store{
		cookies: cookies,
		states:  cache.New(expiration, cleanup),
	}, nil
}

// ID returns the caller's session id, issuing a new cookie on w when the request has none
// or carries one that fails verification.
func (s *Store) ID(w http.ResponseWriter, r *http.Request) (string, error) {
	// A decode error still yields a fresh session.
	sess, _ := s.cookies.Get(r, cookieName)
	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[idKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session cookie: %w", err)
	}
	log.Debug().Str("session_id", id).Msg("Session started")
	return id, nil
}

// Load returns the state for id, if any.
func (s *Store) Load(id string) (State, bool) {
	v, ok := s.states.Get(id)
	if !ok {
		return State{}, false
	}
	st, ok := v.(State)
	return st, ok
}

// Completed returns the state for id when it holds a finished story with some text.
func (s *Store) Completed(id string) (State, error) {
	st, ok := s.Load(id)
	if !ok || strings.TrimSpace(st.Story) == "" {
		return State{}, ErrNoCompletedStory
	}
	return st, nil
}

// Save replaces the state for id and refreshes its expiry.
func (s *Store) Save(id string, st State) {
	s.states.Set(id, st, cache.DefaultExpiration)
}

// Clear drops the state for id.
func (s *Store) Clear(id string) {
	s.states.Delete(id)
}
