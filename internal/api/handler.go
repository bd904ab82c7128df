// Package api provides HTTP handlers for the chat API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/aerochat/internal/identity"
	"github.com/ashureev/aerochat/internal/session"
	"github.com/ashureev/aerochat/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	now      func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		now:      time.Now,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// session returns the caller's chat session, creating it on first use, and
// marks it active.
func (h *Handler) session(r *http.Request) *session.Session {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	sess, _ := h.sessions.GetOrCreate(userID, sessionID)
	h.touch(r.Context(), sess)
	return sess
}

func (h *Handler) touch(ctx context.Context, sess *session.Session) {
	now := h.now()
	sess.Touch(now)
	if err := h.repo.UpdateLastSeen(ctx, sess.Key, now); err != nil {
		slog.Warn("Failed to update session activity", "session_key", sess.Key, "error", err)
	}
}
