package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/aerochat/internal/banner"
	"github.com/ashureev/aerochat/internal/chat"
	"github.com/ashureev/aerochat/internal/config"
	"github.com/ashureev/aerochat/internal/session"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatHandler serves the page state, the credential gate and chat turns.
type ChatHandler struct {
	*Handler
	driver  *chat.Driver
	persona *config.Persona
	banner  banner.Provider
	limits  config.LimitsConfig
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler, driver *chat.Driver, persona *config.Persona, bp banner.Provider, limits config.LimitsConfig) *ChatHandler {
	if limits.MaxRequestBodyBytes <= 0 {
		limits.MaxRequestBodyBytes = 1 << 20
	}
	return &ChatHandler{
		Handler: base,
		driver:  driver,
		persona: persona,
		banner:  bp,
		limits:  limits,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/page", h.Page)
		r.Put("/credential", h.SetCredential)
		r.Delete("/credential", h.ClearCredential)
		r.Post("/chat", h.Chat)
		r.Delete("/session", h.ResetSession)
		r.Get("/banner", h.Banner)
		r.Post("/banner", h.UploadBanner)
	})
}

type pageResponse struct {
	Persona  *config.Persona `json:"persona"`
	Gated    bool            `json:"gated"`
	Notice   *session.Notice `json:"notice,omitempty"`
	Banner   bannerView      `json:"banner"`
	Messages []messageView   `json:"messages,omitempty"`
}

// Page returns everything the browser needs to render the page.
// A gated session gets the banner and the notice only.
func (h *ChatHandler) Page(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	resp := pageResponse{
		Persona: h.persona,
		Gated:   sess.Gated(),
		Banner:  h.bannerView(r.Context(), sess),
	}

	if resp.Gated {
		resp.Notice = &session.Notice{Kind: "gated", Message: h.persona.GatedNotice}
		JSON(w, http.StatusOK, resp)
		return
	}

	if n, ok := sess.Notice(); ok {
		resp.Notice = &n
	}
	resp.Messages = viewsOf(sess.Transcript().Visible())
	JSON(w, http.StatusOK, resp)
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// SetCredential stores the API key for the session. The key is never echoed.
func (h *ChatHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	var req credentialRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess.SetCredential(req.APIKey)
	slog.Info("Session credential updated", "session_key", sess.Key, "gated", sess.Gated())
	JSON(w, http.StatusOK, map[string]bool{"gated": sess.Gated()})
}

// ClearCredential drops the API key, gating the session again.
func (h *ChatHandler) ClearCredential(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.ClearCredential()
	slog.Info("Session credential cleared", "session_key", sess.Key)
	JSON(w, http.StatusOK, map[string]bool{"gated": true})
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat runs one turn and streams it as server-sent events: user, then
// fragment events, then done or error.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	slog.Info("Chat request",
		"session_key", sess.Key,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	out := &sseWriter{w: w, flusher: flusher}
	res := h.driver.Turn(r.Context(), sess, req.Message, &eventSink{emit: out.send})

	if status, ev, rejected := rejection(res); rejected && !out.started {
		Error(w, status, ev.Message)
		return
	}
	h.recordTurn(context.WithoutCancel(r.Context()), sess, res)
}

// ResetSession destroys the session: transcript, credential and upload.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	h.sessions.Destroy(sess.Key)
	if err := h.repo.DeleteSession(r.Context(), sess.Key); err != nil {
		slog.Error("Failed to delete session record", "session_key", sess.Key, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *ChatHandler) recordTurn(ctx context.Context, sess *session.Session, res chat.Result) {
	var committed bool
	switch res.Outcome {
	case chat.OutcomeCommitted:
		committed = true
	case chat.OutcomeFailed:
	default:
		return
	}
	if err := h.repo.RecordTurn(ctx, sess.Key, committed, h.now()); err != nil {
		slog.Warn("Failed to record turn", "session_key", sess.Key, "turn_id", res.TurnID, "error", err)
	}
}

// decode reads a size-capped JSON body into v, writing the error response
// itself when it fails.
func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// sseWriter starts the event stream on the first event so a turn that is
// rejected up front can still answer with a plain JSON status.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) send(event string, payload any) error {
	if !s.started {
		s.started = true
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if err := writeSSE(s.w, event, string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
