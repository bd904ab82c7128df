package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/aerochat/internal/identity"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler carries chat turns over a websocket. Each "chat" message
// runs one turn; the server answers with the same events as the SSE
// endpoint, wrapped as {"type": event, "data": payload}.
type WebSocketHandler struct {
	chat          *ChatHandler
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(chat *ChatHandler, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		chat:          chat,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage is a client message.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsEnvelope is a server message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := identity.SessionKeyFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_key", key, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_key", key)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_key", key)
		}
	}()

	h.readLoop(r, ws)
	slog.Info("WebSocket chat ended", "session_key", key)
}

func (h *WebSocketHandler) readLoop(r *http.Request, ws *websocket.Conn) {
	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "error", err)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.writeJSON(ws, wsEnvelope{Type: eventError, Data: errorEvent{Kind: "bad_request", Message: "invalid message"}}); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "ping":
			err = h.writeJSON(ws, wsEnvelope{Type: "pong"})
		case "chat":
			err = h.turn(r, ws, msg.Content)
		default:
			err = h.writeJSON(ws, wsEnvelope{Type: eventError, Data: errorEvent{Kind: "bad_request", Message: "unknown message type"}})
		}
		if err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
	}
}

// turn runs one chat turn. The session is looked up per message so a reset
// from another request takes effect on the open socket.
func (h *WebSocketHandler) turn(r *http.Request, ws *websocket.Conn, content string) error {
	sess := h.chat.session(r)

	var writeErr error
	sink := &eventSink{emit: func(event string, payload any) error {
		writeErr = h.writeJSON(ws, wsEnvelope{Type: event, Data: payload})
		return writeErr
	}}

	res := h.chat.driver.Turn(r.Context(), sess, content, sink)
	if _, ev, rejected := rejection(res); rejected {
		return h.writeJSON(ws, wsEnvelope{Type: eventError, Data: ev})
	}
	h.chat.recordTurn(context.WithoutCancel(r.Context()), sess, res)
	return writeErr
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
