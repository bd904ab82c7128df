package api

import (
	"html"
	"net/http"
	"strings"

	"github.com/ashureev/aerochat/internal/chat"
	"github.com/ashureev/aerochat/internal/domain"
	"github.com/ashureev/aerochat/internal/render"
	"github.com/ashureev/aerochat/internal/session"
)

// Turn event names shared by the SSE and websocket transports.
const (
	eventUser     = "user"
	eventFragment = "fragment"
	eventDone     = "done"
	eventError    = "error"
)

// messageView is a transcript message as the browser renders it.
type messageView struct {
	TurnID  string `json:"turn_id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html"`
}

type fragmentEvent struct {
	Text string `json:"text"`
}

type errorEvent struct {
	TurnID  string `json:"turn_id,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func viewOf(msg domain.Message) messageView {
	v := messageView{Role: string(msg.Role), Content: msg.Content}
	if msg.Role == domain.RoleAssistant {
		v.HTML = render.Markdown(msg.Content)
	} else {
		v.HTML = "<p>" + strings.ReplaceAll(html.EscapeString(msg.Content), "\n", "<br>") + "</p>"
	}
	return v
}

func viewsOf(msgs []domain.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, viewOf(m))
	}
	return views
}

// eventSink adapts a transport's emit func to chat.Sink.
type eventSink struct {
	emit   func(event string, payload any) error
	turnID string
}

var _ chat.Sink = (*eventSink)(nil)

func (s *eventSink) UserMessage(turnID string, msg domain.Message) error {
	s.turnID = turnID
	v := viewOf(msg)
	v.TurnID = turnID
	return s.emit(eventUser, v)
}

func (s *eventSink) Fragment(text string) error {
	return s.emit(eventFragment, fragmentEvent{Text: text})
}

func (s *eventSink) Committed(msg domain.Message) error {
	v := viewOf(msg)
	v.TurnID = s.turnID
	return s.emit(eventDone, v)
}

func (s *eventSink) Failed(n session.Notice) error {
	return s.emit(eventError, errorEvent{TurnID: s.turnID, Kind: n.Kind, Message: n.Message, Detail: n.Detail})
}

// rejection describes a turn that never started.
func rejection(res chat.Result) (status int, ev errorEvent, ok bool) {
	switch res.Outcome {
	case chat.OutcomeIgnored:
		return http.StatusBadRequest, errorEvent{Kind: "empty", Message: "message is required"}, true
	case chat.OutcomeGated:
		return http.StatusForbidden, errorEvent{Kind: "gated", Message: "an API key is required before chatting"}, true
	case chat.OutcomeBusy:
		return http.StatusConflict, errorEvent{Kind: "busy", Message: "a reply is still streaming for this session"}, true
	default:
		return 0, errorEvent{}, false
	}
}
