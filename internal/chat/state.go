// Package chat drives one conversational turn: it records the user message,
// streams the completion and commits the reply.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/aerochat/internal/completion"
	"github.com/ashureev/aerochat/internal/session"
)

var (
	// ErrEmptyInput is returned for blank submissions; nothing is recorded.
	ErrEmptyInput = errors.New("chat: message is required")
	// ErrGated is returned when the session has no credential.
	ErrGated = errors.New("chat: an API key is required before chatting")
	// ErrTurnInFlight is returned when the session is already streaming a reply.
	ErrTurnInFlight = errors.New("chat: a reply is still streaming for this session")
)

// State is a step of the per-turn state machine.
type State int

const (
	StateIdle State = iota
	StateSubmitted
	StateStreaming
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateStreaming:
		return "streaming"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarizes how a turn ended.
type Outcome string

const (
	// OutcomeCommitted means the reply was appended to the transcript.
	OutcomeCommitted Outcome = "committed"
	// OutcomeFailed means the completion failed; only the user message was kept.
	OutcomeFailed Outcome = "failed"
	// OutcomeIgnored means the input was blank.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeGated means the session has no credential.
	OutcomeGated Outcome = "gated"
	// OutcomeBusy means another turn was in flight.
	OutcomeBusy Outcome = "busy"
)

// Result is the explicit result of a turn.
type Result struct {
	TurnID    string
	Outcome   Outcome
	Reply     string
	Fragments int
	Duration  time.Duration
	Err       error
}

// Committed reports whether the turn appended an assistant reply.
func (r Result) Committed() bool {
	return r.Outcome == OutcomeCommitted
}

// NoticeFor converts a turn failure into the notice shown to the visitor.
func NoticeFor(err error) session.Notice {
	n := session.Notice{At: time.Now()}
	if err != nil {
		n.Detail = err.Error()
	}

	switch kind := completion.KindOf(err); kind {
	case completion.KindAuth:
		n.Kind = string(kind)
		n.Message = "The API key was rejected. Check the key in the sidebar and try again."
	case completion.KindQuota:
		n.Kind = string(kind)
		n.Message = "The API quota is exhausted or the request was rate limited. Try again later."
	case completion.KindNetwork:
		n.Kind = string(kind)
		n.Message = "Could not reach the completion service. Check the connection and resubmit."
	case completion.KindStreamInterrupted:
		n.Kind = string(kind)
		n.Message = "The reply was interrupted before it finished. Please resubmit your question."
	case completion.KindUpstream:
		n.Kind = string(kind)
		n.Message = "The completion service returned an error."
	default:
		n.Kind = "error"
		n.Message = "The reply could not be produced."
	}
	return n
}
