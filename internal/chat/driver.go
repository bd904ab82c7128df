package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/aerochat/internal/completion"
	"github.com/ashureev/aerochat/internal/domain"
	"github.com/ashureev/aerochat/internal/session"
	"github.com/google/uuid"
)

// Sink renders a turn as it happens. Errors from a sink stop further
// rendering but never abort the turn.
type Sink interface {
	UserMessage(turnID string, msg domain.Message) error
	Fragment(text string) error
	Committed(msg domain.Message) error
	Failed(notice session.Notice) error
}

// Params are the fixed generation parameters sent with every turn.
type Params struct {
	Model       string
	Temperature float64
	TopP        float64
}

// Driver runs turns against sessions.
type Driver struct {
	factory completion.Factory
	params  Params

	// OnTransition, when set, observes every state change.
	OnTransition func(turnID string, from, to State)
}

// NewDriver creates a driver that builds a completion client per turn.
func NewDriver(factory completion.Factory, params Params) *Driver {
	return &Driver{factory: factory, params: params}
}

// Turn submits input for sess and streams the reply into sink.
//
// Blank input and gated sessions leave the transcript untouched. Otherwise
// the user message is committed first; the reply is committed only if the
// stream completes. Once the stream starts it runs to completion or failure
// even if ctx is cancelled.
func (d *Driver) Turn(ctx context.Context, sess *session.Session, input string, sink Sink) Result {
	res := Result{TurnID: uuid.NewString()}
	start := time.Now()

	if strings.TrimSpace(input) == "" {
		res.Outcome, res.Err = OutcomeIgnored, ErrEmptyInput
		return res
	}

	release, ok := sess.BeginTurn()
	if !ok {
		res.Outcome, res.Err = OutcomeBusy, ErrTurnInFlight
		return res
	}
	defer release()

	credential := sess.Credential()
	if credential == "" {
		res.Outcome, res.Err = OutcomeGated, ErrGated
		return res
	}

	out := &guardedSink{sink: sink, turnID: res.TurnID}
	tr := sess.Transcript()

	userMsg := domain.Message{Role: domain.RoleUser, Content: input}
	if err := tr.Append(userMsg.Role, userMsg.Content); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	sess.ClearNotice()
	d.transition(res.TurnID, StateIdle, StateSubmitted)
	out.do(func(s Sink) error { return s.UserMessage(res.TurnID, userMsg) })

	req := completion.Request{
		Model:       d.params.Model,
		Messages:    tr.Snapshot(),
		Temperature: d.params.Temperature,
		TopP:        d.params.TopP,
	}
	streamer := d.factory(credential)
	d.transition(res.TurnID, StateSubmitted, StateStreaming)

	var reply strings.Builder
	var streamErr error
	for frag, err := range streamer.Stream(context.WithoutCancel(ctx), req) {
		if err != nil {
			streamErr = err
			break
		}
		reply.WriteString(frag)
		res.Fragments++
		out.do(func(s Sink) error { return s.Fragment(frag) })
	}
	res.Duration = time.Since(start)

	if streamErr != nil {
		notice := NoticeFor(streamErr)
		sess.SetNotice(notice)
		d.transition(res.TurnID, StateStreaming, StateIdle)
		out.do(func(s Sink) error { return s.Failed(notice) })

		slog.Warn("Chat turn failed",
			"session_key", sess.Key,
			"turn_id", res.TurnID,
			"kind", notice.Kind,
			"fragments", res.Fragments,
			"error", streamErr,
		)
		res.Outcome, res.Err = OutcomeFailed, streamErr
		return res
	}

	assistantMsg := domain.Message{Role: domain.RoleAssistant, Content: reply.String()}
	if err := tr.Append(assistantMsg.Role, assistantMsg.Content); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	d.transition(res.TurnID, StateStreaming, StateCommitted)
	out.do(func(s Sink) error { return s.Committed(assistantMsg) })
	d.transition(res.TurnID, StateCommitted, StateIdle)

	slog.Info("Chat turn committed",
		"session_key", sess.Key,
		"turn_id", res.TurnID,
		"message_length", len(input),
		"reply_length", len(assistantMsg.Content),
		"fragments", res.Fragments,
		"duration", res.Duration,
	)
	res.Outcome, res.Reply = OutcomeCommitted, assistantMsg.Content
	return res
}

func (d *Driver) transition(turnID string, from, to State) {
	slog.Debug("Chat turn transition", "turn_id", turnID, "from", from, "to", to)
	if d.OnTransition != nil {
		d.OnTransition(turnID, from, to)
	}
}

// guardedSink stops writing after the first sink error.
type guardedSink struct {
	sink   Sink
	turnID string
	dead   bool
}

func (g *guardedSink) do(write func(Sink) error) {
	if g.sink == nil || g.dead {
		return
	}
	if err := write(g.sink); err != nil {
		g.dead = true
		slog.Debug("Chat sink stopped, continuing turn without rendering", "turn_id", g.turnID, "error", err)
	}
}
