// Package transcript holds the ordered, append-only message history of one
// chat session.
package transcript

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/aerochat/internal/domain"
)

// ErrInvalidRole is returned when Append is called with a role other than
// user or assistant.
var ErrInvalidRole = errors.New("transcript: only user and assistant messages can be appended")

// Transcript is an append-only sequence of messages that always starts with
// exactly one system message.
//
// The system message is fixed at construction. Appends come from the single
// flow driving the session; reads may happen concurrently.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// New creates a transcript seeded with the given system instruction.
func New(systemPrompt string) *Transcript {
	return &Transcript{
		messages: []domain.Message{{Role: domain.RoleSystem, Content: systemPrompt}},
	}
}

// Append adds a user or assistant message to the end of the transcript.
func (t *Transcript) Append(role domain.Role, content string) error {
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return fmt.Errorf("%w: got %q", ErrInvalidRole, role)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, domain.Message{Role: role, Content: content})
	return nil
}

// Snapshot returns a copy of the full transcript, system message first.
func (t *Transcript) Snapshot() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Visible returns a copy of the displayable messages, in order, without the
// system message.
func (t *Transcript) Visible() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, 0, len(t.messages)-1)
	return append(out, t.messages[1:]...)
}

// Len returns the number of messages including the system message.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// SystemPrompt returns the content of the seeding system message.
func (t *Transcript) SystemPrompt() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.messages[0].Content
}
