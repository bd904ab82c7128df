package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/aerochat/internal/domain"
)

// Manager keeps the live sessions of this process.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	systemPrompt string
	now          func() time.Time
}

// NewManager creates a manager whose sessions are seeded with systemPrompt.
func NewManager(systemPrompt string) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		now:          time.Now,
	}
}

// GetOrCreate returns the session for userID/sessionID, creating it with a
// fresh transcript on first access. created reports whether it was new.
func (m *Manager) GetOrCreate(userID, sessionID string) (s *Session, created bool) {
	key := domain.SessionKey(userID, sessionID)

	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, false
	}
	s = newSession(key, userID, sessionID, m.systemPrompt, m.now())
	m.sessions[key] = s
	slog.Info("Chat session created", "user_id", userID, "session_id", sessionID)
	return s, true
}

// Get returns the session for key, or nil.
func (m *Manager) Get(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

// Destroy drops the session for key together with its transcript,
// credential and upload. It reports whether a session existed.
func (m *Manager) Destroy(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return false
	}
	delete(m.sessions, key)
	slog.Info("Chat session destroyed", "user_id", s.UserID, "session_id", s.SessionID)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleSince returns the keys of sessions not seen since cutoff.
func (m *Manager) IdleSince(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			keys = append(keys, key)
		}
	}
	return keys
}
