// Package domain contains core domain types for the aerochat application.
package domain

import (
	"time"
)

// SessionRecord is the activity metadata kept for a chat session.
// It never carries message content or the session credential.
type SessionRecord struct {
	Key         string    `json:"key"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Turns       int       `json:"turns"`
	FailedTurns int       `json:"failed_turns"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionKey joins the anonymous user id and the tab session id.
func SessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// IdleFor returns how long the session has been inactive as of now.
func (s *SessionRecord) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(s.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Expired reports whether the session has been idle longer than ttl.
func (s *SessionRecord) Expired(ttl time.Duration, now time.Time) bool {
	return s.IdleFor(now) > ttl
}
