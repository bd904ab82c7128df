// Package session owns per-visitor chat state: the transcript, the
// credential and the optional uploaded banner, keyed by session key.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/ashureev/aerochat/internal/transcript"
)

// Notice is a user-facing message recorded outside the transcript, such as
// the last completion failure.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Upload is an image supplied by the visitor for the banner column.
type Upload struct {
	Data        []byte
	ContentType string
	Name        string
}

// Session is one isolated visitor interaction. The credential lives only
// here and is dropped with the session.
type Session struct {
	Key       string
	UserID    string
	SessionID string
	CreatedAt time.Time

	transcript *transcript.Transcript
	turn       chan struct{}

	mu         sync.Mutex
	credential string
	notice     *Notice
	upload     *Upload
	lastSeen   time.Time
}

func newSession(key, userID, sessionID, systemPrompt string, now time.Time) *Session {
	return &Session{
		Key:        key,
		UserID:     userID,
		SessionID:  sessionID,
		CreatedAt:  now,
		transcript: transcript.New(systemPrompt),
		turn:       make(chan struct{}, 1),
		lastSeen:   now,
	}
}

// Transcript returns the session's conversation store.
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// SetCredential stores the API key for this session. Surrounding whitespace
// is ignored; a blank value gates the session again.
func (s *Session) SetCredential(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = strings.TrimSpace(secret)
}

// ClearCredential forgets the API key.
func (s *Session) ClearCredential() {
	s.SetCredential("")
}

// Credential returns the stored API key, or "" when gated.
func (s *Session) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Gated reports whether the session has no credential yet.
func (s *Session) Gated() bool {
	return s.Credential() == ""
}

// BeginTurn claims the session's single turn slot. The returned release
// func must be called when the turn ends. ok is false if another turn is
// already in flight.
func (s *Session) BeginTurn() (release func(), ok bool) {
	select {
	case s.turn <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.turn }) }, true
	default:
		return func() {}, false
	}
}

// SetNotice records the latest user-facing notice.
func (s *Session) SetNotice(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = &n
}

// ClearNotice drops the recorded notice.
func (s *Session) ClearNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = nil
}

// Notice returns the latest notice, if any.
func (s *Session) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return Notice{}, false
	}
	return *s.notice, true
}

// SetUpload replaces the visitor's banner image.
func (s *Session) SetUpload(u *Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upload = u
}

// Upload returns the visitor's banner image, or nil.
func (s *Session) Upload() *Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

// Touch marks the session as active at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastSeen) {
		s.lastSeen = t
	}
}

// LastSeen returns the last activity time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
