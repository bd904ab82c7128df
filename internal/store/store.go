// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/aerochat/internal/domain"
)

// Repository persists chat session activity metadata.
// Message content and credentials are never stored.
type Repository interface {
	// GetSession retrieves a session record by key. Returns nil, nil when absent.
	GetSession(ctx context.Context, key string) (*domain.SessionRecord, error)

	// UpsertSession creates or refreshes a session record.
	UpsertSession(ctx context.Context, rec *domain.SessionRecord) error

	// UpdateLastSeen updates the last_seen_at timestamp for a session.
	UpdateLastSeen(ctx context.Context, key string, lastSeen time.Time) error

	// RecordTurn bumps the turn counters of a session and marks it as seen.
	RecordTurn(ctx context.Context, key string, committed bool, at time.Time) error

	// ExpiredSessions retrieves sessions idle for longer than ttl.
	ExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error)

	// DeleteSession removes a session record.
	DeleteSession(ctx context.Context, key string) error

	// DeleteAllSessions removes every record and returns how many were deleted.
	DeleteAllSessions(ctx context.Context) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
