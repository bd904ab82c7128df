package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/aerochat/internal/store"
)

const reaperInterval = 5 * time.Minute

// StartReaper runs a background goroutine that periodically destroys
// sessions idle for longer than ttl and deletes their activity rows.
func StartReaper(ctx context.Context, repo store.Repository, mgr *Manager, ttl time.Duration) {
	startReaper(ctx, repo, mgr, ttl, reaperInterval)
}

func startReaper(ctx context.Context, repo store.Repository, mgr *Manager, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				reapExpiredSessions(ctx, repo, mgr, ttl)
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapExpiredSessions(ctx context.Context, repo store.Repository, mgr *Manager, ttl time.Duration) int {
	reaped := 0

	expired, err := repo.ExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("Session reaper failed to get expired sessions", "error", err)
	}
	for _, rec := range expired {
		// A turn after the row was last written keeps the session alive.
		if s := mgr.Get(rec.Key); s != nil && time.Since(s.LastSeen()) <= ttl {
			continue
		}
		if mgr.Destroy(rec.Key) {
			reaped++
		}
		if err := repo.DeleteSession(ctx, rec.Key); err != nil {
			slog.Warn("Session reaper failed to delete session row",
				"error", err,
				"user_id", rec.UserID,
				"session_id", rec.SessionID)
		}
	}

	// Sessions whose rows were never written still expire from memory.
	for _, key := range mgr.IdleSince(time.Now().Add(-ttl)) {
		if mgr.Destroy(key) {
			reaped++
		}
		if err := repo.DeleteSession(ctx, key); err != nil {
			slog.Warn("Session reaper failed to delete session row", "error", err)
		}
	}

	if reaped > 0 {
		slog.Info("Session reaper cleanup completed", "reaped", reaped, "live", mgr.Len())
	}
	return reaped
}
