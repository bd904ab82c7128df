package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/aerochat/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newRecord(key string, lastSeen time.Time) *domain.SessionRecord {
	return &domain.SessionRecord{
		Key:        key,
		UserID:     "anon_1",
		SessionID:  "tab-1",
		LastSeenAt: lastSeen,
		CreatedAt:  lastSeen,
		UpdatedAt:  lastSeen,
	}
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)

	rec, err := repo.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestUpsertAndRecordTurns(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	if err := repo.UpsertSession(ctx, newRecord("k1", now)); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if err := repo.RecordTurn(ctx, "k1", true, now); err != nil {
		t.Fatalf("RecordTurn committed failed: %v", err)
	}
	if err := repo.RecordTurn(ctx, "k1", true, now); err != nil {
		t.Fatalf("RecordTurn committed failed: %v", err)
	}
	if err := repo.RecordTurn(ctx, "k1", false, now); err != nil {
		t.Fatalf("RecordTurn failed failed: %v", err)
	}

	// A second upsert must not reset counters.
	if err := repo.UpsertSession(ctx, newRecord("k1", now)); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	rec, err := repo.GetSession(ctx, "k1")
	if err != nil || rec == nil {
		t.Fatalf("GetSession failed: %v, %v", rec, err)
	}
	if rec.Turns != 2 || rec.FailedTurns != 1 {
		t.Errorf("expected 2 turns / 1 failed, got %d / %d", rec.Turns, rec.FailedTurns)
	}
	if rec.UserID != "anon_1" || rec.SessionID != "tab-1" {
		t.Errorf("unexpected identity fields: %+v", rec)
	}
}

func TestRecordTurnUnknownSession(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)

	if err := repo.RecordTurn(context.Background(), "ghost", true, time.Now()); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestExpiredSessionsAndDelete(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := repo.UpsertSession(ctx, newRecord("stale", now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if err := repo.UpsertSession(ctx, newRecord("fresh", now)); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	expired, err := repo.ExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpiredSessions failed: %v", err)
	}
	if len(expired) != 1 || expired[0].Key != "stale" {
		t.Fatalf("expected only stale session, got %+v", expired)
	}

	if err := repo.DeleteSession(ctx, "stale"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if rec, _ := repo.GetSession(ctx, "stale"); rec != nil {
		t.Fatalf("expected stale session to be deleted")
	}

	if err := repo.UpdateLastSeen(ctx, "fresh", now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	expired, err = repo.ExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpiredSessions failed: %v", err)
	}
	if len(expired) != 1 || expired[0].Key != "fresh" {
		t.Fatalf("expected fresh session to expire after UpdateLastSeen, got %+v", expired)
	}
}

func TestDeleteAllSessions(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := repo.UpsertSession(ctx, newRecord(key, time.Now())); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
	}

	n, err := repo.DeleteAllSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteAllSessions failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows deleted, got %d", n)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
