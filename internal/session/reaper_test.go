package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/aerochat/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*domain.SessionRecord
	deleted []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*domain.SessionRecord)}
}

func (f *fakeRepo) GetSession(_ context.Context, key string) (*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[key]
	if rec == nil {
		return nil, nil
	}
	copy := *rec
	return &copy, nil
}

func (f *fakeRepo) UpsertSession(_ context.Context, rec *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *rec
	f.records[rec.Key] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) RecordTurn(_ context.Context, _ string, _ bool, _ time.Time) error { return nil }

func (f *fakeRepo) ExpiredSessions(_ context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SessionRecord
	for _, rec := range f.records {
		if rec.Expired(ttl, time.Now()) {
			copy := *rec
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeRepo) DeleteAllSessions(_ context.Context) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error { return nil }

func TestReapExpiredSessions(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager("sys")
	past := time.Now().Add(-2 * time.Hour)

	m.now = func() time.Time { return past }
	stale, _ := m.GetOrCreate("anon_a", "stale")
	m.now = time.Now
	fresh, _ := m.GetOrCreate("anon_a", "fresh")

	_ = repo.UpsertSession(context.Background(), &domain.SessionRecord{Key: stale.Key, LastSeenAt: past})
	_ = repo.UpsertSession(context.Background(), &domain.SessionRecord{Key: fresh.Key, LastSeenAt: time.Now()})

	reaped := reapExpiredSessions(context.Background(), repo, m, time.Hour)
	if reaped != 1 {
		t.Fatalf("expected 1 reaped session, got %d", reaped)
	}
	if m.Get(stale.Key) != nil {
		t.Error("expected stale session to be destroyed")
	}
	if m.Get(fresh.Key) == nil {
		t.Error("expected fresh session to survive")
	}
	if rec, _ := repo.GetSession(context.Background(), stale.Key); rec != nil {
		t.Error("expected stale row to be deleted")
	}
}

func TestReapKeepsSessionActiveInMemory(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager("sys")
	s, _ := m.GetOrCreate("anon_a", "tab-1")

	// The row is stale but the live session was just used.
	_ = repo.UpsertSession(context.Background(), &domain.SessionRecord{Key: s.Key, LastSeenAt: time.Now().Add(-2 * time.Hour)})

	if reaped := reapExpiredSessions(context.Background(), repo, m, time.Hour); reaped != 0 {
		t.Fatalf("expected nothing reaped, got %d", reaped)
	}
	if m.Get(s.Key) == nil {
		t.Fatal("expected active session to survive")
	}
}

func TestReapIdleSessionWithoutRow(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager("sys")
	m.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	s, _ := m.GetOrCreate("anon_a", "tab-1")

	if reaped := reapExpiredSessions(context.Background(), repo, m, time.Hour); reaped != 1 {
		t.Fatalf("expected idle session to be reaped, got %d", reaped)
	}
	if m.Get(s.Key) != nil {
		t.Fatal("expected idle session to be destroyed")
	}
}

func TestStartReaperStopsOnCancel(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager("sys")
	m.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	s, _ := m.GetOrCreate("anon_a", "tab-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startReaper(ctx, repo, m, time.Hour, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for m.Get(s.Key) != nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Get(s.Key) != nil {
		t.Fatal("expected reaper to destroy the idle session")
	}
}
