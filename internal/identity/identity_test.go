package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/aerochat/internal/domain"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]*domain.SessionRecord
	getErr  error
	upserts int
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*domain.SessionRecord)}
}

func (m *memRepo) GetSession(_ context.Context, key string) (*domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.records[key], nil
}

func (m *memRepo) UpsertSession(_ context.Context, rec *domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.records[rec.Key] = rec
	return nil
}

func (m *memRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }
func (m *memRepo) RecordTurn(context.Context, string, bool, time.Time) error { return nil }
func (m *memRepo) ExpiredSessions(context.Context, time.Duration) ([]*domain.SessionRecord, error) {
	return nil, nil
}
func (m *memRepo) DeleteSession(context.Context, string) error { return nil }
func (m *memRepo) DeleteAllSessions(context.Context) (int64, error) { return 0, nil }
func (m *memRepo) Ping(context.Context) error { return nil }
func (m *memRepo) Close() error { return nil }

func serve(t *testing.T, repo *memRepo, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var gotUser, gotSession string
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, gotUser, gotSession
}

func TestMiddlewareIssuesCookieAndRecord(t *testing.T) {
	repo := newMemRepo()
	rec, userID, sessionID := serve(t, repo, httptest.NewRequest(http.MethodGet, "/api/page", nil))

	if !isValidAnonID(userID) {
		t.Fatalf("user id %q is not a valid anonymous id", userID)
	}
	if sessionID != DefaultSessionIDValue {
		t.Errorf("session id = %q, want %q", sessionID, DefaultSessionIDValue)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != userID {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if _, ok := repo.records[domain.SessionKey(userID, sessionID)]; !ok {
		t.Error("expected a session record to be created")
	}
}

func TestMiddlewareReusesCookieAndHeader(t *testing.T) {
	repo := newMemRepo()
	existing := "anon_0123456789abcdef0123456789abcdef"

	req := httptest.NewRequest(http.MethodGet, "/api/page", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: existing})
	req.Header.Set(SessionHeaderName, "tab-42")

	_, userID, sessionID := serve(t, repo, req)
	if userID != existing || sessionID != "tab-42" {
		t.Fatalf("got %q/%q", userID, sessionID)
	}

	serve(t, repo, req)
	if repo.upserts != 1 {
		t.Errorf("upserts = %d, want 1", repo.upserts)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin"})

	_, userID, _ := serve(t, newMemRepo(), req)
	if userID == "admin" || !isValidAnonID(userID) {
		t.Errorf("forged cookie accepted: %q", userID)
	}
}

func TestMiddlewareStoreFailure(t *testing.T) {
	repo := newMemRepo()
	repo.getErr = errors.New("disk gone")

	rec, userID, _ := serve(t, repo, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if userID != "" {
		t.Error("next handler should not run")
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":            DefaultSessionIDValue,
		"  tab-1  ":   "tab-1",
		"a:b":         DefaultSessionIDValue,
		"../../etc":   DefaultSessionIDValue,
		"tab_2.alpha": "tab_2.alpha",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionKeyFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), "anon_x", "tab")
	if got := SessionKeyFromContext(ctx); got != "anon_x:tab" {
		t.Errorf("SessionKeyFromContext() = %q", got)
	}
}
