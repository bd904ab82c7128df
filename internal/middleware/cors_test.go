package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(allowed []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(allowed)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	req := httptest.NewRequest(method, "/api/page", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	rec, called := serveCORS([]string{"https://chat.example.com"}, http.MethodGet, "https://chat.example.com")

	if !called {
		t.Fatal("next handler not called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
}

func TestCORSWildcardNeverAllowsCredentials(t *testing.T) {
	rec, _ := serveCORS([]string{"*"}, http.MethodGet, "https://evil.example.com")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://evil.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want empty", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"https://chat.example.com"}, http.MethodGet, "https://other.example.com")

	if !called {
		t.Fatal("next handler not called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec, called := serveCORS([]string{"*"}, http.MethodOptions, "http://localhost:5173")

	if called {
		t.Error("preflight should not reach the next handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Aerochat-Session-ID" {
		t.Errorf("Allow-Headers = %q", got)
	}
}
