package flowguard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newMiddlewareClient(t *testing.T) *Client {
	t.Helper()
	content := `
mode: continuity
senders: [svc-a]
patterns:
  - name: http
    ids: [7, -7]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := New(WithConfig(path), WithCaller("svc-a"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMiddlewareAllowsApprovedRequest(t *testing.T) {
	c := newMiddlewareClient(t)
	handler := c.Middleware(7, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMiddlewareRejectsUnknownSender(t *testing.T) {
	c := newMiddlewareClient(t)
	handler := c.Middleware(7, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a blocked sender")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(CallerHeader, "svc-evil")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["blocked"] != true || body["reason"] == "" {
		t.Errorf("unexpected block body: %v", body)
	}
}

func TestMiddlewareRejectsUnapprovedFlow(t *testing.T) {
	c := newMiddlewareClient(t)

	// Routine 9 has no approved pattern; the block lands on exit, and
	// the handler deliberately writes nothing so the 403 can still go out.
	handler := c.Middleware(9, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareEachRequestIsOwnTransaction(t *testing.T) {
	c := newMiddlewareClient(t)

	var sessions []string
	handler := c.Middleware(7, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions = append(sessions, c.Status().Session)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}

	if len(sessions) != 2 || sessions[0] == sessions[1] {
		t.Errorf("expected two distinct transaction identities, got %v", sessions)
	}
}
