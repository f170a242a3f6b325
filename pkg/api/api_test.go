package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ngoyal88/auditrelay/pkg/cache"
	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/storage"
)

const testToken = "tok-123"

func newTestAPI(t *testing.T, store storage.Store) http.Handler {
	t.Helper()
	cfgs := config.NewStore(&config.Config{
		Auth:    config.AuthConfig{Token: testToken},
		Listing: config.ListingConfig{DefaultLimit: 2, MaxLimit: 3},
	})
	mux := http.NewServeMux()
	New(cfgs, store, nil).RegisterRoutes(mux)
	mux.Handle("/", Root(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	return mux
}

func seededStore(t *testing.T, n int) *storage.LogStore {
	t.Helper()
	store := storage.NewLogStore(cache.NewMemoryKV(), 0)
	for i := 1; i <= n; i++ {
		rec := &storage.CaptureRecord{ID: fmt.Sprintf("id-%d", i), Timestamp: int64(i * 100), Method: "POST", Status: 200}
		if err := store.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}
	return store
}

func get(h http.Handler, method, target string, authed bool) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	if authed {
		r.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

type listBody struct {
	Logs       []storage.CaptureRecord `json:"logs"`
	NextBefore *int64                  `json:"nextBefore"`
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listBody {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var b listBody
	if err := json.NewDecoder(w.Body).Decode(&b); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return b
}

func ids(b listBody) []string {
	var out []string
	for _, rec := range b.Logs {
		out = append(out, rec.ID)
	}
	return out
}

func TestLogs_RequireAuth(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 1))
	for _, target := range []string{"/api/logs", "/api/logs/id-1"} {
		w := get(h, http.MethodGet, target, false)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", target, w.Code)
		}
	}
}

func TestLogs_ListPagination(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 3))

	first := decodeList(t, get(h, http.MethodGet, "/api/logs", true))
	if got := strings.Join(ids(first), ","); got != "id-3,id-2" {
		t.Fatalf("first page = %s", got)
	}
	if first.NextBefore == nil || *first.NextBefore != 200 {
		t.Fatalf("nextBefore = %v, want 200", first.NextBefore)
	}

	second := decodeList(t, get(h, http.MethodGet, fmt.Sprintf("/api/logs?before=%d", *first.NextBefore), true))
	if got := strings.Join(ids(second), ","); got != "id-1" {
		t.Errorf("second page = %s", got)
	}
	if second.NextBefore != nil {
		t.Errorf("nextBefore = %d on the last page", *second.NextBefore)
	}
}

func TestLogs_ListLimits(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 5))

	tests := []struct {
		query string
		want  int
	}{
		{"limit=1", 1},
		{"limit=1000", 3},
		{"limit=0", 1},
		{"limit=2.9", 2},
		{"limit=abc", 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			b := decodeList(t, get(h, http.MethodGet, "/api/logs?"+tt.query, true))
			if len(b.Logs) != tt.want {
				t.Errorf("got %d logs, want %d", len(b.Logs), tt.want)
			}
		})
	}
}

func TestLogs_EmptyListIsArray(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 0))
	w := get(h, http.MethodGet, "/api/logs", true)
	if !strings.Contains(w.Body.String(), `"logs":[]`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestLogs_Detail(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 2))

	w := get(h, http.MethodGet, "/api/logs/id-2", true)
	var body struct {
		Log storage.CaptureRecord `json:"log"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Log.ID != "id-2" {
		t.Errorf("detail = %+v, %v", body, err)
	}

	w = get(h, http.MethodGet, "/api/logs/missing", true)
	if w.Code != http.StatusNotFound || w.Body.String() != "{\"error\":\"not_found\"}\n" {
		t.Errorf("missing: %d %s", w.Code, w.Body)
	}
}

func TestLogs_MethodsAndPreflight(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 1))

	w := get(h, http.MethodPost, "/api/logs", true)
	if w.Code != http.StatusMethodNotAllowed || w.Body.String() != "{\"error\":\"method_not_allowed\"}\n" {
		t.Errorf("POST: %d %s", w.Code, w.Body)
	}

	w = get(h, http.MethodOptions, "/api/logs", false)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("OPTIONS: %d %v", w.Code, w.Header())
	}
}

type downStore struct{ storage.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	w := get(newTestAPI(t, seededStore(t, 0)), http.MethodGet, "/health", false)
	if w.Code != http.StatusOK || w.Body.String() != "{\"ok\":true}\n" {
		t.Errorf("healthy: %d %s", w.Code, w.Body)
	}

	w = get(newTestAPI(t, downStore{seededStore(t, 0)}), http.MethodGet, "/health", false)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status %d", w.Code)
	}
}

func TestRootRedirectsAndFallsThrough(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 0))

	w := get(h, http.MethodGet, "/", false)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/api/logs" {
		t.Errorf("/: %d %s", w.Code, w.Header().Get("Location"))
	}
	if w := get(h, http.MethodPost, "/v1/chat/completions", false); w.Code != http.StatusTeapot {
		t.Errorf("proxy path: status %d", w.Code)
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newTestAPI(t, seededStore(t, 1))

	tests := []struct {
		name         string
		target       string
		wantStatus   int
		wantLocation string
	}{
		{"valid token", "/login?t=" + testToken + "&next=/api/logs/id-1", http.StatusFound, "/api/logs/id-1"},
		{"default next", "/login?t=" + testToken, http.StatusFound, "/api/logs"},
		{"offsite next ignored", "/login?t=" + testToken + "&next=//evil.example.com", http.StatusFound, "/api/logs"},
		{"wrong token", "/login?t=nope", http.StatusUnauthorized, ""},
		{"no token", "/login", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, http.MethodGet, tt.target, false)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.wantLocation)
			}
		})
	}

	w := get(h, http.MethodGet, "/login?t="+testToken, false)
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	c := cookies[0]
	if c.Name != "proxy_token" || !c.HttpOnly || c.MaxAge != sessionMaxAge || c.SameSite != http.SameSiteLaxMode || c.Secure {
		t.Errorf("cookie = %+v", c)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	r.AddCookie(c)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, r)
	if rw.Code != http.StatusOK {
		t.Errorf("cookie session: status %d", rw.Code)
	}

	w = get(h, http.MethodGet, "/logout", false)
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Errorf("logout Set-Cookie = %q", w.Header().Get("Set-Cookie"))
	}
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{"3.9", 3, true},
		{"-1.5", -2, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"Infinity", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, ok := intParam(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("intParam(%q) = %d, %v", tt.in, got, ok)
		}
	}
}
