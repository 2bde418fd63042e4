package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
)

type stubStatus struct {
	count   int
	err     error
	pending bool
}

func (s *stubStatus) ActiveCount(context.Context) (int, error) { return s.count, s.err }
func (s *stubStatus) HasPending(context.Context, string) bool  { return s.pending }

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", target, err)
	}
	return w.Code, body
}

func TestHealthServer_Health(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &stubStatus{count: 3})
	code, body := get(t, hs, "/health")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHealthServer_Status(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &stubStatus{count: 5, pending: true})
	code, body := get(t, hs, "/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if int(body["active_products"].(float64)) != 5 {
		t.Errorf("expected active_products 5, got %v", body["active_products"])
	}
	if body["pending"] != true {
		t.Errorf("expected pending true, got %v", body["pending"])
	}
}

func TestHealthServer_StatusDegraded(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &stubStatus{err: errors.New("database is locked")})
	_, body := get(t, hs, "/status")
	if body["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", body["status"])
	}
}

func TestHealthServer_DebugContextOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t, nil)
	hs := app.NewHealthServer("127.0.0.1:0", f.app)

	w := httptest.NewRecorder()
	hs.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/context", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("debug endpoint mounted by default: %d", w.Code)
	}

	hs.EnableDebug(f.app)
	w = httptest.NewRecorder()
	hs.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/context?top=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var full catalogctx.FullContext
	if err := json.NewDecoder(w.Body).Decode(&full); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if full.Stock.Active != 3 {
		t.Errorf("active = %d, want 3", full.Stock.Active)
	}

	code, _ := get(t, hs, "/debug/context?top=abc")
	if code != http.StatusBadRequest {
		t.Errorf("bad top: expected 400, got %d", code)
	}
}

func TestHealthServer_Chat(t *testing.T) {
	f := newFixture(t, nil)
	hs := app.NewHealthServer("127.0.0.1:0", f.app)
	hs.EnableChat(f.app)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		hs.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))
		return w
	}

	w := post(`{"message":"cambia el precio del #12 a 25"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Mode         string `json:"mode"`
		Confirmation struct {
			PendingID string `json:"pending_id"`
		} `json:"confirmation"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "execute" || resp.Confirmation.PendingID == "" {
		t.Fatalf("response = %+v", resp)
	}

	w = post(`{"signal":{"type":"confirm","pending_id":"` + resp.Confirmation.PendingID + `"}}`)
	if !strings.Contains(w.Body.String(), `"pending.confirmed"`) {
		t.Errorf("confirm response = %s", w.Body.String())
	}

	if w := post(`{"signal":{"type":"maybe"}}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown signal: expected 400, got %d", w.Code)
	}
	if w := post(`{"mensaje":"hola"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field: expected 400, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	hs.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /chat: expected 405, got %d", w.Code)
	}
}
