package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthAllPass(t *testing.T) {
	h := New(
		Checker{Name: "transport", Check: func(ctx context.Context) error { return nil }},
		Checker{Name: "stt", Check: func(ctx context.Context) error { return nil }},
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("expected status ok, got %q", res.Status)
	}
}

func TestHealthOneFails(t *testing.T) {
	h := New(
		Checker{Name: "transport", Check: func(ctx context.Context) error { return nil }},
		Checker{Name: "tts", Check: func(ctx context.Context) error { return errors.New("no engine loadable") }},
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRegisterRoute(t *testing.T) {
	mux := http.NewServeMux()
	h := New()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
