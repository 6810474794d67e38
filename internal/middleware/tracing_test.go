package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTracing_PassesThrough(t *testing.T) {
	called := false
	handler := Tracing("rowlab-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/teams/t1/rankings", nil)
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("expected wrapped handler to be called")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetTraceID(req); got != "" {
		t.Errorf("expected empty trace ID without a span, got %q", got)
	}
	if got := GetSpanID(req); got != "" {
		t.Errorf("expected empty span ID without a span, got %q", got)
	}
}
