package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

// TestHealth tests the liveness probe.
func TestHealth(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handlers.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status healthy, got %s", resp.Status)
	}
	if resp.Checks["runtime"] != "ok" {
		t.Errorf("expected runtime check ok, got %s", resp.Checks["runtime"])
	}
}

// TestHealth_MethodNotAllowed tests method enforcement.
func TestHealth_MethodNotAllowed(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	handlers.Health(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
}

// TestReady_NoDatabase tests readiness with in-memory stores.
func TestReady_NoDatabase(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{MetricsEnabled: true})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("expected status ready, got %s", resp.Status)
	}
	if resp.Checks["database"] != "ok" {
		t.Errorf("expected database check ok, got %s", resp.Checks["database"])
	}
	if resp.Checks["metrics"] != "ok" {
		t.Errorf("expected metrics check ok, got %s", resp.Checks["metrics"])
	}
}

// TestReady_DatabaseHealthy tests readiness with a passing DB checker.
func TestReady_DatabaseHealthy(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{DBChecker: &fakeChecker{}})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

// TestReady_DatabaseDown tests readiness with a failing DB checker.
func TestReady_DatabaseDown(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker: &fakeChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("expected status not_ready, got %s", resp.Status)
	}
	if resp.Checks["database"] != "error" {
		t.Errorf("expected database check error, got %s", resp.Checks["database"])
	}
}

// TestReady_CacheDown tests that a failing cache checker is reported
// without flipping readiness.
func TestReady_CacheDown(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker:    &fakeChecker{},
		CacheChecker: &fakeChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handlers.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Checks["cache"] != "error" {
		t.Errorf("expected cache check error, got %s", resp.Checks["cache"])
	}
}
