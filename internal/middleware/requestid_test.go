package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_AssignsFreshID(t *testing.T) {
	var seenID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/teams/t/rankings", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seenID == "" {
		t.Fatal("no request ID in handler context")
	}
	if _, err := uuid.Parse(seenID); err != nil {
		t.Errorf("generated ID %q is not a UUID: %v", seenID, err)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seenID {
		t.Errorf("response header = %q, want the context's ID %q", got, seenID)
	}
}

func TestRequestID_KeepsInboundID(t *testing.T) {
	const inbound = "proxy-assigned-42"
	var seenID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/teams/t/rankings", nil)
	req.Header.Set(RequestIDHeader, inbound)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seenID != inbound {
		t.Errorf("context ID = %q, want inbound %q", seenID, inbound)
	}
	if got := rr.Header().Get(RequestIDHeader); got != inbound {
		t.Errorf("response header = %q, want inbound %q", got, inbound)
	}
}

func TestGetRequestID_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
