package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/routegate/gateway/internal/api/middleware"
)

func TestTelemetry_InvokesNextHandlerAndPreservesResponse(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("traced"))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	middleware.Telemetry(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected next handler to run")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "traced" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTelemetry_CarriesForwardedProtoIntoScheme(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	// Telemetry doesn't expose scheme directly, but it must not panic or
	// alter the response when the header is present.
	middleware.Telemetry(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
