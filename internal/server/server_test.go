package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

func TestHandleHealthz(t *testing.T) {
	s := &Server{log: logger.NewNop(), metrics: metrics.New()}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	s := &Server{log: logger.NewNop(), metrics: m}

	handler := s.httpMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if got := m.HTTPRequests.WithLabels(http.MethodGet, "/v1/query", "418").Value(); got != 1 {
		t.Errorf("http requests counter = %d, want 1", got)
	}
	if got := m.HTTPRequestsInFlight.Value(); got != 0 {
		t.Errorf("in flight = %v, want 0 after completion", got)
	}
}

func TestStatusWriterDefaultsToOK(t *testing.T) {
	m := metrics.New()
	s := &Server{log: logger.NewNop(), metrics: m}

	handler := s.httpMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := m.HTTPRequests.WithLabels(http.MethodGet, "/healthz", "200").Value(); got != 1 {
		t.Errorf("http requests counter = %d, want 1 with implicit 200", got)
	}
}
