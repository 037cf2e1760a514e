package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foodeli/api/internal/repositories"
)

type stubHealthRepository struct {
	status repositories.HealthStatus
	err    error
}

func (r *stubHealthRepository) Check(context.Context) (repositories.HealthStatus, error) {
	return r.status, r.err
}

func TestHealthzReportsUptime(t *testing.T) {
	start := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	now := start
	handlers := NewHealthHandlers(nil, WithHealthClock(func() time.Time { return now }))
	now = start.Add(30 * time.Second)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body["status"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected 30s uptime, got %v", body["uptime"])
	}
}

func TestReadyzHealthy(t *testing.T) {
	handlers := NewHealthHandlers(&stubHealthRepository{status: repositories.HealthStatus{
		Healthy: true,
		Details: map[string]string{"firestore": "ok"},
	}})

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyzDegraded(t *testing.T) {
	handlers := NewHealthHandlers(&stubHealthRepository{status: repositories.HealthStatus{
		Healthy: false,
		Details: map[string]string{"firestore": "timeout"},
	}})

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", body["status"])
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "route_not_found" {
		t.Fatalf("expected route_not_found, got %v", body["error"])
	}
}

func TestRouterHealthEndpointsAlwaysMounted(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /readyz, got %d", rr.Code)
	}
}
