package handlers

import (
	"net/http"
	"time"

	"github.com/foodeli/api/internal/repositories"
)

// HealthHandlers exposes liveness and readiness probes.
type HealthHandlers struct {
	health repositories.HealthRepository
	clock  func() time.Time
	start  time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the wall clock, for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs probe handlers. A nil repository makes readiness
// report only process liveness.
func NewHealthHandlers(health repositories.HealthRepository, opts ...HealthOption) *HealthHandlers {
	handlers := &HealthHandlers{
		health: health,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(handlers)
	}
	handlers.start = handlers.clock()
	return handlers
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.start).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz probes backing dependencies and reports 503 until all are reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}

	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, payload)
		return
	}

	status, err := h.health.Check(r.Context())
	if err != nil {
		payload["status"] = "error"
		payload["error"] = err.Error()
		writeJSONResponse(w, http.StatusServiceUnavailable, payload)
		return
	}

	payload["checks"] = status.Details
	if !status.Healthy {
		payload["status"] = "degraded"
		writeJSONResponse(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
