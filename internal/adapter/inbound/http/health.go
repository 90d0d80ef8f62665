package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// EventStats reports the event log queue.
type EventStats interface {
	Pending() int
	Dropped() int64
}

// HealthChecker verifies component health.
type HealthChecker struct {
	stateStore  *state.FileStateStore
	rateLimiter *memory.RateLimiter
	events      EventStats
	version     string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't configured.
func NewHealthChecker(stateStore *state.FileStateStore, rateLimiter *memory.RateLimiter, version string) *HealthChecker {
	return &HealthChecker{
		stateStore:  stateStore,
		rateLimiter: rateLimiter,
		version:     version,
	}
}

// WithEvents adds the event log queue to the report. Dropped events do
// not make the service unhealthy.
func (h *HealthChecker) WithEvents(e EventStats) *HealthChecker {
	h.events = e
	return h
}

// Check performs health checks on all components. An unreadable state
// file makes the service unhealthy, since no mutation could be persisted.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.stateStore != nil {
		appState, err := h.stateStore.Load()
		if err != nil {
			checks["state"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["state"] = fmt.Sprintf("ok: %d roles, %d members", len(appState.Roles), len(appState.Members))
		}
	} else {
		checks["state"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", h.rateLimiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.events != nil {
		checks["events"] = fmt.Sprintf("ok: %d pending, %d dropped", h.events.Pending(), h.events.Dropped())
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
