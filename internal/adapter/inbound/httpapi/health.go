package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Intent-Gate/Intentgate/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health. Components may be nil.
type HealthChecker struct {
	sessions *service.SessionService
	agents   *service.AgentRegistry
	version  string
}

// NewHealthChecker creates a HealthChecker over the given components.
func NewHealthChecker(sessions *service.SessionService, agents *service.AgentRegistry, version string) *HealthChecker {
	return &HealthChecker{sessions: sessions, agents: agents, version: version}
}

// Check probes each configured component.
func (h *HealthChecker) Check(r *http.Request) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.sessions != nil {
		// List acquires the store lock; a wedged store surfaces here.
		sessions, err := h.sessions.List(r.Context())
		if err != nil {
			checks["sessions"] = fmt.Sprintf("error: %v", err)
			healthy = false
		} else {
			checks["sessions"] = fmt.Sprintf("ok: %d live", len(sessions))
		}
	} else {
		checks["sessions"] = "not configured"
	}

	if h.agents != nil {
		checks["agents"] = fmt.Sprintf("ok: %d registered", len(h.agents.List()))
	} else {
		checks["agents"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns the HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r)

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
