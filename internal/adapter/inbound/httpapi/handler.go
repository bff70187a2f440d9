// Package httpapi provides the JSON management and enforcement API for
// the gateway: intent enforcement, boundary CRUD, agent registration,
// session telemetry and API-key management.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
	"github.com/Intent-Gate/Intentgate/internal/service"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// APIHandler carries the services behind the JSON API.
type APIHandler struct {
	enforcement *service.EnforcementService
	boundaries  *service.BoundaryService
	sessions    *service.SessionService
	agents      *service.AgentRegistry
	keyring     *auth.Keyring
	logger      *slog.Logger
}

// Option configures an APIHandler dependency.
type Option func(*APIHandler)

// WithEnforcement sets the enforcement engine.
func WithEnforcement(s *service.EnforcementService) Option {
	return func(h *APIHandler) { h.enforcement = s }
}

// WithBoundaries sets the boundary management service.
func WithBoundaries(s *service.BoundaryService) Option {
	return func(h *APIHandler) { h.boundaries = s }
}

// WithSessions sets the session telemetry service.
func WithSessions(s *service.SessionService) Option {
	return func(h *APIHandler) { h.sessions = s }
}

// WithAgents sets the agent registry.
func WithAgents(r *service.AgentRegistry) Option {
	return func(h *APIHandler) { h.agents = r }
}

// WithKeyring enables bearer authentication. Without it every request
// runs as an admin of the "default" tenant, for development only.
func WithKeyring(k *auth.Keyring) Option {
	return func(h *APIHandler) { h.keyring = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *APIHandler) { h.logger = l }
}

// NewAPIHandler creates an APIHandler with the given options.
func NewAPIHandler(opts ...Option) *APIHandler {
	h := &APIHandler{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API routes wrapped with auth and request-id
// middleware.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/enforce", h.require(auth.RoleAgent, h.handleEnforce))

	mux.Handle("GET /api/v1/boundaries", h.require(auth.RoleReadOnly, h.handleListBoundaries))
	mux.Handle("POST /api/v1/boundaries", h.require(auth.RoleAdmin, h.handleInstallBoundary))
	mux.Handle("GET /api/v1/boundaries/{id}", h.require(auth.RoleReadOnly, h.handleGetBoundary))
	mux.Handle("DELETE /api/v1/boundaries/{id}", h.require(auth.RoleAdmin, h.handleRemoveBoundary))

	mux.Handle("POST /api/v1/agents/register", h.require(auth.RoleAgent, h.handleRegisterAgent))
	mux.Handle("GET /api/v1/agents", h.require(auth.RoleReadOnly, h.handleListAgents))
	mux.Handle("DELETE /api/v1/agents/{id}", h.require(auth.RoleAdmin, h.handleUnregisterAgent))

	mux.Handle("GET /api/v1/sessions", h.require(auth.RoleReadOnly, h.handleListSessions))
	mux.Handle("GET /api/v1/sessions/{agent_id}", h.require(auth.RoleReadOnly, h.handleGetSession))

	mux.Handle("POST /api/v1/keys", h.require(auth.RoleAdmin, h.handleIssueKey))
	mux.Handle("DELETE /api/v1/keys/{id}", h.require(auth.RoleAdmin, h.handleRevokeKey))

	return h.requestIDMiddleware(h.authMiddleware(mux))
}

// require wraps a handler with a role check against the authenticated
// principal.
func (h *APIHandler) require(role auth.Role, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p == nil {
			h.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !p.Can(role) {
			h.respondError(w, http.StatusForbidden, "insufficient role")
			return
		}
		fn(w, r)
	})
}

// --- JSON helpers ---

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *APIHandler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
