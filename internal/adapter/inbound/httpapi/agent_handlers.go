package httpapi

import (
	"net/http"

	"github.com/Intent-Gate/Intentgate/internal/service"
)

// registerAgentRequest is the JSON body for agent registration.
type registerAgentRequest struct {
	ID         string `json:"id"`
	SDKVersion string `json:"sdk_version,omitempty"`
	Framework  string `json:"framework,omitempty"`
	BoundaryID string `json:"boundary_id,omitempty"`
}

// handleRegisterAgent registers an agent or refreshes an existing one.
// POST /api/v1/agents/register
func (h *APIHandler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if h.agents == nil {
		h.respondError(w, http.StatusInternalServerError, "agent registry not configured")
		return
	}

	var req registerAgentRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" {
		h.respondError(w, http.StatusBadRequest, "agent id is required")
		return
	}

	h.agents.Register(service.AgentInfo{
		ID:         req.ID,
		TenantID:   principalFrom(r.Context()).TenantID,
		SDKVersion: req.SDKVersion,
		Framework:  req.Framework,
		BoundaryID: req.BoundaryID,
	})

	info, _ := h.agents.Get(req.ID)
	h.respondJSON(w, http.StatusOK, info)
}

// handleListAgents returns registered agents, newest activity first.
// GET /api/v1/agents
func (h *APIHandler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if h.agents == nil {
		h.respondError(w, http.StatusInternalServerError, "agent registry not configured")
		return
	}

	tenantID := principalFrom(r.Context()).TenantID
	all := h.agents.List()
	result := make([]service.AgentInfo, 0, len(all))
	for _, a := range all {
		if a.TenantID == tenantID {
			result = append(result, a)
		}
	}
	h.respondJSON(w, http.StatusOK, result)
}

// handleUnregisterAgent removes an agent from the registry.
// DELETE /api/v1/agents/{id}
func (h *APIHandler) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	if h.agents == nil {
		h.respondError(w, http.StatusInternalServerError, "agent registry not configured")
		return
	}

	h.agents.Unregister(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
