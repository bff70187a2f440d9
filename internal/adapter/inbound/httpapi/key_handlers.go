package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
)

// issueKeyRequest is the JSON body for creating an API key.
type issueKeyRequest struct {
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// issueKeyResponse carries the raw key exactly once.
type issueKeyResponse struct {
	Key *auth.APIKey `json:"key"`
	Raw string       `json:"raw_key"`
}

// handleIssueKey creates a key for the caller's tenant.
// POST /api/v1/keys
func (h *APIHandler) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	if h.keyring == nil {
		h.respondError(w, http.StatusInternalServerError, "keyring not configured")
		return
	}

	var req issueKeyRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	role := auth.Role(req.Role)
	if !role.IsValid() {
		h.respondError(w, http.StatusBadRequest, "unknown role")
		return
	}

	p := principalFrom(r.Context())
	key, raw, err := h.keyring.Issue(r.Context(), p.TenantID, req.Name, role, req.ExpiresAt)
	if err != nil {
		loggerFrom(r.Context()).Error("failed to issue api key", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to issue api key")
		return
	}
	h.respondJSON(w, http.StatusCreated, issueKeyResponse{Key: key, Raw: raw})
}

// handleRevokeKey revokes an API key.
// DELETE /api/v1/keys/{id}
func (h *APIHandler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if h.keyring == nil {
		h.respondError(w, http.StatusInternalServerError, "keyring not configured")
		return
	}

	if err := h.keyring.Revoke(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			h.respondError(w, http.StatusNotFound, "api key not found")
			return
		}
		loggerFrom(r.Context()).Error("failed to revoke api key", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to revoke api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
