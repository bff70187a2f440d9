package httpapi

import (
	"errors"
	"net/http"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// handleListBoundaries returns every boundary of the caller's tenant.
// GET /api/v1/boundaries
func (h *APIHandler) handleListBoundaries(w http.ResponseWriter, r *http.Request) {
	if h.boundaries == nil {
		h.respondError(w, http.StatusInternalServerError, "boundary service not configured")
		return
	}

	p := principalFrom(r.Context())
	list, err := h.boundaries.List(r.Context(), p.TenantID)
	if err != nil {
		loggerFrom(r.Context()).Error("failed to list boundaries", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list boundaries")
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

// handleInstallBoundary validates, encodes and installs a boundary.
// POST /api/v1/boundaries
func (h *APIHandler) handleInstallBoundary(w http.ResponseWriter, r *http.Request) {
	if h.boundaries == nil {
		h.respondError(w, http.StatusInternalServerError, "boundary service not configured")
		return
	}

	var b boundary.Boundary
	if err := h.readJSON(w, r, &b); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	// The tenant always comes from the credential, never the payload.
	b.TenantID = principalFrom(r.Context()).TenantID

	installed, err := h.boundaries.Install(r.Context(), &b)
	if err != nil {
		if errors.Is(err, boundary.ErrInvalidBoundary) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		loggerFrom(r.Context()).Error("failed to install boundary", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to install boundary")
		return
	}
	h.respondJSON(w, http.StatusCreated, installed)
}

// handleGetBoundary returns one boundary.
// GET /api/v1/boundaries/{id}
func (h *APIHandler) handleGetBoundary(w http.ResponseWriter, r *http.Request) {
	if h.boundaries == nil {
		h.respondError(w, http.StatusInternalServerError, "boundary service not configured")
		return
	}

	id := r.PathValue("id")
	p := principalFrom(r.Context())
	b, err := h.boundaries.Get(r.Context(), p.TenantID, id)
	if err != nil {
		if errors.Is(err, boundary.ErrBoundaryNotFound) {
			h.respondError(w, http.StatusNotFound, "boundary not found")
			return
		}
		loggerFrom(r.Context()).Error("failed to get boundary", "boundary_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get boundary")
		return
	}
	h.respondJSON(w, http.StatusOK, b)
}

// handleRemoveBoundary removes a boundary. Idempotent.
// DELETE /api/v1/boundaries/{id}
func (h *APIHandler) handleRemoveBoundary(w http.ResponseWriter, r *http.Request) {
	if h.boundaries == nil {
		h.respondError(w, http.StatusInternalServerError, "boundary service not configured")
		return
	}

	id := r.PathValue("id")
	p := principalFrom(r.Context())
	if err := h.boundaries.Remove(r.Context(), p.TenantID, id); err != nil {
		loggerFrom(r.Context()).Error("failed to remove boundary", "boundary_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to remove boundary")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
