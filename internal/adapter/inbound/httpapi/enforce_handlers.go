package httpapi

import (
	"net/http"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

// handleEnforce evaluates one intent event and returns the verdict.
// POST /api/v1/enforce
func (h *APIHandler) handleEnforce(w http.ResponseWriter, r *http.Request) {
	if h.enforcement == nil {
		h.respondError(w, http.StatusInternalServerError, "enforcement not configured")
		return
	}

	var ev intent.Event
	if err := h.readJSON(w, r, &ev); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	p := principalFrom(r.Context())
	switch {
	case ev.TenantID == "":
		ev.TenantID = p.TenantID
	case ev.TenantID != p.TenantID && p.Role != auth.RoleAdmin:
		h.respondError(w, http.StatusForbidden, "tenant mismatch")
		return
	}
	if ev.ID == "" {
		ev.ID = intent.NewEventID()
	}
	if ev.SchemaVersion == "" {
		ev.SchemaVersion = intent.SchemaV12
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.enforcement.Enforce(r.Context(), &ev)
	if err != nil {
		// Store or snapshot failure. No verdict is produced, so the
		// transport error itself is the block.
		loggerFrom(r.Context()).Error("enforcement failed", "event_id", ev.ID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "enforcement unavailable")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}
