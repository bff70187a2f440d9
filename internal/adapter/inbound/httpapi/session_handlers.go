package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/session"
)

const (
	defaultSessionPageSize = 50
	maxSessionPageSize     = 500
)

// sessionResponse is the telemetry view of a session. The raw vectors
// stay server-side.
type sessionResponse struct {
	AgentID         string         `json:"agent_id"`
	CreatedAt       time.Time      `json:"created_at"`
	LastSeen        time.Time      `json:"last_seen"`
	CallCount       int            `json:"call_count"`
	CumulativeDrift float64        `json:"cumulative_drift"`
	HasBaseline     bool           `json:"has_baseline"`
	History         []session.Call `json:"history,omitempty"`
}

func toSessionResponse(s *session.Session, includeHistory bool) sessionResponse {
	resp := sessionResponse{
		AgentID:         s.AgentID,
		CreatedAt:       s.CreatedAt,
		LastSeen:        s.LastSeen,
		CallCount:       s.CallCount,
		CumulativeDrift: s.CumulativeDrift,
		HasBaseline:     s.Baseline != nil,
	}
	if includeHistory {
		resp.History = s.History
	}
	return resp
}

// sessionListResponse wraps a session page with its paging cursor.
type sessionListResponse struct {
	Sessions []sessionResponse `json:"sessions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// handleListSessions returns live sessions, newest activity first,
// paginated with limit/offset and filtered by agent_id, last decision
// and activity time range.
// GET /api/v1/sessions?limit=50&offset=0&agent_id=...&decision=block&since=...&until=...
func (h *APIHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, http.StatusInternalServerError, "session service not configured")
		return
	}

	limit := queryInt(r, "limit", defaultSessionPageSize)
	if limit <= 0 || limit > maxSessionPageSize {
		limit = defaultSessionPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	agentFilter := r.URL.Query().Get("agent_id")
	decisionFilter, hasDecision := parseDecisionFilter(r.URL.Query().Get("decision"))
	since, hasSince := queryTime(r, "since")
	until, hasUntil := queryTime(r, "until")

	all, err := h.sessions.List(r.Context())
	if err != nil {
		loggerFrom(r.Context()).Error("failed to list sessions", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	filtered := all[:0:0]
	for _, s := range all {
		if agentFilter != "" && s.AgentID != agentFilter {
			continue
		}
		if hasSince && s.LastSeen.Before(since) {
			continue
		}
		if hasUntil && s.LastSeen.After(until) {
			continue
		}
		if hasDecision && (len(s.History) == 0 || s.History[len(s.History)-1].Decision != decisionFilter) {
			continue
		}
		filtered = append(filtered, s)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].LastSeen.After(filtered[j].LastSeen)
	})

	page := sessionListResponse{
		Sessions: []sessionResponse{},
		Total:    len(filtered),
		Limit:    limit,
		Offset:   offset,
	}
	for i := offset; i < len(filtered) && i < offset+limit; i++ {
		page.Sessions = append(page.Sessions, toSessionResponse(filtered[i], false))
	}
	h.respondJSON(w, http.StatusOK, page)
}

// handleGetSession returns one agent's session with its call history.
// GET /api/v1/sessions/{agent_id}
func (h *APIHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, http.StatusInternalServerError, "session service not configured")
		return
	}

	agentID := r.PathValue("agent_id")
	s, err := h.sessions.Get(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		loggerFrom(r.Context()).Error("failed to get session", "agent_id", agentID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	h.respondJSON(w, http.StatusOK, toSessionResponse(s, true))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryTime(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseDecisionFilter accepts the wire decision as either the numeric
// code or its label.
func parseDecisionFilter(raw string) (int, bool) {
	switch raw {
	case "0", "block", "BLOCK":
		return 0, true
	case "1", "allow", "ALLOW":
		return 1, true
	default:
		return 0, false
	}
}
