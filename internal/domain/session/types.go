// Package session contains domain types for per-agent behavioural
// sessions and drift tracking.
package session

import (
	"errors"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// Expiry policy. A session dies when idle past IdleTTL or when older
// than AbsoluteTTL regardless of activity.
const (
	IdleTTL     = 30 * time.Minute
	AbsoluteTTL = 24 * time.Hour
)

// MaxHistory bounds the per-session action history. Oldest entries are
// evicted first.
const MaxHistory = 256

// Call is one recorded enforcement decision for an agent.
type Call struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Decision  int       `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
}

// Session tracks one agent's behavioural baseline and accumulated
// drift. The baseline is written once by the first caller and never
// mutated afterwards; cumulative drift only grows.
type Session struct {
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen_at"`
	CallCount int       `json:"call_count"`
	History   []Call    `json:"action_history"`

	// Baseline is the first intent vector observed for this agent.
	// Nil until initialised.
	Baseline *vector.Intent `json:"-"`
	// LastVector is the most recent intent vector.
	LastVector *vector.Intent `json:"-"`

	CumulativeDrift float64 `json:"cumulative_drift"`
}

// Expired reports whether the session is past either TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return s.LastSeen.Before(now.Add(-IdleTTL)) || s.CreatedAt.Before(now.Add(-AbsoluteTTL))
}

// Drift returns the per-call drift of current against the baseline:
// 1 minus the mean of the per-slot cosines, floored at 0. Slot vectors
// are unit-normalised, so the full dot product is the sum of the four
// slot cosines and dividing by the slot count yields the mean.
func Drift(baseline, current *vector.Intent) float64 {
	const slots = vector.IntentDim / vector.SlotDim
	d := 1 - float64(vector.DotIntent(*baseline, *current))/slots
	if d < 0 {
		return 0
	}
	return d
}

// ErrSessionNotFound is returned by stores for unknown agents.
var ErrSessionNotFound = errors.New("session not found")
