package session

import (
	"context"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// Store persists agent sessions. Implementations serialise writes per
// agent; baseline initialisation is first-writer-wins.
// Implementations: sqlite (durable), in-memory (default, test).
type Store interface {
	// Get retrieves a session by agent id.
	// Returns ErrSessionNotFound when no live session exists.
	Get(ctx context.Context, agentID string) (*Session, error)

	// List returns all live sessions.
	List(ctx context.Context) ([]*Session, error)

	// InitBaseline creates the session if absent and sets its baseline
	// vector only when no baseline exists yet. Returns the resulting
	// session; a concurrent loser sees the winner's baseline.
	InitBaseline(ctx context.Context, agentID string, baseline *vector.Intent) (*Session, error)

	// RecordCall appends to the bounded history, bumps the call count
	// and refreshes last_seen_at, creating the session if absent.
	RecordCall(ctx context.Context, agentID string, call Call) error

	// UpdateDrift accumulates per-call drift of current against the
	// stored baseline and overwrites the last vector. Without a
	// baseline it returns 0 and mutates nothing.
	UpdateDrift(ctx context.Context, agentID string, current *vector.Intent) (float64, error)

	// Delete removes a session. Unknown agents are not an error.
	Delete(ctx context.Context, agentID string) error

	// SweepExpired removes every session expired at now and returns
	// how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
