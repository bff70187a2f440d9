// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/session"
	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// SessionStore implements session.Store with an in-memory map.
// Thread-safe for concurrent access; the single mutex also serialises
// per-agent baseline and drift writes.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a session by agent id.
// Returns session.ErrSessionNotFound if it doesn't exist.
func (s *SessionStore) Get(ctx context.Context, agentID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return copySession(sess), nil
}

// List returns all live sessions.
func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, copySession(sess))
	}
	return result, nil
}

// InitBaseline creates the session if absent and sets the baseline
// only when none exists. First writer wins; later callers get the
// stored session back unchanged.
func (s *SessionStore) InitBaseline(ctx context.Context, agentID string, baseline *vector.Intent) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(agentID)
	if sess.Baseline == nil {
		b := *baseline
		sess.Baseline = &b
	}
	sess.LastSeen = s.now()
	return copySession(sess), nil
}

// RecordCall appends to the bounded history and refreshes activity.
func (s *SessionStore) RecordCall(ctx context.Context, agentID string, call session.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(agentID)
	sess.History = append(sess.History, call)
	if len(sess.History) > session.MaxHistory {
		sess.History = sess.History[len(sess.History)-session.MaxHistory:]
	}
	sess.CallCount++
	sess.LastSeen = s.now()
	return nil
}

// UpdateDrift accumulates drift against the stored baseline. Without a
// baseline it returns 0 and leaves the session untouched.
func (s *SessionStore) UpdateDrift(ctx context.Context, agentID string, current *vector.Intent) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok || sess.Baseline == nil {
		return 0, nil
	}

	d := session.Drift(sess.Baseline, current)
	sess.CumulativeDrift += d
	cur := *current
	sess.LastVector = &cur
	sess.LastSeen = s.now()
	return d, nil
}

// Delete removes a session. Unknown agents are a no-op.
func (s *SessionStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, agentID)
	return nil
}

// SweepExpired removes every session expired at now.
func (s *SessionStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			swept++
		}
	}
	return swept, nil
}

// Size returns the number of sessions currently stored.
// Useful for testing sweep behavior.
func (s *SessionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) getOrCreateLocked(agentID string) *session.Session {
	sess, ok := s.sessions[agentID]
	if !ok {
		sess = &session.Session{
			AgentID:   agentID,
			CreatedAt: s.now(),
			LastSeen:  s.now(),
		}
		s.sessions[agentID] = sess
	}
	return sess
}

// copySession creates a deep copy of a session.
func copySession(sess *session.Session) *session.Session {
	out := *sess
	out.History = make([]session.Call, len(sess.History))
	copy(out.History, sess.History)
	if sess.Baseline != nil {
		b := *sess.Baseline
		out.Baseline = &b
	}
	if sess.LastVector != nil {
		v := *sess.LastVector
		out.LastVector = &v
	}
	return &out
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
