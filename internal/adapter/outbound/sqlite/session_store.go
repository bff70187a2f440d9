package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/session"
	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// SessionStore implements session.Store on sqlite. Immediate
// transactions serialise the per-agent read-modify-write cycles;
// baseline initialisation relies on a conditional UPDATE so the first
// writer wins regardless of interleaving.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore wraps an opened database handle.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a session by agent id.
func (s *SessionStore) Get(ctx context.Context, agentID string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, action_history, call_count, created_at, last_seen_at,
		       baseline, last_vector, cumulative_drift
		FROM sessions WHERE agent_id = ?`, agentID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	return sess, err
}

// List returns all stored sessions.
func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, action_history, call_count, created_at, last_seen_at,
		       baseline, last_vector, cumulative_drift
		FROM sessions ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// InitBaseline creates the session row if absent and sets the baseline
// only where none exists.
func (s *SessionStore) InitBaseline(ctx context.Context, agentID string, baseline *vector.Intent) (*session.Session, error) {
	now := s.now().UnixNano()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (agent_id, created_at, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (agent_id) DO NOTHING`, agentID, now, now); err != nil {
		return nil, fmt.Errorf("init session %s: %w", agentID, err)
	}

	// First writer wins: only a NULL baseline accepts a value.
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET baseline = ?, last_seen_at = ?
		WHERE agent_id = ? AND baseline IS NULL`,
		encodeIntentVector(baseline), now, agentID); err != nil {
		return nil, fmt.Errorf("set baseline %s: %w", agentID, err)
	}

	return s.Get(ctx, agentID)
}

// RecordCall appends to the bounded history and refreshes activity.
func (s *SessionStore) RecordCall(ctx context.Context, agentID string, call session.Call) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record call: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (agent_id, created_at, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (agent_id) DO NOTHING`, agentID, now, now); err != nil {
		return fmt.Errorf("init session %s: %w", agentID, err)
	}

	var rawHistory string
	if err := tx.QueryRowContext(ctx,
		`SELECT action_history FROM sessions WHERE agent_id = ?`, agentID).Scan(&rawHistory); err != nil {
		return fmt.Errorf("read history %s: %w", agentID, err)
	}

	var history []session.Call
	if err := json.Unmarshal([]byte(rawHistory), &history); err != nil {
		return fmt.Errorf("decode history %s: %w", agentID, err)
	}
	history = append(history, call)
	if len(history) > session.MaxHistory {
		history = history[len(history)-session.MaxHistory:]
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", agentID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET action_history = ?, call_count = call_count + 1, last_seen_at = ?
		WHERE agent_id = ?`, string(encoded), now, agentID); err != nil {
		return fmt.Errorf("record call %s: %w", agentID, err)
	}
	return tx.Commit()
}

// UpdateDrift accumulates drift against the stored baseline inside one
// transaction. Without a baseline it returns 0 and mutates nothing.
func (s *SessionStore) UpdateDrift(ctx context.Context, agentID string, current *vector.Intent) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin drift update: %w", err)
	}
	defer tx.Rollback()

	var baselineBlob []byte
	err = tx.QueryRowContext(ctx,
		`SELECT baseline FROM sessions WHERE agent_id = ?`, agentID).Scan(&baselineBlob)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && baselineBlob == nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read baseline %s: %w", agentID, err)
	}

	baseline, err := decodeIntentVector(baselineBlob)
	if err != nil {
		return 0, fmt.Errorf("session %s: %w", agentID, err)
	}

	d := session.Drift(baseline, current)
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET cumulative_drift = cumulative_drift + ?, last_vector = ?, last_seen_at = ?
		WHERE agent_id = ?`,
		d, encodeIntentVector(current), s.now().UnixNano(), agentID); err != nil {
		return 0, fmt.Errorf("update drift %s: %w", agentID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return d, nil
}

// Delete removes a session. Unknown agents are a no-op.
func (s *SessionStore) Delete(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete session %s: %w", agentID, err)
	}
	return nil
}

// SweepExpired deletes sessions idle past the idle TTL or older than
// the absolute TTL.
func (s *SessionStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_seen_at < ? OR created_at < ?`,
		now.Add(-session.IdleTTL).UnixNano(),
		now.Add(-session.AbsoluteTTL).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess          session.Session
		rawHistory    string
		createdAt     int64
		lastSeen      int64
		baselineBlob  []byte
		lastVectorRaw []byte
	)
	err := row.Scan(&sess.AgentID, &rawHistory, &sess.CallCount, &createdAt, &lastSeen,
		&baselineBlob, &lastVectorRaw, &sess.CumulativeDrift)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rawHistory), &sess.History); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", sess.AgentID, err)
	}
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.LastSeen = time.Unix(0, lastSeen).UTC()
	if baselineBlob != nil {
		if sess.Baseline, err = decodeIntentVector(baselineBlob); err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.AgentID, err)
		}
	}
	if lastVectorRaw != nil {
		if sess.LastVector, err = decodeIntentVector(lastVectorRaw); err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.AgentID, err)
		}
	}
	return &sess, nil
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
