package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/session"
	"github.com/Intent-Gate/Intentgate/internal/telemetry"
	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 10 * time.Minute

// SessionService tracks per-agent baselines and drift over a session
// store and runs the expiry sweeper. Sweeps never block enforcement;
// they run on their own goroutine against the store.
type SessionService struct {
	store   session.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	sweepInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
	once          sync.Once
}

// NewSessionService creates the service. metrics may be nil in tests.
func NewSessionService(store session.Store, logger *slog.Logger, metrics *telemetry.Metrics) *SessionService {
	return &SessionService{
		store:         store,
		logger:        logger,
		metrics:       metrics,
		sweepInterval: DefaultSweepInterval,
		stopChan:      make(chan struct{}),
	}
}

// Track records one enforcement call for an agent: baseline
// initialisation (first writer wins), drift accumulation and history
// append. Returns the per-call drift.
func (s *SessionService) Track(ctx context.Context, agentID string, call session.Call, current *vector.Intent) (float64, error) {
	if _, err := s.store.InitBaseline(ctx, agentID, current); err != nil {
		return 0, err
	}
	drift, err := s.store.UpdateDrift(ctx, agentID, current)
	if err != nil {
		return 0, err
	}
	if err := s.store.RecordCall(ctx, agentID, call); err != nil {
		return 0, err
	}
	return drift, nil
}

// CumulativeDrift returns the accumulated drift for an agent, 0 for
// unknown agents.
func (s *SessionService) CumulativeDrift(ctx context.Context, agentID string) (float64, error) {
	sess, err := s.store.Get(ctx, agentID)
	if err == session.ErrSessionNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sess.CumulativeDrift, nil
}

// Get returns one agent's session.
func (s *SessionService) Get(ctx context.Context, agentID string) (*session.Session, error) {
	return s.store.Get(ctx, agentID)
}

// List returns all live sessions for the telemetry surface.
func (s *SessionService) List(ctx context.Context) ([]*session.Session, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(len(sessions)))
	}
	return sessions, nil
}

// StartSweeper launches the background expiry sweeper. Call Stop (or
// cancel ctx) to shut it down.
func (s *SessionService) StartSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *SessionService) sweep(ctx context.Context) {
	swept, err := s.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	if swept > 0 {
		s.logger.Debug("swept expired sessions", "count", swept)
		if s.metrics != nil {
			s.metrics.SweptSessionsTotal.Add(float64(swept))
		}
	}
}

// Stop stops the sweeper goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *SessionService) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}
