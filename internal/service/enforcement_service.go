package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	celmod "github.com/Intent-Gate/Intentgate/internal/adapter/outbound/cel"
	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
	"github.com/Intent-Gate/Intentgate/internal/domain/session"
	"github.com/Intent-Gate/Intentgate/internal/encoder"
	"github.com/Intent-Gate/Intentgate/internal/telemetry"
	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// EnforcementService produces a comparison result for each incoming
// intent. This is the hottest path in the system: it only reads the
// boundary snapshot and carries no state of its own besides the
// session side effects.
type EnforcementService struct {
	boundaries *BoundaryService
	enc        *encoder.Encoder
	sessions   *SessionService // nil disables drift tracking
	modifier   *celmod.Modifier
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer

	applicability boundary.ApplicabilityOptions

	lastCacheHits   atomic.Int64
	lastCacheMisses atomic.Int64
}

// NewEnforcementService creates the engine. sessions, modifier and
// metrics may be nil.
func NewEnforcementService(boundaries *BoundaryService, enc *encoder.Encoder,
	sessions *SessionService, modifier *celmod.Modifier,
	logger *slog.Logger, metrics *telemetry.Metrics,
	applicability boundary.ApplicabilityOptions) *EnforcementService {
	return &EnforcementService{
		boundaries:    boundaries,
		enc:           enc,
		sessions:      sessions,
		modifier:      modifier,
		logger:        logger,
		metrics:       metrics,
		tracer:        otel.Tracer("intentgate/enforcement"),
		applicability: applicability,
	}
}

// localEval is one applicable boundary's evaluation against the
// intent vector.
type localEval struct {
	installed     boundary.Installed
	sims          [boundary.NumSlices]float32
	passed        bool
	applicability float64
}

// Enforce runs the full decision pipeline for one event. It always
// returns a result when err is nil; errors are reserved for store
// failures, which callers treat as BLOCK.
func (s *EnforcementService) Enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "enforce",
		trace.WithAttributes(
			attribute.String("tenant_id", ev.TenantID),
			attribute.String("action", ev.Action),
			attribute.String("actor_id", ev.Actor.ID),
		))
	defer span.End()

	if err := ev.Validate(); err != nil {
		return nil, err
	}

	result, err := s.decide(ctx, ev)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("decision", result.Decision),
		attribute.String("reason", result.Reason),
	)
	s.observe(result, time.Since(start))
	s.logger.Info("enforcement decision",
		"request_id", result.RequestID,
		"tenant_id", ev.TenantID,
		"actor_id", ev.Actor.ID,
		"action", ev.Action,
		"decision", result.Decision,
		"reason", result.Reason,
		"boundaries_evaluated", result.RulesEvaluated,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (s *EnforcementService) decide(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	result := &boundary.ComparisonResult{
		RequestID: ev.ID,
		Decision:  boundary.DecisionBlock,
		Timestamp: time.Now().UTC(),
		Evidence:  []boundary.Evidence{},
	}

	iv, err := s.enc.EncodeIntent(ctx, ev)
	if err != nil {
		result.Reason = boundary.ReasonEncodingFailed
		result.Warning = "intent encoding failed, failing closed"
		s.logger.Warn("intent encoding failed", "request_id", ev.ID, "error", err)
		return result, nil
	}

	active, err := s.boundaries.Active(ctx, ev.TenantID)
	if err != nil {
		s.logger.Error("boundary snapshot read failed", "tenant_id", ev.TenantID, "error", err)
		return nil, err
	}

	if len(active) == 0 {
		// Cold start: nothing installed yet is an explicit allow so a
		// fresh deployment is not bricked, but callers are warned.
		result.Decision = boundary.DecisionAllow
		result.Reason = boundary.ReasonNoBoundariesInstalled
		result.Warning = "no boundaries installed for tenant"
		result.Similarities = [boundary.NumSlices]float32{1, 1, 1, 1}
		s.trackSession(ctx, ev, &iv, result)
		return result, nil
	}

	evals := s.evaluate(active, ev, &iv)
	result.RulesEvaluated = len(evals)

	if len(evals) == 0 {
		result.Reason = boundary.ReasonNoApplicableBoundaries
		s.trackSession(ctx, ev, &iv, result)
		return result, nil
	}

	s.aggregate(evals, result)
	s.trackSession(ctx, ev, &iv, result)
	s.applyDriftThreshold(evals, result)
	s.applyModifications(ctx, evals, ev, result)
	return result, nil
}

// evaluate filters active boundaries through the applicability rules
// and computes per-slice similarities plus the local decision for the
// survivors. Deny boundaries come first in the input (the snapshot is
// priority-ordered) and keep that order in the output.
func (s *EnforcementService) evaluate(active []boundary.Installed, ev *intent.Event, iv *vector.Intent) []localEval {
	var evals []localEval
	for _, inst := range active {
		app := boundary.CheckApplicability(inst.Boundary, ev, s.applicability)
		if !app.Applicable {
			continue
		}

		var sims [boundary.NumSlices]float32
		for slice := 0; slice < boundary.NumSlices; slice++ {
			set := &inst.Anchors.Slices[slice]
			sims[slice] = vector.MaxAnchorSimilarity(iv.Slot(slice), &set.Matrix, set.Count)
		}

		evals = append(evals, localEval{
			installed:     inst,
			sims:          sims,
			passed:        localDecision(inst.Boundary, sims),
			applicability: app.Score,
		})
	}
	return evals
}

// localDecision applies the boundary's decision mode. Comparisons are
// inclusive: a similarity exactly at its threshold passes.
func localDecision(b *boundary.Boundary, sims [boundary.NumSlices]float32) bool {
	for slice := 0; slice < boundary.NumSlices; slice++ {
		if float64(sims[slice]) < b.Thresholds[slice] {
			return false
		}
	}
	if b.Mode != boundary.ModeWeightedAvg {
		return true
	}

	var weighted, total float64
	for slice := 0; slice < boundary.NumSlices; slice++ {
		weighted += b.Weights[slice] * float64(sims[slice])
		total += b.Weights[slice]
	}
	return weighted/total >= b.GlobalThreshold
}

// aggregate applies deny-first semantics over the local evaluations
// and fills decision, similarities, reason and evidence.
func (s *EnforcementService) aggregate(evals []localEval, result *boundary.ComparisonResult) {
	evidence := func(e localEval) boundary.Evidence {
		return boundary.Evidence{
			BoundaryID:    e.installed.Boundary.ID,
			BoundaryName:  e.installed.Boundary.Name,
			Effect:        e.installed.Boundary.Effect,
			Type:          e.installed.Boundary.Type,
			Similarities:  e.sims,
			Passed:        e.passed,
			Applicability: e.applicability,
		}
	}

	// Deny boundaries first, in priority order. The first local match
	// decides. Every applicable boundary contributes an evidence
	// record; the deciding deny record goes last.
	for i, e := range evals {
		if e.installed.Boundary.Effect != boundary.EffectDeny || !e.passed {
			continue
		}
		for j, other := range evals {
			if j != i {
				result.Evidence = append(result.Evidence, evidence(other))
			}
		}
		result.Evidence = append(result.Evidence, evidence(e))
		result.Decision = boundary.DecisionBlock
		result.Reason = boundary.ReasonDenyMatch
		result.Similarities = e.sims
		return
	}

	var mandatory []localEval
	for _, e := range evals {
		result.Evidence = append(result.Evidence, evidence(e))
		if e.installed.Boundary.Effect == boundary.EffectAllow &&
			e.installed.Boundary.Type == boundary.TypeMandatory {
			mandatory = append(mandatory, e)
		}
	}

	if len(mandatory) == 0 {
		result.Decision = boundary.DecisionBlock
		result.Reason = boundary.ReasonNoMandatoryAllow
		return
	}

	allPassed := true
	for _, e := range mandatory {
		if !e.passed {
			allPassed = false
			break
		}
	}

	if allPassed {
		result.Decision = boundary.DecisionAllow
		result.Reason = boundary.ReasonAllow
		for slice := 0; slice < boundary.NumSlices; slice++ {
			var sum float32
			for _, e := range mandatory {
				sum += e.sims[slice]
			}
			result.Similarities[slice] = sum / float32(len(mandatory))
		}
		return
	}

	result.Decision = boundary.DecisionBlock
	result.Reason = boundary.ReasonMandatoryAllowFailed
	for slice := 0; slice < boundary.NumSlices; slice++ {
		low := float32(1)
		for _, e := range mandatory {
			if e.sims[slice] < low {
				low = e.sims[slice]
			}
		}
		result.Similarities[slice] = low
	}
}

// trackSession runs the drift side effects: baseline init, drift
// accumulation and history append. Failures degrade to no drift data
// rather than blocking the verdict.
func (s *EnforcementService) trackSession(ctx context.Context, ev *intent.Event, iv *vector.Intent, result *boundary.ComparisonResult) {
	if s.sessions == nil {
		return
	}
	call := session.Call{
		RequestID: ev.ID,
		Action:    ev.Action,
		Decision:  result.Decision,
		Timestamp: result.Timestamp,
	}
	drift, err := s.sessions.Track(ctx, ev.Actor.ID, call, iv)
	if err != nil {
		s.logger.Warn("session tracking failed", "agent_id", ev.Actor.ID, "error", err)
		return
	}
	result.DriftScore = drift
}

// applyDriftThreshold blocks an otherwise allowed intent when any
// applicable boundary caps per-call drift below the observed value.
func (s *EnforcementService) applyDriftThreshold(evals []localEval, result *boundary.ComparisonResult) {
	if s.sessions == nil || result.Decision != boundary.DecisionAllow || result.DriftScore == 0 {
		return
	}
	for _, e := range evals {
		t := e.installed.Boundary.DriftThreshold
		if t > 0 && result.DriftScore > t {
			result.Decision = boundary.DecisionBlock
			result.Reason = boundary.ReasonDriftTriggered
			result.DriftTriggered = true
			s.logger.Warn("drift threshold exceeded",
				"boundary_id", e.installed.Boundary.ID,
				"drift", result.DriftScore,
				"threshold", t)
			return
		}
	}
}

// applyModifications rewrites tool params via the highest-priority
// applicable boundary carrying a modification spec. Only allowed
// intents are modified.
func (s *EnforcementService) applyModifications(ctx context.Context, evals []localEval, ev *intent.Event, result *boundary.ComparisonResult) {
	if s.modifier == nil || result.Decision != boundary.DecisionAllow || len(ev.ToolParams) == 0 {
		return
	}
	for _, e := range evals {
		spec := e.installed.Boundary.Modification
		if spec == nil || !e.passed {
			continue
		}
		modified, err := s.modifier.Apply(ctx, spec, ev.Action, ev.ToolParams)
		if err != nil {
			s.logger.Warn("modification spec failed",
				"boundary_id", e.installed.Boundary.ID, "error", err)
			return
		}
		result.ModifiedParams = modified
		return
	}
}

func (s *EnforcementService) observe(result *boundary.ComparisonResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := "block"
	if result.Allowed() {
		outcome = "allow"
	}
	s.metrics.Decisions.WithLabelValues(outcome, result.Reason).Inc()
	s.metrics.EnforceDuration.Observe(elapsed.Seconds())

	// Cache counters are cumulative on the encoder side; export only
	// the delta since the last observation.
	hits, misses := s.enc.CacheStats()
	if d := hits - s.lastCacheHits.Swap(hits); d > 0 {
		s.metrics.EmbedCacheHits.Add(float64(d))
	}
	if d := misses - s.lastCacheMisses.Swap(misses); d > 0 {
		s.metrics.EmbedCacheMisses.Add(float64(d))
	}
}
