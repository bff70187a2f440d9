package agentproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
	"github.com/Intent-Gate/Intentgate/internal/vocab"
)

const (
	// rateWindow is the sliding window behind the event's rate limit
	// context.
	rateWindow = 60 * time.Second

	// setupTimeout bounds the best-effort registration and warm-up
	// calls at wrap time.
	setupTimeout = 2 * time.Second

	reasonEnforcerUnreachable = "enforcer_unreachable"
)

// boundaryLister is implemented by enforcers that can report how many
// boundaries are installed, used for the warm-up check at wrap time.
type boundaryLister interface {
	ActiveBoundaryCount(ctx context.Context) (int, error)
}

// Proxy wraps a Graph with per-tool-call enforcement. The only state
// carried across invocations is the rate window; the enforced-call set
// is reset on every Invoke or Stream.
type Proxy struct {
	graph      Graph
	agentID    string
	boundaryID string
	tenantID   string

	enforcer       Enforcer
	registrar      Registrar
	mode           Mode
	onViolation    func(ToolCall, *BlockedError)
	actionMapper   func(ToolCall) string
	resourceMapper func(ToolCall) string
	sdkVersion     string
	framework      string
	logger         *slog.Logger

	mu     sync.Mutex
	window []time.Time
}

// Wrap builds a Proxy around a graph. It registers the agent with the
// management plane and checks that boundaries are installed, both best
// effort with a short timeout. A missing enforcer is the only fatal
// configuration error.
func Wrap(graph Graph, agentID, boundaryID string, opts ...Option) (*Proxy, error) {
	if graph == nil {
		return nil, errors.New("agentproxy: graph is required")
	}
	if agentID == "" {
		return nil, errors.New("agentproxy: agent id is required")
	}

	p := &Proxy{
		graph:      graph,
		agentID:    agentID,
		boundaryID: boundaryID,
		tenantID:   "default",
		mode:       ModeHard,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.enforcer == nil {
		return nil, errors.New("agentproxy: enforcer is required")
	}

	if p.actionMapper == nil || p.resourceMapper == nil {
		reg, err := vocab.Load()
		if err != nil {
			return nil, fmt.Errorf("agentproxy: load vocabulary: %w", err)
		}
		if p.actionMapper == nil {
			p.actionMapper = func(tc ToolCall) string {
				return reg.InferActionFromToolName(tc.Name)
			}
		}
		if p.resourceMapper == nil {
			p.resourceMapper = func(tc ToolCall) string {
				return reg.InferResourceTypeFromToolName(tc.Name)
			}
		}
	}

	p.register()
	p.warmup()
	return p, nil
}

// register announces the agent to the management plane. Failures are
// logged, never returned.
func (p *Proxy) register() {
	if p.registrar == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	err := p.registrar.RegisterAgent(ctx, Registration{
		ID:         p.agentID,
		SDKVersion: p.sdkVersion,
		Framework:  p.framework,
		BoundaryID: p.boundaryID,
	})
	if err != nil {
		p.logger.Warn("agent registration failed, continuing unregistered",
			"agent_id", p.agentID,
			"error", err,
		)
	}
}

// warmup checks that the gateway has boundaries installed, so a silent
// allow-all gate is noticed at wrap time rather than in production
// traffic.
func (p *Proxy) warmup() {
	lister, ok := p.enforcer.(boundaryLister)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	n, err := lister.ActiveBoundaryCount(ctx)
	if err != nil {
		p.logger.Warn("boundary warm-up check failed", "error", err)
		return
	}
	if n == 0 {
		p.logger.Warn("no boundaries installed, all calls will pass with a warning",
			"agent_id", p.agentID,
		)
	}
}

// Invoke runs the graph to completion and returns the final state. It
// drives the stream path so every intermediate state passes the gate
// before the graph's next step runs.
func (p *Proxy) Invoke(ctx context.Context, state State) (State, error) {
	values, errs := p.Stream(ctx, state)

	var last State
	for st := range values {
		last = st
	}
	if err := <-errs; err != nil {
		return State{}, err
	}
	return last, nil
}

// Stream runs the graph and relays its state snapshots. Each snapshot
// is enforced before it is forwarded; in hard mode a blocked call ends
// the stream with a BlockedError on the error channel. The error
// channel yields at most one error and both channels are closed when
// the stream ends.
func (p *Proxy) Stream(ctx context.Context, state State) (<-chan State, <-chan error) {
	out := make(chan State)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		values, gerrs := p.graph.Stream(ctx, state)
		enforced := make(map[string]struct{})

		for values != nil || gerrs != nil {
			select {
			case st, ok := <-values:
				if !ok {
					values = nil
					continue
				}
				if err := p.enforceState(ctx, st, enforced); err != nil {
					errs <- err
					return
				}
				select {
				case out <- st:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			case err, ok := <-gerrs:
				if !ok {
					gerrs = nil
					continue
				}
				if err != nil {
					errs <- err
					return
				}
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return out, errs
}

// enforceState enforces the newest tool calls in a state snapshot.
// Calls already enforced this invocation are skipped.
func (p *Proxy) enforceState(ctx context.Context, st State, enforced map[string]struct{}) error {
	for _, tc := range latestToolCalls(st) {
		key := tc.key()
		if _, done := enforced[key]; done {
			continue
		}

		ev := p.buildEvent(tc)
		result, err := p.enforcer.Enforce(ctx, ev)
		if err != nil {
			// No verdict reached the proxy. Fail closed.
			result = &boundary.ComparisonResult{
				RequestID: ev.ID,
				Decision:  boundary.DecisionBlock,
				Timestamp: time.Now().UTC(),
				Reason:    reasonEnforcerUnreachable,
				Warning:   err.Error(),
			}
		}

		if result.Allowed() {
			enforced[key] = struct{}{}
			continue
		}

		blocked := &BlockedError{
			ToolName:  tc.Name,
			RequestID: result.RequestID,
			Reason:    result.Reason,
			Result:    result,
		}
		if p.onViolation != nil {
			p.onViolation(tc, blocked)
		}
		if p.mode == ModeSoft {
			p.logger.Warn("tool call blocked, continuing in soft mode",
				"agent_id", p.agentID,
				"tool", tc.Name,
				"reason", result.Reason,
			)
			enforced[key] = struct{}{}
			continue
		}
		return blocked
	}
	return nil
}

// buildEvent maps a tool call onto an intent event.
func (p *Proxy) buildEvent(tc ToolCall) *intent.Event {
	now := time.Now().UTC()
	action := p.actionMapper(tc)

	pii := action == "delete" || action == "export"
	sensitivity := "internal"
	if action == "read" {
		sensitivity = "public"
	}
	method := tc.Method
	if method == "" {
		method = "call"
	}

	return &intent.Event{
		ID:            intent.NewEventID(),
		SchemaVersion: intent.SchemaV13,
		TenantID:      p.tenantID,
		Timestamp:     now,
		Actor:         intent.Actor{ID: p.agentID, Type: "agent"},
		Action:        action,
		Resource: intent.Resource{
			Type:     p.resourceMapper(tc),
			Name:     tc.Name,
			Location: "cloud",
		},
		Data: intent.Data{
			Sensitivity: []string{sensitivity},
			PII:         &pii,
			Volume:      "single",
		},
		Risk:       intent.Risk{Authn: "required"},
		Layer:      "L4",
		ToolName:   tc.Name,
		ToolMethod: method,
		ToolParams: tc.Args,
		RateLimit: &intent.RateLimitContext{
			CallsLastMinute: p.observeCall(now),
			WindowSeconds:   int(rateWindow / time.Second),
		},
	}
}

// observeCall records one enforced call and returns how many fell in
// the trailing window, this one included.
func (p *Proxy) observeCall(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	kept := p.window[:0]
	for _, t := range p.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.window = append(kept, now)
	return len(p.window)
}
