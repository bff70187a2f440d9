package agentproxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedGraph replays a fixed sequence of state snapshots.
type scriptedGraph struct {
	states []State
	err    error
}

func (g *scriptedGraph) Invoke(ctx context.Context, _ State) (State, error) {
	if g.err != nil {
		return State{}, g.err
	}
	if len(g.states) == 0 {
		return State{}, nil
	}
	return g.states[len(g.states)-1], nil
}

func (g *scriptedGraph) Stream(ctx context.Context, _ State) (<-chan State, <-chan error) {
	out := make(chan State)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, st := range g.states {
			select {
			case out <- st:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			errs <- g.err
		}
	}()
	return out, errs
}

// scriptedEnforcer records every event and blocks the named tools.
type scriptedEnforcer struct {
	mu     sync.Mutex
	events []*intent.Event
	block  map[string]bool
	err    error
}

func (e *scriptedEnforcer) Enforce(_ context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, ev)
	if e.err != nil {
		return nil, e.err
	}
	result := &boundary.ComparisonResult{
		RequestID: ev.ID,
		Decision:  boundary.DecisionAllow,
		Reason:    boundary.ReasonAllow,
		Timestamp: time.Now().UTC(),
	}
	if e.block[ev.ToolName] {
		result.Decision = boundary.DecisionBlock
		result.Reason = boundary.ReasonDenyMatch
	}
	return result, nil
}

func (e *scriptedEnforcer) seen() []*intent.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*intent.Event(nil), e.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func callState(calls ...ToolCall) State {
	return State{Messages: []Message{
		{Role: "user", Content: "do the thing"},
		{Role: "assistant", ToolCalls: calls},
	}}
}

func TestInvokeEnforcesToolCalls(t *testing.T) {
	t.Parallel()

	searching := callState(ToolCall{ID: "c1", Name: "search_database", Args: map[string]any{"q": "users"}})
	done := searching
	done.Messages = append(done.Messages, Message{Role: "assistant", Content: "found 3 rows"})

	enforcer := &scriptedEnforcer{}
	proxy, err := Wrap(&scriptedGraph{states: []State{searching, done}}, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	final, err := proxy.Invoke(context.Background(), State{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(final.Messages) != 3 {
		t.Fatalf("final state has %d messages, want 3", len(final.Messages))
	}

	// The second snapshot repeats the same call id; it must be
	// enforced exactly once.
	events := enforcer.seen()
	if len(events) != 1 {
		t.Fatalf("enforcer saw %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.SchemaVersion != intent.SchemaV13 {
		t.Errorf("SchemaVersion = %q, want %q", ev.SchemaVersion, intent.SchemaV13)
	}
	if ev.Action != "read" {
		t.Errorf("Action = %q, want read", ev.Action)
	}
	if ev.Resource.Type != "database" || ev.Resource.Name != "search_database" || ev.Resource.Location != "cloud" {
		t.Errorf("unexpected resource %+v", ev.Resource)
	}
	if len(ev.Data.Sensitivity) != 1 || ev.Data.Sensitivity[0] != "public" {
		t.Errorf("Sensitivity = %v, want [public]", ev.Data.Sensitivity)
	}
	if ev.Data.PII == nil || *ev.Data.PII {
		t.Errorf("PII = %v, want false", ev.Data.PII)
	}
	if ev.Data.Volume != "single" || ev.Risk.Authn != "required" || ev.Layer != "L4" {
		t.Errorf("unexpected ambient fields: volume=%q authn=%q layer=%q", ev.Data.Volume, ev.Risk.Authn, ev.Layer)
	}
	if ev.ToolMethod != "call" {
		t.Errorf("ToolMethod = %q, want call", ev.ToolMethod)
	}
	if ev.RateLimit == nil || ev.RateLimit.CallsLastMinute != 1 || ev.RateLimit.WindowSeconds != 60 {
		t.Errorf("unexpected rate limit context %+v", ev.RateLimit)
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("built event fails validation: %v", err)
	}
}

func TestDeleteActionMarksPII(t *testing.T) {
	t.Parallel()

	enforcer := &scriptedEnforcer{}
	proxy, err := Wrap(
		&scriptedGraph{states: []State{callState(ToolCall{ID: "c1", Name: "delete-user-record"})}},
		"agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if _, err := proxy.Invoke(context.Background(), State{}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	events := enforcer.seen()
	if len(events) != 1 {
		t.Fatalf("enforcer saw %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Action != "delete" {
		t.Errorf("Action = %q, want delete", ev.Action)
	}
	if ev.Data.PII == nil || !*ev.Data.PII {
		t.Errorf("PII = %v, want true", ev.Data.PII)
	}
	if ev.Data.Sensitivity[0] != "internal" {
		t.Errorf("Sensitivity = %v, want [internal]", ev.Data.Sensitivity)
	}
}

func TestHardModeBlocksStream(t *testing.T) {
	t.Parallel()

	graph := &scriptedGraph{states: []State{
		callState(ToolCall{ID: "c1", Name: "search_database"}),
		callState(ToolCall{ID: "c2", Name: "delete-user-record"}),
		callState(ToolCall{ID: "c3", Name: "search_database"}),
	}}
	enforcer := &scriptedEnforcer{block: map[string]bool{"delete-user-record": true}}

	var violations []string
	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
		WithOnViolation(func(tc ToolCall, blocked *BlockedError) {
			violations = append(violations, tc.Name)
		}),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	_, err = proxy.Invoke(context.Background(), State{})
	if err == nil {
		t.Fatal("Invoke() error = nil, want BlockedError")
	}
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("errors.Is(err, ErrBlocked) = false for %v", err)
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("errors.As BlockedError failed for %v", err)
	}
	if blocked.ToolName != "delete-user-record" {
		t.Errorf("ToolName = %q, want delete-user-record", blocked.ToolName)
	}
	if blocked.Reason != boundary.ReasonDenyMatch {
		t.Errorf("Reason = %q, want %q", blocked.Reason, boundary.ReasonDenyMatch)
	}
	if len(violations) != 1 || violations[0] != "delete-user-record" {
		t.Errorf("violations = %v, want [delete-user-record]", violations)
	}
	// The stream halted before the third snapshot.
	if got := len(enforcer.seen()); got != 2 {
		t.Errorf("enforcer saw %d events, want 2", got)
	}
}

func TestSoftModeContinues(t *testing.T) {
	t.Parallel()

	graph := &scriptedGraph{states: []State{
		callState(ToolCall{ID: "c1", Name: "delete-user-record"}),
		callState(ToolCall{ID: "c2", Name: "search_database"}),
	}}
	enforcer := &scriptedEnforcer{block: map[string]bool{"delete-user-record": true}}

	var violations []string
	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithMode(ModeSoft),
		WithLogger(quietLogger()),
		WithOnViolation(func(tc ToolCall, _ *BlockedError) {
			violations = append(violations, tc.Name)
		}),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	final, err := proxy.Invoke(context.Background(), State{})
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil in soft mode", err)
	}
	if len(final.Messages) == 0 {
		t.Fatal("final state is empty")
	}
	if len(violations) != 1 || violations[0] != "delete-user-record" {
		t.Errorf("violations = %v, want [delete-user-record]", violations)
	}
	if got := len(enforcer.seen()); got != 2 {
		t.Errorf("enforcer saw %d events, want 2", got)
	}
}

func TestEnforcerErrorFailsClosed(t *testing.T) {
	t.Parallel()

	graph := &scriptedGraph{states: []State{
		callState(ToolCall{ID: "c1", Name: "search_database"}),
	}}
	enforcer := &scriptedEnforcer{err: errors.New("connection refused")}

	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	_, err = proxy.Invoke(context.Background(), State{})
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Invoke() error = %v, want BlockedError", err)
	}
	if blocked.Reason != reasonEnforcerUnreachable {
		t.Errorf("Reason = %q, want %q", blocked.Reason, reasonEnforcerUnreachable)
	}
	if blocked.Result == nil || blocked.Result.Allowed() {
		t.Error("synthesized verdict must be a block")
	}
}

func TestEnforcedSetResetsPerInvocation(t *testing.T) {
	t.Parallel()

	graph := &scriptedGraph{states: []State{
		callState(ToolCall{ID: "c1", Name: "search_database"}),
	}}
	enforcer := &scriptedEnforcer{}
	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := proxy.Invoke(context.Background(), State{}); err != nil {
			t.Fatalf("Invoke() #%d error = %v", i, err)
		}
	}

	events := enforcer.seen()
	if len(events) != 3 {
		t.Fatalf("enforcer saw %d events, want 3", len(events))
	}
	// The rate window spans invocations.
	if got := events[2].RateLimit.CallsLastMinute; got != 3 {
		t.Errorf("CallsLastMinute = %d, want 3", got)
	}
}

func TestCustomMappersOverrideInference(t *testing.T) {
	t.Parallel()

	graph := &scriptedGraph{states: []State{
		callState(ToolCall{ID: "c1", Name: "mystery_widget"}),
	}}
	enforcer := &scriptedEnforcer{}
	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(enforcer),
		WithLogger(quietLogger()),
		WithActionMapper(func(ToolCall) string { return "write" }),
		WithResourceTypeMapper(func(ToolCall) string { return "queue" }),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if _, err := proxy.Invoke(context.Background(), State{}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	ev := enforcer.seen()[0]
	if ev.Action != "write" || ev.Resource.Type != "queue" {
		t.Errorf("mapped event action=%q resource=%q, want write/queue", ev.Action, ev.Resource.Type)
	}
}

func TestWrapRequiresEnforcer(t *testing.T) {
	t.Parallel()

	if _, err := Wrap(&scriptedGraph{}, "agent-1", "b-1"); err == nil {
		t.Fatal("Wrap() without enforcer succeeded, want error")
	}
}

type recordingRegistrar struct {
	mu   sync.Mutex
	regs []Registration
	err  error
}

func (r *recordingRegistrar) RegisterAgent(_ context.Context, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, reg)
	return r.err
}

func TestWrapRegistersAgent(t *testing.T) {
	t.Parallel()

	registrar := &recordingRegistrar{}
	_, err := Wrap(&scriptedGraph{}, "agent-7", "b-prod",
		WithEnforcer(&scriptedEnforcer{}),
		WithRegistrar(registrar),
		WithSDKVersion("0.3.0"),
		WithFramework("langgraph"),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	if len(registrar.regs) != 1 {
		t.Fatalf("registrar saw %d registrations, want 1", len(registrar.regs))
	}
	got := registrar.regs[0]
	want := Registration{ID: "agent-7", SDKVersion: "0.3.0", Framework: "langgraph", BoundaryID: "b-prod"}
	if got != want {
		t.Errorf("registration = %+v, want %+v", got, want)
	}
}

func TestWrapSurvivesRegistrarFailure(t *testing.T) {
	t.Parallel()

	registrar := &recordingRegistrar{err: errors.New("gateway down")}
	proxy, err := Wrap(&scriptedGraph{}, "agent-1", "b-1",
		WithEnforcer(&scriptedEnforcer{}),
		WithRegistrar(registrar),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v, registration must be best effort", err)
	}
	if proxy == nil {
		t.Fatal("Wrap() returned nil proxy")
	}
}

func TestStreamRelaysGraphError(t *testing.T) {
	t.Parallel()

	graphErr := errors.New("model overloaded")
	graph := &scriptedGraph{
		states: []State{callState(ToolCall{ID: "c1", Name: "search_database"})},
		err:    graphErr,
	}
	proxy, err := Wrap(graph, "agent-1", "b-1",
		WithEnforcer(&scriptedEnforcer{}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	_, err = proxy.Invoke(context.Background(), State{})
	if !errors.Is(err, graphErr) {
		t.Fatalf("Invoke() error = %v, want %v", err, graphErr)
	}
}
