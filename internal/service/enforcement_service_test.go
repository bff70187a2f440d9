package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	celmod "github.com/Intent-Gate/Intentgate/internal/adapter/outbound/cel"
	"github.com/Intent-Gate/Intentgate/internal/adapter/outbound/memory"
	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
	"github.com/Intent-Gate/Intentgate/internal/encoder"
	"github.com/Intent-Gate/Intentgate/internal/vocab"
)

type testHarness struct {
	boundaries  *BoundaryService
	sessions    *SessionService
	enforcement *EnforcementService
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	reg, err := vocab.Load()
	if err != nil {
		t.Fatalf("vocab.Load() error = %v", err)
	}
	enc := encoder.New(reg, encoder.HashEmbedder{}, 512)
	modifier, err := celmod.NewModifier()
	if err != nil {
		t.Fatalf("NewModifier() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	boundaries := NewBoundaryService(memory.NewBoundaryStore(), enc, modifier, nil, logger, nil)
	sessions := NewSessionService(memory.NewSessionStore(), logger, nil)
	enforcement := NewEnforcementService(boundaries, enc, sessions, modifier, logger, nil,
		boundary.ApplicabilityOptions{})

	return &testHarness{boundaries: boundaries, sessions: sessions, enforcement: enforcement}
}

func allowBoundary(id string) *boundary.Boundary {
	return &boundary.Boundary{
		ID:       id,
		TenantID: "acme",
		Name:     "allow-" + id,
		Status:   boundary.StatusActive,
		Effect:   boundary.EffectAllow,
		Type:     boundary.TypeMandatory,
		Mode:     boundary.ModeMin,
		Constraints: boundary.Constraints{
			Action:   boundary.ActionConstraint{Actions: []string{"read"}, ActorTypes: []string{"agent"}},
			Resource: boundary.ResourceConstraint{Types: []string{"database"}},
			Data:     boundary.DataConstraint{Sensitivity: []string{"internal"}},
			Risk:     boundary.RiskConstraint{Authn: "required"},
		},
		// Generous floors: the hash embedder preserves only exact-text
		// matches, so cross-text similarity carries no signal here.
		Thresholds: [boundary.NumSlices]float64{0, 0, 0, 0},
	}
}

func denyBoundary(id string) *boundary.Boundary {
	b := allowBoundary(id)
	b.Name = "deny-" + id
	b.Effect = boundary.EffectDeny
	b.Type = boundary.TypeOptional
	b.Constraints.Action.Actions = []string{"delete"}
	return b
}

func readEvent() *intent.Event {
	return &intent.Event{
		ID:            intent.NewEventID(),
		SchemaVersion: intent.SchemaV12,
		TenantID:      "acme",
		Actor:         intent.Actor{ID: "agent-1", Type: "agent"},
		Action:        "read",
		Resource:      intent.Resource{Type: "database"},
		Data:          intent.Data{Sensitivity: []string{"internal"}},
		Risk:          intent.Risk{Authn: "required"},
	}
}

func TestEnforceNoBoundariesInstalled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	got, err := h.enforcement.Enforce(context.Background(), readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if !got.Allowed() {
		t.Error("decision = block, want allow on cold start")
	}
	if got.Reason != boundary.ReasonNoBoundariesInstalled {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonNoBoundariesInstalled)
	}
	if got.Warning == "" {
		t.Error("cold start verdict carries no warning")
	}
	if got.Similarities != [boundary.NumSlices]float32{1, 1, 1, 1} {
		t.Errorf("similarities = %v, want all ones", got.Similarities)
	}
}

func TestEnforceMandatoryAllowPasses(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.boundaries.Install(ctx, allowBoundary("b-allow")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got, err := h.enforcement.Enforce(ctx, readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if !got.Allowed() {
		t.Fatalf("decision = block (reason %s), want allow", got.Reason)
	}
	if got.Reason != boundary.ReasonAllow {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonAllow)
	}
	if len(got.Evidence) != 1 || !got.Evidence[0].Passed {
		t.Errorf("evidence = %+v, want one passed record", got.Evidence)
	}
	if got.RulesEvaluated != 1 {
		t.Errorf("RulesEvaluated = %d, want 1", got.RulesEvaluated)
	}
}

func TestEnforceDenyWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.boundaries.Install(ctx, allowBoundary("b-allow")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	deny := denyBoundary("b-deny")
	if _, err := h.boundaries.Install(ctx, deny); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ev := readEvent()
	ev.Action = "delete"

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want block (deny matched)")
	}
	if got.Reason != boundary.ReasonDenyMatch {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonDenyMatch)
	}
	// The deciding deny record is the last evidence entry.
	last := got.Evidence[len(got.Evidence)-1]
	if last.BoundaryID != "b-deny" || !last.Passed {
		t.Errorf("deciding evidence = %+v, want passed b-deny", last)
	}
}

func TestEnforceNoApplicableBoundaries(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.boundaries.Install(ctx, allowBoundary("b-allow")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	// Out-of-scope action: the only boundary is restricted to read.
	ev := readEvent()
	ev.Action = "execute"

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want block")
	}
	if got.Reason != boundary.ReasonNoApplicableBoundaries {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonNoApplicableBoundaries)
	}
	if got.Similarities != [boundary.NumSlices]float32{} {
		t.Errorf("similarities = %v, want all zeros", got.Similarities)
	}
	if len(got.Evidence) != 0 {
		t.Errorf("evidence has %d records, want 0", len(got.Evidence))
	}
	// Only boundaries that survived applicability count as evaluated.
	if got.RulesEvaluated != 0 {
		t.Errorf("rules evaluated = %d, want 0", got.RulesEvaluated)
	}
}

func TestEnforceNoMandatoryAllow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	optional := allowBoundary("b-opt")
	optional.Type = boundary.TypeOptional
	if _, err := h.boundaries.Install(ctx, optional); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got, err := h.enforcement.Enforce(ctx, readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want block (optional allows never decide)")
	}
	if got.Reason != boundary.ReasonNoMandatoryAllow {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonNoMandatoryAllow)
	}
	// The optional boundary still contributes evidence.
	if len(got.Evidence) != 1 {
		t.Errorf("evidence has %d records, want 1", len(got.Evidence))
	}
}

func TestEnforceMandatoryAllowFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	strict := allowBoundary("b-strict")
	// Impossible floors: exact slot-text equality holds only for the
	// risk slice, so at least one slice lands below 1.
	strict.Thresholds = [boundary.NumSlices]float64{1, 1, 1, 1}
	if _, err := h.boundaries.Install(ctx, strict); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ev := readEvent()
	ev.Resource.Name = "orders" // shifts resource slot text away from anchors

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want block")
	}
	if got.Reason != boundary.ReasonMandatoryAllowFailed {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonMandatoryAllowFailed)
	}
}

func TestEnforceDeterministicUnderConstraintShuffle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	b := allowBoundary("b-allow")
	b.Constraints.Action.ActorTypes = []string{"llm", "agent", "user"}
	if _, err := h.boundaries.Install(ctx, b); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	first, err := h.enforcement.Enforce(ctx, readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}

	shuffled := allowBoundary("b-allow")
	shuffled.Constraints.Action.ActorTypes = []string{"user", "agent", "llm"}
	if _, err := h.boundaries.Install(ctx, shuffled); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	second, err := h.enforcement.Enforce(ctx, readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}

	if first.Decision != second.Decision || first.Similarities != second.Similarities {
		t.Errorf("constraint order changed the verdict: %v vs %v",
			first.Similarities, second.Similarities)
	}
}

func TestEnforceDriftThresholdBlocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	b := allowBoundary("b-drift")
	b.Constraints.Action.Actions = []string{"read", "export"}
	b.DriftThreshold = 0.05
	if _, err := h.boundaries.Install(ctx, b); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	// First call establishes the baseline.
	first, err := h.enforcement.Enforce(ctx, readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if !first.Allowed() {
		t.Fatalf("baseline call blocked (reason %s)", first.Reason)
	}

	// A very different intent drifts far past the cap.
	ev := readEvent()
	ev.Action = "export"
	ev.Resource = intent.Resource{Type: "database", Name: "payroll", Location: "cloud"}
	ev.Data.Volume = "bulk"

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want drift block")
	}
	if got.Reason != boundary.ReasonDriftTriggered {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonDriftTriggered)
	}
	if !got.DriftTriggered || got.DriftScore <= 0.05 {
		t.Errorf("DriftTriggered = %v, DriftScore = %v", got.DriftTriggered, got.DriftScore)
	}
}

func TestEnforceAppliesModificationSpec(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	b := allowBoundary("b-mod")
	b.Modification = &boundary.ModificationSpec{SetParams: map[string]string{
		"limit": `params.limit > 100 ? 100 : params.limit`,
	}}
	if _, err := h.boundaries.Install(ctx, b); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ev := readEvent()
	ev.ToolName = "search_database"
	ev.ToolMethod = "read"
	ev.ToolParams = map[string]any{"limit": int64(5000)}

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if !got.Allowed() {
		t.Fatalf("decision = block (reason %s), want allow", got.Reason)
	}
	if got.ModifiedParams == nil {
		t.Fatal("ModifiedParams = nil, want rewritten params")
	}
	if got.ModifiedParams["limit"] != int64(100) {
		t.Errorf("modified limit = %v, want 100", got.ModifiedParams["limit"])
	}
}

func TestEnforceRecordsSessionHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.boundaries.Install(ctx, allowBoundary("b-allow")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := h.enforcement.Enforce(ctx, readEvent()); err != nil {
			t.Fatalf("Enforce() error = %v", err)
		}
	}

	sess, err := h.sessions.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.CallCount != 3 {
		t.Errorf("CallCount = %d, want 3", sess.CallCount)
	}
	if sess.Baseline == nil {
		t.Error("no baseline after enforcement calls")
	}
}

func TestEnforceEncodingFailureFailsClosed(t *testing.T) {
	t.Parallel()

	reg, err := vocab.Load()
	if err != nil {
		t.Fatalf("vocab.Load() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	goodEnc := encoder.New(reg, encoder.HashEmbedder{}, 512)
	boundaries := NewBoundaryService(memory.NewBoundaryStore(), goodEnc, nil, nil, logger, nil)
	if _, err := boundaries.Install(context.Background(), allowBoundary("b-allow")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	badEnc := encoder.New(reg, unreachableEmbedder{}, 512)
	enforcement := NewEnforcementService(boundaries, badEnc, nil, nil, logger, nil,
		boundary.ApplicabilityOptions{})

	got, err := enforcement.Enforce(context.Background(), readEvent())
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() {
		t.Fatal("decision = allow, want block on encoding failure")
	}
	if got.Reason != boundary.ReasonEncodingFailed {
		t.Errorf("reason = %s, want %s", got.Reason, boundary.ReasonEncodingFailed)
	}
	if len(got.Evidence) != 0 {
		t.Errorf("evidence has %d records, want 0", len(got.Evidence))
	}
}

type unreachableEmbedder struct{}

func (unreachableEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

func TestEnforceDenyEvidenceCoversAllApplicable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	allow := allowBoundary("b-allow")
	allow.Constraints.Action.Actions = []string{"read", "delete"}
	if _, err := h.boundaries.Install(ctx, allow); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, err := h.boundaries.Install(ctx, denyBoundary("b-deny")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ev := readEvent()
	ev.Action = "delete"

	got, err := h.enforcement.Enforce(ctx, ev)
	if err != nil {
		t.Fatalf("Enforce() error = %v", err)
	}
	if got.Allowed() || got.Reason != boundary.ReasonDenyMatch {
		t.Fatalf("decision = %d reason = %s, want deny match", got.Decision, got.Reason)
	}
	if got.RulesEvaluated != 2 {
		t.Errorf("rules evaluated = %d, want 2", got.RulesEvaluated)
	}
	// Every applicable boundary leaves a record; the deciding deny is
	// the last one.
	if len(got.Evidence) != 2 {
		t.Fatalf("evidence has %d records, want 2", len(got.Evidence))
	}
	if got.Evidence[0].BoundaryID != "b-allow" {
		t.Errorf("evidence[0] = %s, want b-allow", got.Evidence[0].BoundaryID)
	}
	last := got.Evidence[1]
	if last.BoundaryID != "b-deny" || !last.Passed {
		t.Errorf("deciding evidence = %+v, want passed b-deny", last)
	}
}

func TestLocalDecision(t *testing.T) {
	t.Parallel()

	base := func(mode boundary.Mode) *boundary.Boundary {
		return &boundary.Boundary{
			Mode:            mode,
			Thresholds:      [boundary.NumSlices]float64{0.5, 0.5, 0.5, 0.5},
			Weights:         [boundary.NumSlices]float64{1, 1, 1, 1},
			GlobalThreshold: 0.8,
		}
	}

	tests := []struct {
		name string
		b    *boundary.Boundary
		sims [boundary.NumSlices]float32
		want bool
	}{
		{
			name: "min all above",
			b:    base(boundary.ModeMin),
			sims: [boundary.NumSlices]float32{0.9, 0.9, 0.9, 0.9},
			want: true,
		},
		{
			name: "min exactly at threshold passes",
			b:    base(boundary.ModeMin),
			sims: [boundary.NumSlices]float32{0.5, 0.5, 0.5, 0.5},
			want: true,
		},
		{
			name: "min one slice below",
			b:    base(boundary.ModeMin),
			sims: [boundary.NumSlices]float32{0.9, 0.49, 0.9, 0.9},
			want: false,
		},
		{
			name: "weighted-avg exactly at global passes",
			b:    base(boundary.ModeWeightedAvg),
			sims: [boundary.NumSlices]float32{0.8, 0.8, 0.8, 0.8},
			want: true,
		},
		{
			name: "weighted-avg floors pass but global fails",
			b:    base(boundary.ModeWeightedAvg),
			sims: [boundary.NumSlices]float32{0.6, 0.6, 0.6, 0.6},
			want: false,
		},
		{
			name: "weighted-avg global met but one floor below",
			b:    base(boundary.ModeWeightedAvg),
			sims: [boundary.NumSlices]float32{1, 1, 1, 0.49},
			want: false,
		},
		{
			name: "weighted-avg uneven weights tip the average",
			b: func() *boundary.Boundary {
				b := base(boundary.ModeWeightedAvg)
				b.Weights = [boundary.NumSlices]float64{3, 1, 1, 1}
				return b
			}(),
			sims: [boundary.NumSlices]float32{1, 0.6, 0.6, 0.6},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := localDecision(tt.b, tt.sims); got != tt.want {
				t.Errorf("localDecision() = %v, want %v", got, tt.want)
			}
		})
	}
}
