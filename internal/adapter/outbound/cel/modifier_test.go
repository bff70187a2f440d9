package cel

import (
	"context"
	"strings"
	"testing"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

func newTestModifier(t *testing.T) *Modifier {
	t.Helper()
	m, err := NewModifier()
	if err != nil {
		t.Fatalf("NewModifier() error = %v", err)
	}
	return m
}

func TestApplySetsLiteral(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)
	spec := &boundary.ModificationSpec{SetParams: map[string]string{
		"limit": "10",
	}}

	got, err := m.Apply(context.Background(), spec, "read", map[string]any{"table": "users"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got["limit"] != int64(10) {
		t.Errorf("limit = %v (%T), want 10", got["limit"], got["limit"])
	}
	if got["table"] != "users" {
		t.Error("unrelated param lost")
	}
}

func TestApplyReadsOriginalParams(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)
	spec := &boundary.ModificationSpec{SetParams: map[string]string{
		"limit": `params.limit > 100 ? 100 : params.limit`,
	}}

	got, err := m.Apply(context.Background(), spec, "read", map[string]any{"limit": int64(5000)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got["limit"] != int64(100) {
		t.Errorf("limit = %v, want capped 100", got["limit"])
	}
}

func TestApplyDottedPath(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)
	spec := &boundary.ModificationSpec{SetParams: map[string]string{
		"query.dry_run": "true",
	}}

	got, err := m.Apply(context.Background(), spec, "delete", map[string]any{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	query, ok := got["query"].(map[string]any)
	if !ok {
		t.Fatalf("query = %T, want map", got["query"])
	}
	if query["dry_run"] != true {
		t.Errorf("query.dry_run = %v, want true", query["dry_run"])
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)
	spec := &boundary.ModificationSpec{SetParams: map[string]string{"limit": "1"}}

	original := map[string]any{"limit": int64(999)}
	if _, err := m.Apply(context.Background(), spec, "read", original); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if original["limit"] != int64(999) {
		t.Error("Apply mutated the input map")
	}
}

func TestValidateRejectsBrokenExpressions(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)

	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "params.limit >"},
		{"unknown variable", "bogus_var + 1"},
		{"oversized", "1 + " + strings.Repeat("1 + ", 400) + "1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := &boundary.ModificationSpec{SetParams: map[string]string{"x": tt.expr}}
			if err := m.Validate(spec); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestValidateAcceptsActionVariable(t *testing.T) {
	t.Parallel()

	m := newTestModifier(t)
	spec := &boundary.ModificationSpec{SetParams: map[string]string{
		"audit_tag": `action == "delete" ? "destructive" : "routine"`,
	}}
	if err := m.Validate(spec); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
