package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

func testBoundary(id string, priority int) *boundary.Boundary {
	return &boundary.Boundary{
		ID:       id,
		TenantID: "acme",
		Name:     "boundary-" + id,
		Status:   boundary.StatusActive,
		Effect:   boundary.EffectAllow,
		Type:     boundary.TypeMandatory,
		Mode:     boundary.ModeMin,
		Priority: priority,
		Constraints: boundary.Constraints{
			Action:   boundary.ActionConstraint{Actions: []string{"read"}, ActorTypes: []string{"agent"}},
			Resource: boundary.ResourceConstraint{Types: []string{"database"}},
			Data:     boundary.DataConstraint{Sensitivity: []string{"internal"}},
			Risk:     boundary.RiskConstraint{Authn: "required"},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func testRuleVector() *boundary.RuleVector {
	rv := &boundary.RuleVector{}
	for slice := range rv.Slices {
		rv.Slices[slice].Matrix[0][0] = 1
		rv.Slices[slice].Count = 1
	}
	return rv
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()

	s := NewBoundaryStore()
	ctx := context.Background()

	if err := s.Save(ctx, testBoundary("b-1", 0), testRuleVector()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, "acme", "b-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "boundary-b-1" {
		t.Errorf("Name = %q, want boundary-b-1", got.Name)
	}

	if _, err := s.Get(ctx, "acme", "missing"); !errors.Is(err, boundary.ErrBoundaryNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrBoundaryNotFound", err)
	}
	if _, err := s.Get(ctx, "other-tenant", "b-1"); !errors.Is(err, boundary.ErrBoundaryNotFound) {
		t.Errorf("cross-tenant Get() error = %v, want ErrBoundaryNotFound", err)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	t.Parallel()

	s := NewBoundaryStore()
	ctx := context.Background()

	original := testBoundary("b-1", 0)
	original.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Save(ctx, original, testRuleVector()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	update := testBoundary("b-1", 5)
	update.CreatedAt = time.Now().UTC()
	if err := s.Save(ctx, update, testRuleVector()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, "acme", "b-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got.CreatedAt, original.CreatedAt)
	}
	if got.Priority != 5 {
		t.Errorf("Priority = %d, want updated value 5", got.Priority)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	t.Parallel()

	s := NewBoundaryStore()
	ctx := context.Background()

	if err := s.Save(ctx, testBoundary("b-1", 0), testRuleVector()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, "acme", "b-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "acme", "b-1"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "acme", "b-1"); !errors.Is(err, boundary.ErrBoundaryNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrBoundaryNotFound", err)
	}
}

func TestListActiveFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := NewBoundaryStore()
	ctx := context.Background()

	high := testBoundary("b-high", 1)
	low := testBoundary("b-low", 10)
	disabled := testBoundary("b-off", 0)
	disabled.Status = boundary.StatusDisabled

	for _, b := range []*boundary.Boundary{low, disabled, high} {
		if err := s.Save(ctx, b, testRuleVector()); err != nil {
			t.Fatalf("Save(%s) error = %v", b.ID, err)
		}
	}

	got, err := s.ListActive(ctx, "acme")
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActive() returned %d boundaries, want 2", len(got))
	}
	if got[0].Boundary.ID != "b-high" || got[1].Boundary.ID != "b-low" {
		t.Errorf("order = [%s, %s], want [b-high, b-low]", got[0].Boundary.ID, got[1].Boundary.ID)
	}
	for _, inst := range got {
		if inst.Anchors == nil {
			t.Fatalf("boundary %s returned without anchors", inst.Boundary.ID)
		}
		if inst.Anchors.Slices[0].Count != 1 {
			t.Errorf("boundary %s anchor count = %d, want 1", inst.Boundary.ID, inst.Anchors.Slices[0].Count)
		}
	}
}

func TestStoredBoundaryIsolatedFromCaller(t *testing.T) {
	t.Parallel()

	s := NewBoundaryStore()
	ctx := context.Background()

	b := testBoundary("b-1", 0)
	if err := s.Save(ctx, b, testRuleVector()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	b.Constraints.Action.Actions[0] = "delete"

	got, err := s.Get(ctx, "acme", "b-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Constraints.Action.Actions[0] != "read" {
		t.Error("caller mutation leaked into the store")
	}
}
