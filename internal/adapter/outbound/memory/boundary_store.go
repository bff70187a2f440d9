package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// BoundaryStore implements boundary.Store with in-memory maps.
// Thread-safe for concurrent access. For development/testing only.
type BoundaryStore struct {
	mu sync.RWMutex
	// boundaries and anchors are keyed by tenant id, then boundary id.
	// A boundary id is present in both maps or in neither.
	boundaries map[string]map[string]*boundary.Boundary
	anchors    map[string]map[string]*boundary.RuleVector
}

// NewBoundaryStore creates a new in-memory boundary store.
func NewBoundaryStore() *BoundaryStore {
	return &BoundaryStore{
		boundaries: make(map[string]map[string]*boundary.Boundary),
		anchors:    make(map[string]map[string]*boundary.RuleVector),
	}
}

// Save creates or replaces a boundary and its anchors together. On
// replace the original created_at survives.
func (s *BoundaryStore) Save(ctx context.Context, b *boundary.Boundary, rv *boundary.RuleVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.boundaries[b.TenantID] == nil {
		s.boundaries[b.TenantID] = make(map[string]*boundary.Boundary)
		s.anchors[b.TenantID] = make(map[string]*boundary.RuleVector)
	}

	stored := copyBoundary(b)
	if prev, ok := s.boundaries[b.TenantID][b.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}

	s.boundaries[b.TenantID][b.ID] = stored
	rvCopy := *rv
	s.anchors[b.TenantID][b.ID] = &rvCopy
	return nil
}

// Delete removes a boundary and its anchors. Unknown ids are a no-op.
func (s *BoundaryStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.boundaries[tenantID], id)
	delete(s.anchors[tenantID], id)
	return nil
}

// Get returns a boundary by id.
// Returns boundary.ErrBoundaryNotFound if it doesn't exist.
func (s *BoundaryStore) Get(ctx context.Context, tenantID, id string) (*boundary.Boundary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boundaries[tenantID][id]
	if !ok {
		return nil, boundary.ErrBoundaryNotFound
	}
	return copyBoundary(b), nil
}

// List returns all boundaries for a tenant sorted by id.
func (s *BoundaryStore) List(ctx context.Context, tenantID string) ([]*boundary.Boundary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*boundary.Boundary, 0, len(s.boundaries[tenantID]))
	for _, b := range s.boundaries[tenantID] {
		result = append(result, copyBoundary(b))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListActive returns every active boundary paired with its anchors,
// sorted by priority then id.
func (s *BoundaryStore) ListActive(ctx context.Context, tenantID string) ([]boundary.Installed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []boundary.Installed
	for id, b := range s.boundaries[tenantID] {
		if b.Status != boundary.StatusActive {
			continue
		}
		rv := *s.anchors[tenantID][id]
		result = append(result, boundary.Installed{
			Boundary: copyBoundary(b),
			Anchors:  &rv,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Boundary, result[j].Boundary
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return result, nil
}

// copyBoundary creates a deep copy of a boundary.
func copyBoundary(b *boundary.Boundary) *boundary.Boundary {
	out := *b
	out.Constraints.Action.Actions = append([]string(nil), b.Constraints.Action.Actions...)
	out.Constraints.Action.ActorTypes = append([]string(nil), b.Constraints.Action.ActorTypes...)
	out.Constraints.Resource.Types = append([]string(nil), b.Constraints.Resource.Types...)
	out.Constraints.Resource.Names = append([]string(nil), b.Constraints.Resource.Names...)
	out.Constraints.Resource.Locations = append([]string(nil), b.Constraints.Resource.Locations...)
	out.Constraints.Data.Sensitivity = append([]string(nil), b.Constraints.Data.Sensitivity...)
	out.Scope.Domains = append([]string(nil), b.Scope.Domains...)
	if b.Constraints.Data.PII != nil {
		pii := *b.Constraints.Data.PII
		out.Constraints.Data.PII = &pii
	}
	if b.Modification != nil {
		spec := boundary.ModificationSpec{SetParams: make(map[string]string, len(b.Modification.SetParams))}
		for k, v := range b.Modification.SetParams {
			spec.SetParams[k] = v
		}
		out.Modification = &spec
	}
	return &out
}

// Compile-time interface verification.
var _ boundary.Store = (*BoundaryStore)(nil)
