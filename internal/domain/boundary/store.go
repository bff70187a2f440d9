package boundary

import "context"

// Store persists boundaries together with their encoded anchors. A
// boundary row and its anchor payload are written atomically; readers
// never observe one without the other.
type Store interface {
	// Save inserts or replaces a boundary and its anchors. On replace
	// the original created_at is preserved.
	Save(ctx context.Context, b *Boundary, rv *RuleVector) error

	// Delete removes a boundary and its anchors. Deleting an unknown id
	// is not an error.
	Delete(ctx context.Context, tenantID, id string) error

	// Get returns one boundary or ErrBoundaryNotFound.
	Get(ctx context.Context, tenantID, id string) (*Boundary, error)

	// List returns all boundaries for a tenant, any status.
	List(ctx context.Context, tenantID string) ([]*Boundary, error)

	// ListActive returns every active boundary paired with its anchors.
	ListActive(ctx context.Context, tenantID string) ([]Installed, error)
}
