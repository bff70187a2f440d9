package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// BoundaryStore implements boundary.Store on sqlite. A boundary row
// and its anchor payload are written in one transaction so readers
// never see them out of step.
type BoundaryStore struct {
	db *sql.DB
}

// NewBoundaryStore wraps an opened database handle.
func NewBoundaryStore(db *sql.DB) *BoundaryStore {
	return &BoundaryStore{db: db}
}

// Save inserts or replaces a boundary and its anchors atomically,
// preserving the original created_at on replace.
func (s *BoundaryStore) Save(ctx context.Context, b *boundary.Boundary, rv *boundary.RuleVector) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal boundary %s: %w", b.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boundaries (tenant_id, id, payload, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			payload = excluded.payload,
			status = excluded.status,
			priority = excluded.priority,
			updated_at = excluded.updated_at`,
		b.TenantID, b.ID, string(payload), string(b.Status), b.Priority,
		b.CreatedAt.UTC().Format(time.RFC3339Nano), b.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save boundary %s: %w", b.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boundary_anchors (tenant_id, boundary_id, anchors)
		VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, boundary_id) DO UPDATE SET anchors = excluded.anchors`,
		b.TenantID, b.ID, encodeRuleVector(rv))
	if err != nil {
		return fmt.Errorf("save anchors for %s: %w", b.ID, err)
	}

	return tx.Commit()
}

// Delete removes a boundary and its anchors. Unknown ids are a no-op.
func (s *BoundaryStore) Delete(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM boundaries WHERE tenant_id = ? AND id = ?`, tenantID, id); err != nil {
		return fmt.Errorf("delete boundary %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM boundary_anchors WHERE tenant_id = ? AND boundary_id = ?`, tenantID, id); err != nil {
		return fmt.Errorf("delete anchors for %s: %w", id, err)
	}
	return tx.Commit()
}

// Get returns one boundary or boundary.ErrBoundaryNotFound.
func (s *BoundaryStore) Get(ctx context.Context, tenantID, id string) (*boundary.Boundary, error) {
	var payload, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at, updated_at FROM boundaries WHERE tenant_id = ? AND id = ?`,
		tenantID, id).Scan(&payload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, boundary.ErrBoundaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get boundary %s: %w", id, err)
	}
	return unmarshalBoundary(payload, createdAt, updatedAt)
}

// List returns all boundaries for a tenant ordered by id.
func (s *BoundaryStore) List(ctx context.Context, tenantID string) ([]*boundary.Boundary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, created_at, updated_at FROM boundaries WHERE tenant_id = ? ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list boundaries: %w", err)
	}
	defer rows.Close()

	var result []*boundary.Boundary
	for rows.Next() {
		var payload, createdAt, updatedAt string
		if err := rows.Scan(&payload, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		b, err := unmarshalBoundary(payload, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ListActive joins active boundaries with their anchors, ordered by
// priority then id.
func (s *BoundaryStore) ListActive(ctx context.Context, tenantID string) ([]boundary.Installed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.payload, b.created_at, b.updated_at, a.anchors
		FROM boundaries b
		JOIN boundary_anchors a ON a.tenant_id = b.tenant_id AND a.boundary_id = b.id
		WHERE b.tenant_id = ? AND b.status = ?
		ORDER BY b.priority, b.id`,
		tenantID, string(boundary.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active boundaries: %w", err)
	}
	defer rows.Close()

	var result []boundary.Installed
	for rows.Next() {
		var payload, createdAt, updatedAt string
		var anchorBlob []byte
		if err := rows.Scan(&payload, &createdAt, &updatedAt, &anchorBlob); err != nil {
			return nil, fmt.Errorf("scan active boundary: %w", err)
		}
		b, err := unmarshalBoundary(payload, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		rv, err := decodeRuleVector(anchorBlob)
		if err != nil {
			return nil, fmt.Errorf("boundary %s: %w", b.ID, err)
		}
		result = append(result, boundary.Installed{Boundary: b, Anchors: rv})
	}
	return result, rows.Err()
}

// unmarshalBoundary rebuilds a boundary from its JSON payload. The
// dedicated timestamp columns win over the payload copy since updates
// rewrite the columns in place.
func unmarshalBoundary(payload, createdAt, updatedAt string) (*boundary.Boundary, error) {
	var b boundary.Boundary
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, fmt.Errorf("unmarshal boundary: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	b.CreatedAt = created
	b.UpdatedAt = updated
	return &b, nil
}

// Compile-time interface verification.
var _ boundary.Store = (*BoundaryStore)(nil)
