// Package service contains the application services that tie the
// domain, encoder and adapters together.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	celmod "github.com/Intent-Gate/Intentgate/internal/adapter/outbound/cel"
	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/encoder"
	"github.com/Intent-Gate/Intentgate/internal/telemetry"
)

// DataPlane is the downstream enforcement cache that mirrors installed
// boundaries. The store remains the source of truth; data-plane pushes
// are best-effort and re-synced at startup.
type DataPlane interface {
	InstallBoundary(ctx context.Context, b *boundary.Boundary, rv *boundary.RuleVector) error
	RemoveBoundary(ctx context.Context, tenantID, id string) error
}

// BoundaryService implements boundary management: validate, encode,
// persist, snapshot, and mirror to the data plane.
type BoundaryService struct {
	store     boundary.Store
	enc       *encoder.Encoder
	modifier  *celmod.Modifier
	dataplane DataPlane // nil when no data plane is configured
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	validate  *validator.Validate

	// snapshot holds map[string][]boundary.Installed keyed by tenant.
	// Writers rebuild a tenant's slice under mu and swap the whole map;
	// readers only load.
	mu       sync.Mutex
	snapshot atomic.Value
}

// NewBoundaryService creates the service. dataplane and metrics may be
// nil.
func NewBoundaryService(store boundary.Store, enc *encoder.Encoder, modifier *celmod.Modifier,
	dataplane DataPlane, logger *slog.Logger, metrics *telemetry.Metrics) *BoundaryService {
	s := &BoundaryService{
		store:     store,
		enc:       enc,
		modifier:  modifier,
		dataplane: dataplane,
		logger:    logger,
		metrics:   metrics,
		validate:  validator.New(),
	}
	s.snapshot.Store(map[string][]boundary.Installed{})
	return s
}

// Install validates, encodes and persists a boundary, then refreshes
// the tenant snapshot and mirrors the payload to the data plane.
func (s *BoundaryService) Install(ctx context.Context, b *boundary.Boundary) (*boundary.Boundary, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.NormalizeWeights()
	if err := s.validateBoundary(b); err != nil {
		s.countInstall("install", "error")
		return nil, err
	}

	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	rv, err := s.enc.EncodeBoundary(ctx, b)
	if err != nil {
		s.countInstall("install", "error")
		return nil, fmt.Errorf("encode boundary %s: %w", b.ID, err)
	}

	if err := s.store.Save(ctx, b, rv); err != nil {
		s.countInstall("install", "error")
		return nil, fmt.Errorf("persist boundary %s: %w", b.ID, err)
	}

	if err := s.refreshSnapshot(ctx, b.TenantID); err != nil {
		return nil, err
	}

	if s.dataplane != nil {
		if err := s.dataplane.InstallBoundary(ctx, b, rv); err != nil {
			s.logger.Warn("data plane install failed",
				"boundary_id", b.ID, "tenant_id", b.TenantID, "error", err)
		}
	}

	s.countInstall("install", "ok")
	s.logger.Info("boundary installed",
		"boundary_id", b.ID, "tenant_id", b.TenantID, "effect", b.Effect, "type", b.Type)
	return b, nil
}

// Remove deletes a boundary. Idempotent.
func (s *BoundaryService) Remove(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		s.countInstall("remove", "error")
		return fmt.Errorf("remove boundary %s: %w", id, err)
	}
	if err := s.refreshSnapshot(ctx, tenantID); err != nil {
		return err
	}

	if s.dataplane != nil {
		if err := s.dataplane.RemoveBoundary(ctx, tenantID, id); err != nil {
			s.logger.Warn("data plane remove failed",
				"boundary_id", id, "tenant_id", tenantID, "error", err)
		}
	}

	s.countInstall("remove", "ok")
	s.logger.Info("boundary removed", "boundary_id", id, "tenant_id", tenantID)
	return nil
}

// Get returns one boundary.
func (s *BoundaryService) Get(ctx context.Context, tenantID, id string) (*boundary.Boundary, error) {
	return s.store.Get(ctx, tenantID, id)
}

// List returns all boundaries for a tenant.
func (s *BoundaryService) List(ctx context.Context, tenantID string) ([]*boundary.Boundary, error) {
	return s.store.List(ctx, tenantID)
}

// Active returns the consistent (boundary, anchors) snapshot for a
// tenant, ordered by priority. The slice is shared and must not be
// mutated by callers.
func (s *BoundaryService) Active(ctx context.Context, tenantID string) ([]boundary.Installed, error) {
	snap := s.snapshot.Load().(map[string][]boundary.Installed)
	if installed, ok := snap[tenantID]; ok {
		return installed, nil
	}

	// Cold tenant: populate from the store once.
	if err := s.refreshSnapshot(ctx, tenantID); err != nil {
		return nil, err
	}
	snap = s.snapshot.Load().(map[string][]boundary.Installed)
	return snap[tenantID], nil
}

// Resync pushes every active boundary of the given tenants to the
// data plane. Per-boundary failures are logged and skipped; a resync
// never blocks startup.
func (s *BoundaryService) Resync(ctx context.Context, tenantIDs ...string) {
	if s.dataplane == nil {
		return
	}
	for _, tenantID := range tenantIDs {
		installed, err := s.store.ListActive(ctx, tenantID)
		if err != nil {
			s.logger.Warn("resync list failed", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, inst := range installed {
			if err := s.dataplane.InstallBoundary(ctx, inst.Boundary, inst.Anchors); err != nil {
				s.logger.Warn("resync install failed",
					"boundary_id", inst.Boundary.ID, "tenant_id", tenantID, "error", err)
				continue
			}
		}
		s.logger.Info("data plane resynced", "tenant_id", tenantID, "boundaries", len(installed))
	}
}

func (s *BoundaryService) refreshSnapshot(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	installed, err := s.store.ListActive(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load active boundaries for %s: %w", tenantID, err)
	}

	old := s.snapshot.Load().(map[string][]boundary.Installed)
	next := make(map[string][]boundary.Installed, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[tenantID] = installed
	s.snapshot.Store(next)
	return nil
}

func (s *BoundaryService) validateBoundary(b *boundary.Boundary) error {
	if err := s.validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", boundary.ErrInvalidBoundary, err)
	}
	if b.Mode == boundary.ModeWeightedAvg && b.GlobalThreshold == 0 {
		return fmt.Errorf("%w: weighted-avg mode requires a global threshold", boundary.ErrInvalidBoundary)
	}
	if b.Modification != nil && s.modifier != nil {
		if err := s.modifier.Validate(b.Modification); err != nil {
			return fmt.Errorf("%w: %v", boundary.ErrInvalidBoundary, err)
		}
	}
	return nil
}

func (s *BoundaryService) countInstall(op, status string) {
	if s.metrics != nil {
		s.metrics.InstallsTotal.WithLabelValues(op, status).Inc()
	}
}
