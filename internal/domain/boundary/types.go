// Package boundary contains domain types for design boundaries: the
// declarative policies that the enforcement engine compares intents
// against.
package boundary

import (
	"errors"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// Effect determines what a matching boundary means for the verdict.
type Effect string

const (
	// EffectAllow describes behaviour inside the boundary.
	EffectAllow Effect = "allow"
	// EffectDeny describes behaviour that must be blocked.
	EffectDeny Effect = "deny"
)

// Type distinguishes boundaries that must match from advisory ones.
type Type string

const (
	// TypeMandatory allow boundaries must pass for an intent to be allowed.
	TypeMandatory Type = "mandatory"
	// TypeOptional boundaries contribute evidence but never decide.
	TypeOptional Type = "optional"
)

// Status gates whether a boundary participates in enforcement.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Mode selects the local decision function for a boundary.
type Mode string

const (
	// ModeMin requires every slice similarity to clear its threshold.
	ModeMin Mode = "min"
	// ModeWeightedAvg additionally requires the weighted average of the
	// slice similarities to clear the global threshold.
	ModeWeightedAvg Mode = "weighted-avg"
)

// Slice indices into per-slice arrays, in fixed encoding order.
const (
	SliceAction = iota
	SliceResource
	SliceData
	SliceRisk
	NumSlices
)

// SliceNames maps slice indices to their wire names.
var SliceNames = [NumSlices]string{"action", "resource", "data", "risk"}

// ActionConstraint restricts who may do what.
type ActionConstraint struct {
	Actions    []string `json:"actions" validate:"required,min=1"`
	ActorTypes []string `json:"actor_types" validate:"required,min=1"`
}

// ResourceConstraint restricts the operation target.
type ResourceConstraint struct {
	Types []string `json:"types" validate:"required,min=1"`
	// Names optionally pins the boundary to specific named resources.
	Names []string `json:"names,omitempty"`
	// Locations optionally restricts where the resource lives. An empty
	// list encodes as the single location "unspecified".
	Locations []string `json:"locations,omitempty"`
}

// DataConstraint restricts payload sensitivity characteristics.
type DataConstraint struct {
	Sensitivity []string `json:"sensitivity" validate:"required,min=1"`
	// PII constrains whether the operation may touch personal data.
	// Nil leaves both values inside the boundary.
	PII *bool `json:"pii,omitempty"`
	// Volume is "single" or "bulk". Empty leaves both inside.
	Volume string `json:"volume,omitempty"`
}

// RiskConstraint restricts authentication posture.
type RiskConstraint struct {
	Authn string `json:"authn" validate:"required,oneof=required not_required"`
}

// Constraints is the full declarative surface of a boundary.
type Constraints struct {
	Action   ActionConstraint   `json:"action"`
	Resource ResourceConstraint `json:"resource"`
	Data     DataConstraint     `json:"data"`
	Risk     RiskConstraint     `json:"risk"`
}

// Scope optionally narrows a boundary to named domains.
type Scope struct {
	Domains []string `json:"domains,omitempty"`
}

// ModificationSpec rewrites intent params when its boundary matches.
// Each entry maps a dotted param path to a CEL expression evaluated
// against the original params.
type ModificationSpec struct {
	SetParams map[string]string `json:"set_params" validate:"required,min=1"`
}

// Boundary is an installed design boundary. Immutable after install;
// updates replace the whole row and re-encode the anchors.
type Boundary struct {
	ID       string `json:"id" validate:"required"`
	TenantID string `json:"tenant_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Status   Status `json:"status" validate:"required,oneof=active disabled"`
	Effect   Effect `json:"effect" validate:"required,oneof=allow deny"`
	Type     Type   `json:"type" validate:"required,oneof=mandatory optional"`

	// Priority orders deny evaluation; lower evaluates first.
	Priority int `json:"priority"`

	Constraints Constraints `json:"constraints"`
	Scope       Scope       `json:"scope"`

	// Thresholds are the per-slice similarity floors, in slice order.
	Thresholds [NumSlices]float64 `json:"thresholds" validate:"dive,gte=0,lte=1"`
	// Weights scale each slice in weighted-avg mode. Zero-valued weights
	// are normalised to 1 at install time.
	Weights [NumSlices]float64 `json:"weights"`

	Mode Mode `json:"mode" validate:"required,oneof=min weighted-avg"`
	// GlobalThreshold is required in weighted-avg mode.
	GlobalThreshold float64 `json:"global_threshold,omitempty" validate:"gte=0,lte=1"`
	// DriftThreshold, when set in (0,1], blocks intents whose per-call
	// session drift exceeds it.
	DriftThreshold float64 `json:"drift_threshold,omitempty" validate:"gte=0,lte=1"`

	Modification *ModificationSpec `json:"modification,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeWeights replaces unset (zero) slice weights with 1.
func (b *Boundary) NormalizeWeights() {
	for i := range b.Weights {
		if b.Weights[i] == 0 {
			b.Weights[i] = 1
		}
	}
}

// AnchorSet is the encoded anchor matrix of one slice with its true
// row count. Rows at and beyond Count are zero padding.
type AnchorSet struct {
	Matrix vector.AnchorMatrix
	Count  int
}

// RuleVector is the encoded form of a boundary: one anchor set per
// semantic slice, in slice order.
type RuleVector struct {
	Slices [NumSlices]AnchorSet
}

// Installed pairs a boundary with its encoded anchors. The enforcement
// snapshot hands these out together so no reader ever sees a boundary
// without its anchor payload.
type Installed struct {
	Boundary *Boundary
	Anchors  *RuleVector
}

// Evidence is one per-boundary record in a comparison result. Records
// appear in evaluation order; for a deny verdict the deciding record
// is last.
type Evidence struct {
	BoundaryID    string             `json:"boundary_id"`
	BoundaryName  string             `json:"boundary_name"`
	Effect        Effect             `json:"effect"`
	Type          Type               `json:"type"`
	Similarities  [NumSlices]float32 `json:"similarities"`
	Passed        bool               `json:"passed"`
	Applicability float64            `json:"applicability_score"`
}

// Reason codes attached to every comparison result.
const (
	ReasonAllow                  = "allow"
	ReasonDenyMatch              = "deny_match"
	ReasonNoBoundariesInstalled  = "no_boundaries_installed"
	ReasonNoApplicableBoundaries = "no_applicable_boundaries"
	ReasonMandatoryAllowFailed   = "mandatory_allow_failed"
	ReasonNoMandatoryAllow       = "no_mandatory_allow"
	ReasonEncodingFailed         = "encoding_failed"
	ReasonDriftTriggered         = "drift_triggered"
)

// Decision values in a comparison result.
const (
	DecisionBlock = 0
	DecisionAllow = 1
)

// ComparisonResult is the verdict for one intent event.
type ComparisonResult struct {
	RequestID      string             `json:"request_id"`
	Decision       int                `json:"decision"`
	Similarities   [NumSlices]float32 `json:"similarities"`
	RulesEvaluated int                `json:"rules_evaluated"`
	Timestamp      time.Time          `json:"timestamp"`
	Evidence       []Evidence         `json:"evidence"`
	Reason         string             `json:"reason"`
	Warning        string             `json:"warning,omitempty"`

	DriftScore     float64        `json:"drift_score,omitempty"`
	DriftTriggered bool           `json:"drift_triggered,omitempty"`
	ModifiedParams map[string]any `json:"modified_params,omitempty"`
}

// Allowed reports whether the verdict permits the intent.
func (r *ComparisonResult) Allowed() bool { return r.Decision == DecisionAllow }

var (
	// ErrBoundaryNotFound is returned by stores for unknown ids.
	ErrBoundaryNotFound = errors.New("boundary not found")
	// ErrInvalidBoundary is returned when install-time validation fails.
	ErrInvalidBoundary = errors.New("invalid boundary")
)
