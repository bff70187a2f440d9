// Package intent contains domain types for semantic intent events.
package intent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion identifies the intent event schema revision.
type SchemaVersion string

const (
	// SchemaV11 is the base event schema.
	SchemaV11 SchemaVersion = "v1.1"
	// SchemaV12 adds tool call fields (tool_name, tool_method, tool_params).
	SchemaV12 SchemaVersion = "v1.2"
	// SchemaV13 adds the rate limit context.
	SchemaV13 SchemaVersion = "v1.3"
)

// Valid reports whether v is a known schema version.
func (v SchemaVersion) Valid() bool {
	switch v {
	case SchemaV11, SchemaV12, SchemaV13:
		return true
	}
	return false
}

// Actor identifies who is attempting the operation.
type Actor struct {
	// ID is the caller's stable identifier (agent id, user id, service name).
	ID string `json:"id" validate:"required"`
	// Type is a canonical actor type from the vocabulary (user, service, llm, agent).
	Type string `json:"type" validate:"required"`
}

// Resource identifies what the operation targets.
type Resource struct {
	// Type is a canonical resource type from the vocabulary.
	Type string `json:"type" validate:"required"`
	// Name optionally narrows the target to a specific named resource.
	Name string `json:"name,omitempty"`
	// Location optionally states where the resource lives (e.g. "cloud", "on_prem").
	Location string `json:"location,omitempty"`
}

// Data describes the sensitivity characteristics of the operation's payload.
type Data struct {
	// Sensitivity lists canonical sensitivity levels touched by the operation.
	Sensitivity []string `json:"sensitivity" validate:"required,min=1"`
	// PII is set when the operation is known to touch (or not touch)
	// personally identifiable information. Nil means unknown.
	PII *bool `json:"pii,omitempty"`
	// Volume is "single" or "bulk". Empty means unknown.
	Volume string `json:"volume,omitempty"`
}

// Risk captures authentication posture for the operation.
type Risk struct {
	// Authn is "required" or "not_required".
	Authn string `json:"authn" validate:"required"`
}

// RateLimitContext reports observed call pressure at event build time.
type RateLimitContext struct {
	// CallsLastMinute is the number of enforced calls in the trailing 60 s window.
	CallsLastMinute int `json:"calls_last_minute"`
	// WindowSeconds is the sliding window length.
	WindowSeconds int `json:"window_seconds"`
}

// Event is a single semantic intent: who wants to do what, to which
// resource, with what data characteristics and risk posture. Events are
// immutable after construction; every enforcement decision is keyed to
// exactly one event.
type Event struct {
	ID            string        `json:"id" validate:"required,uuid4"`
	SchemaVersion SchemaVersion `json:"schema_version" validate:"required"`
	TenantID      string        `json:"tenant_id" validate:"required"`
	Timestamp     time.Time     `json:"timestamp"`

	Actor    Actor    `json:"actor"`
	Action   string   `json:"action" validate:"required"`
	Resource Resource `json:"resource"`
	Data     Data     `json:"data"`
	Risk     Risk     `json:"risk"`

	// Context carries free-form caller metadata. It participates in
	// canonical serialisation but never in slot encoding.
	Context map[string]any `json:"context,omitempty"`

	// Layer names the enforcement layer that built this event (e.g. "L4").
	Layer string `json:"layer,omitempty"`

	// Tool call detail, present from schema v1.2.
	ToolName   string         `json:"tool_name,omitempty"`
	ToolMethod string         `json:"tool_method,omitempty"`
	ToolParams map[string]any `json:"tool_params,omitempty"`

	// RateLimit is present from schema v1.3.
	RateLimit *RateLimitContext `json:"rate_limit_context,omitempty"`
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// Validate checks structural invariants that do not depend on the
// vocabulary. Vocabulary membership is checked by the encoder.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("intent event: missing id")
	}
	if !e.SchemaVersion.Valid() {
		return fmt.Errorf("intent event %s: unknown schema version %q", e.ID, e.SchemaVersion)
	}
	if e.TenantID == "" {
		return fmt.Errorf("intent event %s: missing tenant id", e.ID)
	}
	if e.Actor.ID == "" || e.Actor.Type == "" {
		return fmt.Errorf("intent event %s: incomplete actor", e.ID)
	}
	if e.Action == "" {
		return fmt.Errorf("intent event %s: missing action", e.ID)
	}
	if e.Resource.Type == "" {
		return fmt.Errorf("intent event %s: missing resource type", e.ID)
	}
	if len(e.Data.Sensitivity) == 0 {
		return fmt.Errorf("intent event %s: missing data sensitivity", e.ID)
	}
	if e.Risk.Authn == "" {
		return fmt.Errorf("intent event %s: missing authn level", e.ID)
	}
	if e.RateLimit != nil && e.SchemaVersion != SchemaV13 {
		return fmt.Errorf("intent event %s: rate limit context requires schema %s", e.ID, SchemaV13)
	}
	return nil
}
