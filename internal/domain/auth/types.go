// Package auth contains API-key authentication for the gateway's
// management and enforcement surfaces.
package auth

import (
	"time"
)

// Role scopes what an API key may do.
type Role string

const (
	// RoleAdmin may manage boundaries, agents and sessions.
	RoleAdmin Role = "admin"
	// RoleAgent may submit intents for enforcement and register itself.
	RoleAgent Role = "agent"
	// RoleReadOnly may read boundaries and session telemetry.
	RoleReadOnly Role = "read-only"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleReadOnly:
		return true
	default:
		return false
	}
}

// allows is the role lattice: admin covers everything, agent covers
// read-only.
func (r Role) allows(required Role) bool {
	if r == required || r == RoleAdmin {
		return true
	}
	return r == RoleAgent && required == RoleReadOnly
}

// APIKey is a stored credential. Hash is an Argon2id PHC string; the
// raw key is shown once at creation and never persisted.
type APIKey struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Hash      string     `json:"-"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Expired reports whether the key has passed its expiry. A nil
// ExpiresAt never expires.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Principal is the authenticated caller attached to a request after a
// key validates.
type Principal struct {
	KeyID    string
	TenantID string
	Role     Role
}

// Can reports whether the principal's role satisfies the required one.
func (p *Principal) Can(required Role) bool {
	return p.Role.allows(required)
}
