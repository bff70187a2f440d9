// Package service contains the application services that tie the
// domain, encoder and adapters together.
package service

import (
	"sort"
	"sync"
	"time"
)

// AgentInfo represents an agent known to the gateway, recorded at
// registration time and refreshed on activity.
type AgentInfo struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SDKVersion string    `json:"sdk_version,omitempty"`
	Framework  string    `json:"framework,omitempty"`
	BoundaryID string    `json:"boundary_id,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// AgentRegistry tracks registered agents in memory.
// It is safe for concurrent use.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*AgentInfo
}

// NewAgentRegistry creates a new empty AgentRegistry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*AgentInfo),
	}
}

// Register adds an agent or refreshes an existing one. FirstSeen is
// preserved across re-registrations.
func (r *AgentRegistry) Register(info AgentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.agents[info.ID]; ok {
		info.FirstSeen = existing.FirstSeen
	} else if info.FirstSeen.IsZero() {
		info.FirstSeen = now
	}
	info.LastSeen = now

	copied := info
	r.agents[info.ID] = &copied
}

// Touch refreshes an agent's last-seen timestamp.
// Does nothing if the agent is not registered.
func (r *AgentRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.LastSeen = time.Now().UTC()
	}
}

// Unregister removes an agent from the registry.
func (r *AgentRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// List returns all agents sorted by LastSeen descending (newest first).
func (r *AgentRegistry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastSeen.After(result[j].LastSeen)
	})

	return result
}

// Get returns a single agent by ID. Returns nil, false if not found.
func (r *AgentRegistry) Get(id string) (*AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	copied := *a
	return &copied, true
}
