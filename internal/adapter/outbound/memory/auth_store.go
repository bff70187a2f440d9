package memory

import (
	"context"
	"sync"

	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
)

// AuthStore keeps API keys in memory. Safe for concurrent use.
type AuthStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.APIKey
}

// NewAuthStore creates an empty in-memory key store.
func NewAuthStore() *AuthStore {
	return &AuthStore{keys: make(map[string]*auth.APIKey)}
}

// Add stores a copy of the key.
func (s *AuthStore) Add(_ context.Context, key *auth.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *key
	s.keys[key.ID] = &copied
	return nil
}

// Get returns one key by id.
func (s *AuthStore) Get(_ context.Context, id string) (*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	copied := *key
	return &copied, nil
}

// List returns copies of every stored key.
func (s *AuthStore) List(_ context.Context) ([]*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*auth.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		copied := *key
		result = append(result, &copied)
	}
	return result, nil
}

// Revoke marks a key revoked.
func (s *AuthStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return auth.ErrKeyNotFound
	}
	key.Revoked = true
	return nil
}

var _ auth.Store = (*AuthStore)(nil)
