package auth

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by stores for unknown key ids.
var ErrKeyNotFound = errors.New("api key not found")

// Store persists API keys. Argon2id hashes are salted and therefore
// not addressable, so validation lists and verifies.
type Store interface {
	// Add stores a new key.
	Add(ctx context.Context, key *APIKey) error
	// Get returns one key by id.
	Get(ctx context.Context, id string) (*APIKey, error)
	// List returns every stored key, including revoked ones.
	List(ctx context.Context) ([]*APIKey, error)
	// Revoke marks a key revoked. Returns ErrKeyNotFound for unknown
	// ids.
	Revoke(ctx context.Context, id string) error
}
