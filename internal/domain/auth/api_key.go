package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
)

// ErrInvalidKey is returned when an API key is unknown, expired or
// revoked.
var ErrInvalidKey = errors.New("invalid api key")

// keyPrefix marks raw intent-gate keys so they are recognisable in
// configuration and logs without revealing entropy.
const keyPrefix = "igk_"

// argon2idParams are the OWASP minimum parameters for Argon2id:
// 47 MiB memory, one iteration, one lane.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// GenerateKey produces a new raw API key with 256 bits of entropy.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

// HashKey returns the Argon2id PHC hash of a raw key, for example
// $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>.
func HashKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// VerifyKey compares a raw key against a stored PHC hash. The
// underlying library panics on malformed parameter strings, so the
// comparison is recovered into an error.
func VerifyKey(rawKey, storedHash string) (match bool, err error) {
	if !strings.HasPrefix(storedHash, "$argon2id$") {
		return false, fmt.Errorf("unsupported hash format")
	}
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}

// Keyring issues and validates API keys against a Store.
type Keyring struct {
	store Store
	now   func() time.Time
}

// NewKeyring creates a Keyring over the given store.
func NewKeyring(store Store) *Keyring {
	return &Keyring{store: store, now: time.Now}
}

// Issue creates a new key for a tenant and returns the stored record
// together with the raw key. The raw key is not recoverable later.
func (k *Keyring) Issue(ctx context.Context, tenantID, name string, role Role, expiresAt *time.Time) (*APIKey, string, error) {
	if !role.IsValid() {
		return nil, "", fmt.Errorf("unknown role %q", role)
	}
	raw, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("hash api key: %w", err)
	}

	key := &APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Hash:      hash,
		Role:      role,
		CreatedAt: k.now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := k.store.Add(ctx, key); err != nil {
		return nil, "", err
	}
	return key, raw, nil
}

// Validate resolves a raw key to its principal. Argon2id hashes are
// salted, so lookup iterates the stored keys.
func (k *Keyring) Validate(ctx context.Context, rawKey string) (*Principal, error) {
	keys, err := k.store.List(ctx)
	if err != nil {
		return nil, ErrInvalidKey
	}
	now := k.now().UTC()
	for _, candidate := range keys {
		match, verifyErr := VerifyKey(rawKey, candidate.Hash)
		if verifyErr != nil || !match {
			continue
		}
		if candidate.Revoked || candidate.Expired(now) {
			return nil, ErrInvalidKey
		}
		return &Principal{KeyID: candidate.ID, TenantID: candidate.TenantID, Role: candidate.Role}, nil
	}
	return nil, ErrInvalidKey
}

// Revoke marks a key unusable. Idempotent for already revoked keys.
func (k *Keyring) Revoke(ctx context.Context, id string) error {
	return k.store.Revoke(ctx, id)
}
