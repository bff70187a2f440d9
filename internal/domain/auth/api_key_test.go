package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/adapter/outbound/memory"
	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
)

func TestGenerateKeyFormat(t *testing.T) {
	t.Parallel()

	raw, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if !strings.HasPrefix(raw, "igk_") {
		t.Errorf("key = %q, want igk_ prefix", raw)
	}
	if len(raw) != len("igk_")+64 {
		t.Errorf("key length = %d, want %d", len(raw), len("igk_")+64)
	}
}

func TestHashAndVerifyKey(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashKey("igk_test")
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q, want $argon2id$ prefix", hash)
	}

	match, err := auth.VerifyKey("igk_test", hash)
	if err != nil || !match {
		t.Errorf("VerifyKey(correct) = (%v, %v), want (true, nil)", match, err)
	}
	match, err = auth.VerifyKey("igk_wrong", hash)
	if err != nil || match {
		t.Errorf("VerifyKey(wrong) = (%v, %v), want (false, nil)", match, err)
	}
}

func TestVerifyKeyRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"not phc", "deadbeef"},
		{"zero iterations", "$argon2id$v=19$m=47104,t=0,p=1$c2FsdHNhbHQ$aGFzaGhhc2g"},
		{"truncated", "$argon2id$v=19$m=47104"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if match, err := auth.VerifyKey("igk_test", tt.hash); err == nil || match {
				t.Errorf("VerifyKey() = (%v, %v), want error", match, err)
			}
		})
	}
}

func TestKeyringIssueAndValidate(t *testing.T) {
	t.Parallel()

	ring := auth.NewKeyring(memory.NewAuthStore())
	ctx := context.Background()

	key, raw, err := ring.Issue(ctx, "acme", "ci-agent", auth.RoleAgent, nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if key.Hash == raw {
		t.Fatal("stored hash equals raw key")
	}

	p, err := ring.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.TenantID != "acme" || p.Role != auth.RoleAgent || p.KeyID != key.ID {
		t.Errorf("principal = %+v", p)
	}
	if !p.Can(auth.RoleReadOnly) || p.Can(auth.RoleAdmin) {
		t.Error("agent role lattice wrong")
	}

	if _, err := ring.Validate(ctx, "igk_nope"); !errors.Is(err, auth.ErrInvalidKey) {
		t.Errorf("Validate(unknown) error = %v, want ErrInvalidKey", err)
	}
}

func TestKeyringRevokedAndExpired(t *testing.T) {
	t.Parallel()

	ring := auth.NewKeyring(memory.NewAuthStore())
	ctx := context.Background()

	key, raw, err := ring.Issue(ctx, "acme", "short-lived", auth.RoleAdmin, nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := ring.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := ring.Validate(ctx, raw); !errors.Is(err, auth.ErrInvalidKey) {
		t.Errorf("Validate(revoked) error = %v, want ErrInvalidKey", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	_, raw2, err := ring.Issue(ctx, "acme", "expired", auth.RoleAdmin, &past)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := ring.Validate(ctx, raw2); !errors.Is(err, auth.ErrInvalidKey) {
		t.Errorf("Validate(expired) error = %v, want ErrInvalidKey", err)
	}
}
