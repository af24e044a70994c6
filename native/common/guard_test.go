package common

import (
	"errors"
	"testing"

	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
)

type stubPauses map[string]bool

func (s stubPauses) IsPaused(module string) bool { return s[module] }

type stubWhitelist map[string]bool

func (s stubWhitelist) IsWhitelisted(addr crypto.Address) bool { return s[string(addr.Bytes())] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := stubPauses{"vault": true}
	if err := Guard(pauses, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "vault"); !errors.Is(err, coreerrors.ErrAuthorization) {
		t.Fatalf("expected authorization class, got %v", err)
	}
	if err := Guard(pauses, "whitelist"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
}

func TestRequireWhitelisted(t *testing.T) {
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	view := stubWhitelist{string(alice.Bytes()): true}

	if err := RequireWhitelisted(view, alice); err != nil {
		t.Fatalf("alice should pass: %v", err)
	}
	if err := RequireWhitelisted(view, bob); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("expected ErrNotWhitelisted, got %v", err)
	}
	if err := RequireWhitelisted(nil, bob); err != nil {
		t.Fatalf("nil view admits everyone: %v", err)
	}
}
