package common

import (
	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
)

var (
	ErrModulePaused   = coreerrors.New(coreerrors.ErrAuthorization, "paused", "module paused")
	ErrNotWhitelisted = coreerrors.New(coreerrors.ErrAuthorization, "not_whitelisted", "account not whitelisted")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// WhitelistView answers whether an account may use gated instructions.
type WhitelistView interface {
	IsWhitelisted(addr crypto.Address) bool
}

// RequireWhitelisted rejects accounts the view does not admit. A nil view
// admits everyone.
func RequireWhitelisted(w WhitelistView, addr crypto.Address) error {
	if w == nil {
		return nil
	}
	if !w.IsWhitelisted(addr) {
		return ErrNotWhitelisted
	}
	return nil
}
