package events

import (
	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	TypeWhitelistAgent  = "whitelist.agent"
	TypeWhitelistStatus = "whitelist.statusChanged"
)

// WhitelistAgent records an agent being added or removed.
type WhitelistAgent struct {
	Actor   crypto.Address
	Agent   crypto.Address
	Removed bool
}

func (WhitelistAgent) EventType() string { return TypeWhitelistAgent }

func (e WhitelistAgent) Event() *types.Event {
	action := "added"
	if e.Removed {
		action = "removed"
	}
	return &types.Event{Type: TypeWhitelistAgent, Attributes: map[string]string{
		"actor":  e.Actor.String(),
		"agent":  e.Agent.String(),
		"action": action,
	}}
}

// WhitelistStatusChanged records a user's whitelist status transition.
type WhitelistStatusChanged struct {
	Actor     crypto.Address
	User      crypto.Address
	OldStatus string
	NewStatus string
}

func (WhitelistStatusChanged) EventType() string { return TypeWhitelistStatus }

func (e WhitelistStatusChanged) Event() *types.Event {
	return &types.Event{Type: TypeWhitelistStatus, Attributes: map[string]string{
		"actor":      e.Actor.String(),
		"user":       e.User.String(),
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
	}}
}
