package whitelist

import (
	"stakevault/core/events"
	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
)

// Status is a user's standing with the whitelist.
type Status uint8

const (
	StatusNone        Status = 0
	StatusWhitelisted Status = 1
	StatusBlacklisted Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusWhitelisted:
		return "whitelisted"
	case StatusBlacklisted:
		return "blacklisted"
	default:
		return "no_status"
	}
}

var (
	errNilState = coreerrors.New(coreerrors.ErrState, "state_not_configured", "whitelist engine: state not configured")

	ErrInvalidAddress         = coreerrors.New(coreerrors.ErrValidation, "invalid_address", "whitelist: address required")
	ErrCallerNotAgent         = coreerrors.New(coreerrors.ErrAuthorization, "caller_not_agent", "whitelist: caller is not an agent")
	ErrOwnerCannotBeAdded     = coreerrors.New(coreerrors.ErrState, "owner_cannot_be_added", "whitelist: owner is implicitly an agent")
	ErrOwnerCannotBeRemoved   = coreerrors.New(coreerrors.ErrState, "owner_cannot_be_removed", "whitelist: owner cannot be removed")
	ErrAgentExists            = coreerrors.New(coreerrors.ErrState, "agent_exists", "whitelist: agent already exists")
	ErrAgentNotFound          = coreerrors.New(coreerrors.ErrState, "agent_not_found", "whitelist: agent does not exist")
	ErrUserAlreadyWhitelisted = coreerrors.New(coreerrors.ErrState, "user_already_whitelisted", "whitelist: user already whitelisted")
	ErrUserAlreadyBlacklisted = coreerrors.New(coreerrors.ErrState, "user_already_blacklisted", "whitelist: user already blacklisted")
	ErrStatusAlreadyCleared   = coreerrors.New(coreerrors.ErrState, "status_already_cleared", "whitelist: user status already cleared")
)

type engineState interface {
	IsWhitelistAgent(addr crypto.Address) (bool, error)
	PutWhitelistAgent(addr crypto.Address, active bool) error
	WhitelistAgents() ([]crypto.Address, error)
	UserStatus(addr crypto.Address) (Status, error)
	PutUserStatus(addr crypto.Address, status Status) error
}

// OwnerView identifies the vault owner, who is always an agent.
type OwnerView interface {
	IsOwner(addr crypto.Address) bool
}

// Engine maintains the agent set and the per-user whitelist status.
type Engine struct {
	state   engineState
	owner   OwnerView
	emitter events.Emitter
}

// NewEngine constructs an engine with no state attached.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetOwner(owner OwnerView) { e.owner = owner }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) isOwner(addr crypto.Address) bool {
	return e.owner != nil && e.owner.IsOwner(addr)
}

// IsAgent reports whether addr is the owner or a registered agent.
func (e *Engine) IsAgent(addr crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if addr.IsZero() {
		return false, nil
	}
	if e.isOwner(addr) {
		return true, nil
	}
	return e.state.IsWhitelistAgent(addr)
}

func (e *Engine) requireAgent(caller crypto.Address) error {
	ok, err := e.IsAgent(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallerNotAgent
	}
	return nil
}

// AddAgent lets an agent appoint another agent.
func (e *Engine) AddAgent(caller, agent crypto.Address) error {
	if err := e.requireAgent(caller); err != nil {
		return err
	}
	if agent.IsZero() {
		return ErrInvalidAddress
	}
	if e.isOwner(agent) {
		return ErrOwnerCannotBeAdded
	}
	exists, err := e.state.IsWhitelistAgent(agent)
	if err != nil {
		return err
	}
	if exists {
		return ErrAgentExists
	}
	if err := e.state.PutWhitelistAgent(agent, true); err != nil {
		return err
	}
	e.emitter.Emit(events.WhitelistAgent{Actor: caller, Agent: agent})
	return nil
}

// RemoveAgent revokes an agent. The owner cannot be removed.
func (e *Engine) RemoveAgent(caller, agent crypto.Address) error {
	if err := e.requireAgent(caller); err != nil {
		return err
	}
	if e.isOwner(agent) {
		return ErrOwnerCannotBeRemoved
	}
	exists, err := e.state.IsWhitelistAgent(agent)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAgentNotFound
	}
	if err := e.state.PutWhitelistAgent(agent, false); err != nil {
		return err
	}
	e.emitter.Emit(events.WhitelistAgent{Actor: caller, Agent: agent, Removed: true})
	return nil
}

// Agents lists the registered agents, excluding the implicit owner.
func (e *Engine) Agents() ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.WhitelistAgents()
}

// WhitelistUser admits user to gated instructions.
func (e *Engine) WhitelistUser(caller, user crypto.Address) error {
	return e.setStatus(caller, user, StatusWhitelisted)
}

// BlacklistUser bars user from gated instructions.
func (e *Engine) BlacklistUser(caller, user crypto.Address) error {
	return e.setStatus(caller, user, StatusBlacklisted)
}

// ClearUser resets user to no status.
func (e *Engine) ClearUser(caller, user crypto.Address) error {
	return e.setStatus(caller, user, StatusNone)
}

func (e *Engine) setStatus(caller, user crypto.Address, next Status) error {
	if err := e.requireAgent(caller); err != nil {
		return err
	}
	if user.IsZero() {
		return ErrInvalidAddress
	}
	current, err := e.state.UserStatus(user)
	if err != nil {
		return err
	}
	if current == next {
		switch next {
		case StatusWhitelisted:
			return ErrUserAlreadyWhitelisted
		case StatusBlacklisted:
			return ErrUserAlreadyBlacklisted
		default:
			return ErrStatusAlreadyCleared
		}
	}
	if err := e.state.PutUserStatus(user, next); err != nil {
		return err
	}
	e.emitter.Emit(events.WhitelistStatusChanged{
		Actor:     caller,
		User:      user,
		OldStatus: current.String(),
		NewStatus: next.String(),
	})
	return nil
}

// Status returns user's current status.
func (e *Engine) Status(user crypto.Address) (Status, error) {
	if e == nil || e.state == nil {
		return StatusNone, errNilState
	}
	return e.state.UserStatus(user)
}

// IsWhitelisted implements the gate consulted by vault user instructions.
// Lookup failures deny access.
func (e *Engine) IsWhitelisted(user crypto.Address) bool {
	status, err := e.Status(user)
	return err == nil && status == StatusWhitelisted
}
