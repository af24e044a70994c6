package vault

import (
	"math/big"
	"strconv"

	"stakevault/core/events"
	"stakevault/crypto"
)

func (e *Engine) ownerState(caller crypto.Address) (*State, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if caller.IsZero() || !caller.Equal(st.Owner) {
		return nil, ErrOnlyOwner
	}
	return st, nil
}

// IsOwner reports whether addr is the current owner.
func (e *Engine) IsOwner(addr crypto.Address) bool {
	st, err := e.loadState()
	if err != nil {
		return false
	}
	return !addr.IsZero() && addr.Equal(st.Owner)
}

func (e *Engine) putAdmin(st *State, action string, caller, target crypto.Address, value string) error {
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultAdmin{Action: action, Actor: caller, Target: target, Value: value})
	return nil
}

// SetPendingOwner nominates the next owner. The nominee has no privileges
// until it claims ownership.
func (e *Engine) SetPendingOwner(caller, pending crypto.Address) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if pending.IsZero() {
		return ErrInvalidAddress
	}
	st.PendingOwner = pending
	return e.putAdmin(st, "set_pending_owner", caller, pending, "")
}

// ClaimOwnership completes the two-step owner handover.
func (e *Engine) ClaimOwnership(caller crypto.Address) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if st.PendingOwner.IsZero() {
		return ErrNoPendingOwner
	}
	if !caller.Equal(st.PendingOwner) {
		return ErrNotPendingOwner
	}
	previous := st.Owner
	st.Owner = caller
	st.PendingOwner = crypto.Address{}
	return e.putAdmin(st, "claim_ownership", caller, previous, "")
}

// SetTreasuryFee updates the fee charged on realised rewards.
func (e *Engine) SetTreasuryFee(caller crypto.Address, bps uint64) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if bps >= MaxFeeBps {
		return ErrFeeTooLarge
	}
	st.Params.TreasuryFeeBps = bps
	return e.putAdmin(st, "set_treasury_fee", caller, crypto.Address{}, strconv.FormatUint(bps, 10))
}

// SetDistributionFee updates the fee charged on allocation distributions.
func (e *Engine) SetDistributionFee(caller crypto.Address, bps uint64) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if bps >= MaxFeeBps {
		return ErrFeeTooLarge
	}
	st.Params.DistributionFeeBps = bps
	return e.putAdmin(st, "set_distribution_fee", caller, crypto.Address{}, strconv.FormatUint(bps, 10))
}

// SetMinDeposit updates the minimum deposit. It never drops below one unit.
func (e *Engine) SetMinDeposit(caller crypto.Address, amount *big.Int) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Cmp(OneUnit) < 0 {
		return ErrMinDepositTooSmall
	}
	st.Params.MinDeposit = new(big.Int).Set(amount)
	return e.putAdmin(st, "set_min_deposit", caller, crypto.Address{}, amount.String())
}

// SetTreasury changes the account receiving fee shares.
func (e *Engine) SetTreasury(caller, treasury crypto.Address) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if treasury.IsZero() {
		return ErrInvalidAddress
	}
	st.Params.Treasury = treasury
	return e.putAdmin(st, "set_treasury", caller, treasury, "")
}

// Pause blocks user instructions.
func (e *Engine) Pause(caller crypto.Address) error {
	return e.setPaused(caller, true)
}

// Unpause re-admits user instructions.
func (e *Engine) Unpause(caller crypto.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller crypto.Address, paused bool) error {
	if _, err := e.ownerState(caller); err != nil {
		return err
	}
	current := e.pauses != nil && e.pauses.IsPaused(moduleName)
	if paused && current {
		return ErrAlreadyPaused
	}
	if !paused && !current {
		return ErrNotPaused
	}
	if err := e.state.SetModulePaused(moduleName, paused); err != nil {
		return err
	}
	action := "unpause"
	if paused {
		action = "pause"
	}
	e.emit(events.VaultAdmin{Action: action, Actor: caller})
	return nil
}
