package vault

import (
	"math/big"

	"stakevault/core/events"
	"stakevault/crypto"
)

const (
	stakeOpDelegate   = "delegate"
	stakeOpUndelegate = "undelegate"
	stakeOpRedelegate = "redelegate"
)

// AddValidator registers a new validator in the enabled state.
func (e *Engine) AddValidator(caller, addr crypto.Address) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if addr.IsZero() {
		return ErrInvalidAddress
	}
	if _, ok, err := e.state.GetValidator(addr); err != nil {
		return err
	} else if ok {
		return ErrValidatorExists
	}
	val := &Validator{
		Address:   addr,
		Status:    ValidatorEnabled,
		Delegated: big.NewInt(0),
		Unbonding: big.NewInt(0),
	}
	if err := e.state.PutValidator(val); err != nil {
		return err
	}
	if st.Params.DefaultValidator.IsZero() {
		st.Params.DefaultValidator = addr
		if err := e.state.PutVaultState(st); err != nil {
			return err
		}
	}
	e.emit(events.VaultValidator{Validator: addr, Action: "added"})
	return nil
}

// EnableValidator re-admits a disabled validator as a delegation target.
func (e *Engine) EnableValidator(caller, addr crypto.Address) error {
	return e.setValidatorStatus(caller, addr, ValidatorEnabled)
}

// DisableValidator stops new delegations to addr. Existing delegation stays
// withdrawable.
func (e *Engine) DisableValidator(caller, addr crypto.Address) error {
	return e.setValidatorStatus(caller, addr, ValidatorDisabled)
}

func (e *Engine) setValidatorStatus(caller, addr crypto.Address, status ValidatorStatus) error {
	if _, err := e.ownerState(caller); err != nil {
		return err
	}
	val, err := e.validator(addr)
	if err != nil {
		return err
	}
	if val.Status == status {
		if status == ValidatorEnabled {
			return ErrValidatorEnabled
		}
		return ErrValidatorDisabled
	}
	val.Status = status
	if err := e.state.PutValidator(val); err != nil {
		return err
	}
	e.emit(events.VaultValidator{Validator: addr, Action: status.String()})
	return nil
}

// SetDefaultValidator selects the deposit target used when a deposit names
// no validator.
func (e *Engine) SetDefaultValidator(caller, addr crypto.Address) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	val, err := e.validator(addr)
	if err != nil {
		return err
	}
	if !val.Enabled() {
		return ErrValidatorNotEnabled
	}
	st.Params.DefaultValidator = addr
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultValidator{Validator: addr, Action: "default"})
	return nil
}

// delegate increases the delegation of an enabled validator. Callers own the
// matching TotalStaked bookkeeping.
func delegate(val *Validator, amount *big.Int) error {
	if !val.Enabled() {
		return ErrValidatorNotEnabled
	}
	next, err := add(val.Delegated, amount)
	if err != nil {
		return err
	}
	val.Delegated = next
	return nil
}

// undelegate moves amount from delegated to unbonding.
func undelegate(val *Validator, amount *big.Int) error {
	if val.Delegated.Cmp(amount) < 0 {
		return ErrInsufficientValidatorBalance
	}
	delegated, err := sub(val.Delegated, amount)
	if err != nil {
		return err
	}
	unbonding, err := add(val.Unbonding, amount)
	if err != nil {
		return err
	}
	val.Delegated = delegated
	val.Unbonding = unbonding
	return nil
}

// Delegate stakes amount of the vault buffer with validator.
func (e *Engine) Delegate(caller, addr crypto.Address, amount *big.Int) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	val, err := e.validator(addr)
	if err != nil {
		return err
	}
	if !val.Enabled() {
		return ErrValidatorNotEnabled
	}
	if st.Buffer.Cmp(amount) < 0 {
		return ErrInsufficientBuffer
	}
	if err := delegate(val, amount); err != nil {
		return err
	}
	if st.Buffer, err = sub(st.Buffer, amount); err != nil {
		return err
	}
	if err := e.state.PutValidator(val); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultStakeMoved{Operation: stakeOpDelegate, To: addr, Amount: new(big.Int).Set(amount)})
	return nil
}

// Undelegate starts vault-owned unbonding of amount from validator. The
// proceeds return to the buffer once the unbonding period elapses. Disabled
// validators accept undelegation.
func (e *Engine) Undelegate(caller, addr crypto.Address, amount *big.Int) (*Unbonding, error) {
	st, err := e.ownerState(caller)
	if err != nil {
		return nil, err
	}
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	val, err := e.validator(addr)
	if err != nil {
		return nil, err
	}
	if err := undelegate(val, amount); err != nil {
		return nil, err
	}
	entry, err := e.enqueueUnbonding(st, crypto.Address{}, addr, amount, amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutValidator(val); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	e.emit(events.VaultStakeMoved{Operation: stakeOpUndelegate, From: addr, Amount: new(big.Int).Set(amount)})
	return entry, nil
}

// Redelegate moves delegation between validators without touching the
// vault totals.
func (e *Engine) Redelegate(caller, from, to crypto.Address, amount *big.Int) error {
	if _, err := e.ownerState(caller); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if from.Equal(to) {
		return ErrSameValidator
	}
	src, err := e.validator(from)
	if err != nil {
		return err
	}
	dst, err := e.validator(to)
	if err != nil {
		return err
	}
	if !dst.Enabled() {
		return ErrValidatorNotEnabled
	}
	if src.Delegated.Cmp(amount) < 0 {
		return ErrInsufficientValidatorBalance
	}
	if src.Delegated, err = sub(src.Delegated, amount); err != nil {
		return err
	}
	if err := delegate(dst, amount); err != nil {
		return err
	}
	if err := e.state.PutValidator(src); err != nil {
		return err
	}
	if err := e.state.PutValidator(dst); err != nil {
		return err
	}
	e.emit(events.VaultStakeMoved{Operation: stakeOpRedelegate, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Validator returns a copy of the registry entry for addr.
func (e *Engine) Validator(addr crypto.Address) (*Validator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	val, err := e.validator(addr)
	if err != nil {
		return nil, err
	}
	return val.Clone(), nil
}

// Validators lists every registered validator ordered by identity.
func (e *Engine) Validators() ([]*Validator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.ValidatorIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*Validator, 0, len(ids))
	for _, id := range ids {
		val, err := e.validator(id)
		if err != nil {
			return nil, err
		}
		out = append(out, val.Clone())
	}
	return out, nil
}
