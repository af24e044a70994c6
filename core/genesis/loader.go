// core/genesis/loader.go
package genesis

import (
	"errors"
	"fmt"

	"stakevault/core/state"
	"stakevault/native/vault"
	"stakevault/native/whitelist"
)

// ErrAlreadyInitialized is returned when genesis is applied to a store that
// already holds a vault.
var ErrAlreadyInitialized = errors.New("genesis: vault already initialised")

// BuildGenesisFromSpec writes the initial vault state into manager and
// commits it, returning the resulting state root. Registry and whitelist
// entries go through the engines so genesis obeys the same rules as later
// instructions.
func BuildGenesisFromSpec(spec *GenesisSpec, manager *state.Manager) ([]byte, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("state manager must not be nil")
	}
	if spec.owner.IsZero() {
		if err := spec.validate(); err != nil {
			return nil, err
		}
	}
	existing, err := manager.VaultState()
	if err != nil {
		return nil, err
	}
	if !existing.Owner.IsZero() {
		return nil, ErrAlreadyInitialized
	}
	if err := apply(spec, manager); err != nil {
		manager.Discard()
		return nil, err
	}
	root, err := manager.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	return root, nil
}

func apply(spec *GenesisSpec, manager *state.Manager) error {
	// 1) Vault singleton
	st := vault.NewState(spec.owner)
	st.Params.TreasuryFeeBps = spec.Params.TreasuryFeeBps
	st.Params.DistributionFeeBps = spec.Params.DistributionFeeBps
	st.Params.MinDeposit.Set(spec.Params.minDeposit)
	st.Params.UnbondingPeriod = spec.Params.unbondingPeriod
	st.Params.Treasury = spec.treasury
	st.Reserve.Set(spec.reserve)
	if err := manager.PutVaultState(st); err != nil {
		return fmt.Errorf("vault state: %w", err)
	}

	engine := vault.NewEngine()
	engine.SetState(manager)
	engine.SetPauses(manager)
	wl := whitelist.NewEngine()
	wl.SetState(manager)
	wl.SetOwner(engine)

	// 2) Validators, in listed order
	for _, v := range spec.validators {
		if err := engine.AddValidator(spec.owner, v.address); err != nil {
			return fmt.Errorf("validator %s: %w", v.address, err)
		}
	}
	if err := engine.SetDefaultValidator(spec.owner, spec.defaultValidator); err != nil {
		return fmt.Errorf("default validator: %w", err)
	}
	for _, v := range spec.validators {
		if !v.disabled {
			continue
		}
		if err := engine.DisableValidator(spec.owner, v.address); err != nil {
			return fmt.Errorf("validator %s: %w", v.address, err)
		}
	}

	// 3) Whitelist agents and users
	for _, agent := range spec.agents {
		if err := wl.AddAgent(spec.owner, agent); err != nil {
			return fmt.Errorf("agent %s: %w", agent, err)
		}
	}
	for _, user := range spec.whitelist {
		if err := wl.WhitelistUser(spec.owner, user); err != nil {
			return fmt.Errorf("whitelist %s: %w", user, err)
		}
	}

	// 4) Base-asset balances (sorted by address during validation)
	for _, entry := range spec.alloc {
		acc, err := manager.GetAccount(entry.address)
		if err != nil {
			return err
		}
		acc.Base.Add(acc.Base, entry.amount)
		if err := manager.PutAccount(entry.address, acc); err != nil {
			return fmt.Errorf("alloc %s: %w", entry.address, err)
		}
	}

	if spec.Paused {
		if err := engine.Pause(spec.owner); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
	}
	return manager.SetStateVersion(state.StateVersion)
}
