package core

import (
	"context"
	"time"
)

// Snapshot is a consistent copy of the ledger taken under the node lock.
type Snapshot struct {
	TakenAt     time.Time
	StateRoot   []byte
	Info        VaultInfoView
	Accounts    []AccountView
	Validators  []ValidatorView
	Allocations []AllocationView
	Claims      []UnbondingView
}

// Snapshot collects every account, validator, allocation and claim.
func (n *Node) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	root, err := n.state.Root()
	if err != nil {
		return nil, err
	}
	info, err := n.vault.Info()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{TakenAt: n.now().UTC(), StateRoot: root, Info: newVaultInfoView(info)}

	addrs, err := n.state.Accounts()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		acc, err := n.vault.Account(addr)
		if err != nil {
			return nil, err
		}
		assets, err := n.vault.ConvertToAssets(acc.Shares)
		if err != nil {
			return nil, err
		}
		snap.Accounts = append(snap.Accounts, newAccountView(addr, acc, assets))
		claims, err := n.vault.Claims(addr)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			snap.Claims = append(snap.Claims, newUnbondingView(c))
		}
	}

	vals, err := n.vault.Validators()
	if err != nil {
		return nil, err
	}
	for _, val := range vals {
		snap.Validators = append(snap.Validators, newValidatorView(val))
	}

	distributors, err := n.state.Distributors()
	if err != nil {
		return nil, err
	}
	for _, distributor := range distributors {
		entries, err := n.vault.Allocations(distributor)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			snap.Allocations = append(snap.Allocations, newAllocationView(entry, info.Price))
		}
	}
	return snap, nil
}
