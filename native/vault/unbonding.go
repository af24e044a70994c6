package vault

import (
	"math/big"
	"time"

	"stakevault/core/events"
	"stakevault/crypto"
)

func (e *Engine) enqueueUnbonding(st *State, owner, validatorAddr crypto.Address, amount, owed *big.Int) (*Unbonding, error) {
	st.NextUnbonding++
	entry := &Unbonding{
		ID:        st.NextUnbonding,
		Owner:     owner,
		Validator: validatorAddr,
		Amount:    new(big.Int).Set(amount),
		Owed:      new(big.Int).Set(owed),
		ReleaseAt: e.now() + int64(st.Params.UnbondingPeriod/time.Second),
	}
	if err := e.state.PutUnbonding(entry); err != nil {
		return nil, err
	}
	queue, err := e.state.UnbondingQueue()
	if err != nil {
		return nil, err
	}
	if err := e.state.PutUnbondingQueue(append(queue, entry.ID)); err != nil {
		return nil, err
	}
	if entry.IsClaim() {
		ids, err := e.state.ClaimIDs(owner)
		if err != nil {
			return nil, err
		}
		if err := e.state.PutClaimIDs(owner, append(ids, entry.ID)); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// ProcessUnbonding releases every unbonding entry whose release time has
// passed. Claim-backed stake moves to the claim pool and vault-owned stake to
// the buffer. Slashes are booked on the entries themselves, so an entry
// normally releases its full amount; any shortfall against the validator is
// taken off the claim it backs.
func (e *Engine) ProcessUnbonding() (int, error) {
	st, err := e.loadState()
	if err != nil {
		return 0, err
	}
	queue, err := e.state.UnbondingQueue()
	if err != nil {
		return 0, err
	}
	if len(queue) == 0 {
		return 0, nil
	}
	now := e.now()
	remaining := make([]uint64, 0, len(queue))
	matured := 0
	for _, id := range queue {
		entry, ok, err := e.state.GetUnbonding(id)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if entry.ReleaseAt > now {
			remaining = append(remaining, id)
			continue
		}
		val, err := e.validator(entry.Validator)
		if err != nil {
			return 0, err
		}
		released := minAmount(entry.Amount, val.Unbonding)
		if val.Unbonding, err = sub(val.Unbonding, released); err != nil {
			return 0, err
		}
		if err := e.state.PutValidator(val); err != nil {
			return 0, err
		}
		if entry.IsClaim() {
			if st.ClaimPool, err = add(st.ClaimPool, released); err != nil {
				return 0, err
			}
			if gap := new(big.Int).Sub(entry.Amount, released); gap.Sign() > 0 {
				cut := minAmount(gap, entry.Owed)
				entry.Owed = new(big.Int).Sub(entry.Owed, cut)
				if st.PendingClaims, err = sub(st.PendingClaims, cut); err != nil {
					return 0, err
				}
			}
			entry.Matured = true
			if err := e.state.PutUnbonding(entry); err != nil {
				return 0, err
			}
		} else {
			if st.Buffer, err = add(st.Buffer, released); err != nil {
				return 0, err
			}
			if err := e.state.DeleteUnbonding(id); err != nil {
				return 0, err
			}
		}
		matured++
		e.emit(events.VaultUnbondingCompleted{Validator: entry.Validator, Amount: released, ClaimID: claimID(entry)})
	}
	if matured == 0 {
		return 0, nil
	}
	if err := e.state.PutUnbondingQueue(remaining); err != nil {
		return 0, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return 0, err
	}
	return matured, nil
}

// unbondingSlash is the per-entry split of a loss on a validator's unbonding
// stake, computed before anything is written.
type unbondingSlash struct {
	entries   []*Unbonding
	claimLoss *big.Int
	vaultLoss *big.Int
}

func (p *unbondingSlash) apply(state engineState) error {
	for _, entry := range p.entries {
		if err := state.PutUnbonding(entry); err != nil {
			return err
		}
	}
	return nil
}

// planUnbondingSlash spreads loss over the unmatured unbonding entries of val
// in proportion to their amounts. Stake in val.Unbonding that no entry tracks
// is treated as vault-owned and absorbs the loss first. Claim-backed entries
// lose the same amount from Owed as from Amount.
func (e *Engine) planUnbondingSlash(val *Validator, loss *big.Int) (*unbondingSlash, error) {
	plan := &unbondingSlash{claimLoss: big.NewInt(0), vaultLoss: big.NewInt(0)}
	if loss.Sign() == 0 {
		return plan, nil
	}
	queue, err := e.state.UnbondingQueue()
	if err != nil {
		return nil, err
	}
	var entries []*Unbonding
	tracked := big.NewInt(0)
	for _, id := range queue {
		entry, ok, err := e.state.GetUnbonding(id)
		if err != nil {
			return nil, err
		}
		if !ok || entry.Matured || !entry.Validator.Equal(val.Address) || !positive(entry.Amount) {
			continue
		}
		entries = append(entries, entry.Clone())
		tracked.Add(tracked, entry.Amount)
	}

	remaining := new(big.Int).Set(loss)
	if untracked := new(big.Int).Sub(val.Unbonding, tracked); untracked.Sign() > 0 {
		take := minAmount(remaining, untracked)
		plan.vaultLoss.Add(plan.vaultLoss, take)
		remaining.Sub(remaining, take)
	}
	if remaining.Sign() == 0 {
		return plan, nil
	}
	if remaining.Cmp(tracked) > 0 {
		return nil, ErrInsufficientValidatorBalance
	}

	cuts := make([]*big.Int, len(entries))
	assigned := big.NewInt(0)
	for i, entry := range entries {
		if cuts[i], err = mulDiv(remaining, entry.Amount, tracked); err != nil {
			return nil, err
		}
		assigned.Add(assigned, cuts[i])
	}
	// Flooring leaves at most one base unit per entry unassigned.
	leftover := new(big.Int).Sub(remaining, assigned)
	for i, entry := range entries {
		if leftover.Sign() == 0 {
			break
		}
		room := new(big.Int).Sub(entry.Amount, cuts[i])
		take := minAmount(leftover, room)
		cuts[i].Add(cuts[i], take)
		leftover.Sub(leftover, take)
	}

	for i, entry := range entries {
		cut := cuts[i]
		if cut.Sign() == 0 {
			continue
		}
		entry.Amount = new(big.Int).Sub(entry.Amount, cut)
		if entry.IsClaim() {
			owedCut := minAmount(cut, entry.Owed)
			entry.Owed = new(big.Int).Sub(entry.Owed, owedCut)
			plan.claimLoss.Add(plan.claimLoss, owedCut)
			plan.vaultLoss.Add(plan.vaultLoss, new(big.Int).Sub(cut, owedCut))
		} else {
			plan.vaultLoss.Add(plan.vaultLoss, cut)
		}
		plan.entries = append(plan.entries, entry)
	}
	return plan, nil
}

func claimID(entry *Unbonding) uint64 {
	if entry.IsClaim() {
		return entry.ID
	}
	return 0
}

// Claim pays out every matured withdrawal claim held by sender.
func (e *Engine) Claim(sender crypto.Address) (*big.Int, error) {
	if err := e.userGate(sender); err != nil {
		return nil, err
	}
	if _, err := e.ProcessUnbonding(); err != nil {
		return nil, err
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	ids, err := e.state.ClaimIDs(sender)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	keep := make([]uint64, 0, len(ids))
	paid := make([]uint64, 0, len(ids))
	for _, id := range ids {
		entry, ok, err := e.state.GetUnbonding(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !entry.Matured {
			keep = append(keep, id)
			continue
		}
		if total, err = add(total, entry.Owed); err != nil {
			return nil, err
		}
		paid = append(paid, id)
	}
	if total.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	if st.ClaimPool.Cmp(total) < 0 {
		return nil, ErrInsufficientClaimPool
	}
	if st.ClaimPool, err = sub(st.ClaimPool, total); err != nil {
		return nil, err
	}
	if st.PendingClaims, err = sub(st.PendingClaims, total); err != nil {
		return nil, err
	}
	acc, err := e.account(sender)
	if err != nil {
		return nil, err
	}
	if acc.Base, err = add(acc.Base, total); err != nil {
		return nil, err
	}
	for _, id := range paid {
		if err := e.state.DeleteUnbonding(id); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutClaimIDs(sender, keep); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(sender, acc); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	e.emit(events.VaultClaimed{Account: sender, Amount: new(big.Int).Set(total), Claims: len(paid)})
	return total, nil
}

// Claims lists the withdrawal claims of owner, matured or not.
func (e *Engine) Claims(owner crypto.Address) ([]*Unbonding, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.ClaimIDs(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*Unbonding, 0, len(ids))
	for _, id := range ids {
		entry, ok, err := e.state.GetUnbonding(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry.Clone())
		}
	}
	return out, nil
}
