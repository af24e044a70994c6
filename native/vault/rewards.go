package vault

import (
	"math/big"

	"stakevault/core/events"
	"stakevault/crypto"
)

// mintTreasuryFee adds reward to the staked total and mints the treasury fee
// as shares priced so that the post-mint price equals the net-of-fee price
// (staked + reward - fee) / shares. The vault state is mutated in place and
// the minted share amount returned.
func (e *Engine) mintTreasuryFee(st *State, reward *big.Int) (fee, feeShares *big.Int, err error) {
	fee = bpsOf(reward, st.Params.TreasuryFeeBps)
	feeShares = big.NewInt(0)
	stakedBefore := new(big.Int).Set(st.TotalStaked)
	if st.TotalStaked, err = add(st.TotalStaked, reward); err != nil {
		return nil, nil, err
	}
	if st.Params.Treasury.IsZero() {
		return big.NewInt(0), feeShares, nil
	}

	switch {
	case st.TotalShares.Sign() == 0:
		// Nobody else holds a claim on the reward, so it all goes to the treasury.
		fee = new(big.Int).Set(reward)
		feeShares, err = toShares(reward, BootstrapPrice())
	case fee.Sign() > 0:
		netAssets := new(big.Int).Add(stakedBefore, reward)
		netAssets.Sub(netAssets, fee)
		feeShares, err = mulDiv(fee, st.TotalShares, netAssets)
	}
	if err != nil {
		return nil, nil, err
	}
	if feeShares.Sign() == 0 {
		return fee, feeShares, nil
	}

	treasury, err := e.account(st.Params.Treasury)
	if err != nil {
		return nil, nil, err
	}
	if treasury.Shares, err = add(treasury.Shares, feeShares); err != nil {
		return nil, nil, err
	}
	if st.TotalShares, err = add(st.TotalShares, feeShares); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutAccount(st.Params.Treasury, treasury); err != nil {
		return nil, nil, err
	}
	return fee, feeShares, nil
}

// CompoundRewards restakes harvested rewards. Rewards reported for an enabled
// validator are added to its delegation; rewards from a disabled validator
// are parked in the buffer. The treasury fee is minted once for the total.
// Rewards are rejected while no shares exist and no treasury is set.
func (e *Engine) CompoundRewards(caller crypto.Address, reports []RewardReport) (*big.Int, error) {
	st, err := e.ownerState(caller)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrEmptyRewardReport
	}
	// With no holders the treasury is the only party that can own the reward;
	// parking it in TotalStaked would hand it to the next depositor.
	if st.TotalShares.Sign() == 0 && st.Params.Treasury.IsZero() {
		return nil, ErrNoRewardRecipient
	}
	total := big.NewInt(0)
	for _, report := range reports {
		if !positive(report.Amount) {
			return nil, ErrInvalidAmount
		}
		val, err := e.validator(report.Validator)
		if err != nil {
			return nil, err
		}
		buffered := !val.Enabled()
		if buffered {
			if st.Buffer, err = add(st.Buffer, report.Amount); err != nil {
				return nil, err
			}
		} else {
			if err := delegate(val, report.Amount); err != nil {
				return nil, err
			}
			if err := e.state.PutValidator(val); err != nil {
				return nil, err
			}
		}
		if total, err = add(total, report.Amount); err != nil {
			return nil, err
		}
		e.emit(events.VaultRewardsCompounded{Validator: val.Address, Amount: new(big.Int).Set(report.Amount), Buffered: buffered})
	}
	fee, feeShares, err := e.mintTreasuryFee(st, total)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	e.emit(events.VaultFeeMinted{Treasury: st.Params.Treasury, Reward: total, Fee: fee, Shares: new(big.Int).Set(feeShares)})
	return feeShares, nil
}

// ApplyLoss records a slashing loss; this is the only operation that lowers
// the share price. When a validator is named, its delegation absorbs the loss
// first and its unbonding entries the remainder, pro rata. Unbonding that
// backs a withdrawal claim is no longer part of the staked total, so that
// share of the loss reduces what the claimants are owed instead of the price.
func (e *Engine) ApplyLoss(caller, validatorAddr crypto.Address, amount *big.Int) error {
	st, err := e.ownerState(caller)
	if err != nil {
		return err
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	if validatorAddr.IsZero() {
		if amount.Cmp(st.TotalStaked) > 0 {
			return ErrLossExceedsStake
		}
		if st.UnassignedLoss, err = add(st.UnassignedLoss, amount); err != nil {
			return err
		}
		if st.TotalStaked, err = sub(st.TotalStaked, amount); err != nil {
			return err
		}
		if err := e.state.PutVaultState(st); err != nil {
			return err
		}
		e.emit(events.VaultSlashed{Amount: new(big.Int).Set(amount), Staked: new(big.Int).Set(st.TotalStaked), Claims: big.NewInt(0)})
		return nil
	}

	val, err := e.validator(validatorAddr)
	if err != nil {
		return err
	}
	fromDelegated := minAmount(amount, val.Delegated)
	fromUnbonding := new(big.Int).Sub(amount, fromDelegated)
	if fromUnbonding.Cmp(val.Unbonding) > 0 {
		return ErrInsufficientValidatorBalance
	}
	plan, err := e.planUnbondingSlash(val, fromUnbonding)
	if err != nil {
		return err
	}
	charged := new(big.Int).Add(fromDelegated, plan.vaultLoss)
	if charged.Cmp(st.TotalStaked) > 0 {
		return ErrLossExceedsStake
	}

	if val.Delegated, err = sub(val.Delegated, fromDelegated); err != nil {
		return err
	}
	if val.Unbonding, err = sub(val.Unbonding, fromUnbonding); err != nil {
		return err
	}
	if st.TotalStaked, err = sub(st.TotalStaked, charged); err != nil {
		return err
	}
	if st.PendingClaims, err = sub(st.PendingClaims, plan.claimLoss); err != nil {
		return err
	}
	if err := plan.apply(e.state); err != nil {
		return err
	}
	if err := e.state.PutValidator(val); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultSlashed{
		Validator: validatorAddr,
		Amount:    new(big.Int).Set(amount),
		Staked:    new(big.Int).Set(st.TotalStaked),
		Claims:    new(big.Int).Set(plan.claimLoss),
	})
	return nil
}
