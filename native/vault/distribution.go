package vault

import (
	"math/big"

	"stakevault/core/events"
	"stakevault/crypto"
)

// distributionAmounts splits the reward accrued on entry into the receipt
// shares that cover it, the distribution fee taken from those shares and the
// base-asset value of the remainder at current.
func distributionAmounts(entry *Allocation, current Price, feeBps uint64) (DistributionAmounts, error) {
	out := DistributionAmounts{Base: big.NewInt(0), Shares: big.NewInt(0), Fee: big.NewInt(0)}
	if entry == nil || !entry.Price.Valid() || !current.Valid() {
		return out, nil
	}
	if entry.Price.Num.Sign() == 0 || current.Num.Sign() == 0 || current.Cmp(entry.Price) <= 0 {
		return out, nil
	}
	// amount/recorded - amount/current = amount*(rD*cN - cD*rN) / (rN*cN)
	num := new(big.Int).Mul(entry.Price.Denom, current.Num)
	num.Sub(num, new(big.Int).Mul(current.Denom, entry.Price.Num))
	den := new(big.Int).Mul(entry.Price.Num, current.Num)
	gross, err := mulDiv(entry.Amount, num, den)
	if err != nil {
		return out, err
	}
	out.Fee = bpsOf(gross, feeBps)
	out.Shares = new(big.Int).Sub(gross, out.Fee)
	base, _, err := toAssets(out.Shares, current)
	if err != nil {
		return out, err
	}
	out.Base = base
	return out, nil
}

// DistributeRewards pays the reward accrued on one allocation. In receipt
// token mode the distributor transfers shares; otherwise it pays base asset
// and only the fee in shares. The recorded price moves to the current price
// only on success.
func (e *Engine) DistributeRewards(distributor, recipient crypto.Address, inReceiptToken bool) (DistributionAmounts, error) {
	if err := e.userGate(distributor); err != nil {
		return DistributionAmounts{}, err
	}
	return e.distribute(distributor, recipient, inReceiptToken)
}

func (e *Engine) distribute(distributor, recipient crypto.Address, inReceiptToken bool) (DistributionAmounts, error) {
	st, err := e.loadState()
	if err != nil {
		return DistributionAmounts{}, err
	}
	entry, ok, err := e.state.GetAllocation(distributor, recipient)
	if err != nil {
		return DistributionAmounts{}, err
	}
	if !ok || entry == nil {
		return DistributionAmounts{}, ErrNoAllocation
	}
	current := st.Price()
	feeBps := st.Params.DistributionFeeBps
	if st.Params.Treasury.IsZero() {
		feeBps = 0
	}
	amounts, err := distributionAmounts(entry, current, feeBps)
	if err != nil {
		return DistributionAmounts{}, err
	}
	if amounts.Shares.Sign() == 0 && amounts.Fee.Sign() == 0 {
		return amounts, nil
	}

	acc, err := e.account(distributor)
	if err != nil {
		return DistributionAmounts{}, err
	}
	if inReceiptToken {
		needed := new(big.Int).Add(amounts.Shares, amounts.Fee)
		if acc.Shares.Cmp(needed) < 0 {
			return DistributionAmounts{}, ErrInsufficientBalance
		}
		if err := e.moveShares(distributor, recipient, amounts.Shares); err != nil {
			return DistributionAmounts{}, err
		}
	} else {
		if acc.Base.Cmp(amounts.Base) < 0 || acc.Shares.Cmp(amounts.Fee) < 0 {
			return DistributionAmounts{}, ErrInsufficientBalance
		}
		if err := e.moveBase(distributor, recipient, amounts.Base); err != nil {
			return DistributionAmounts{}, err
		}
	}
	if amounts.Fee.Sign() > 0 {
		if err := e.moveShares(distributor, st.Params.Treasury, amounts.Fee); err != nil {
			return DistributionAmounts{}, err
		}
	}

	entry.Price = current
	if err := e.state.PutAllocation(entry); err != nil {
		return DistributionAmounts{}, err
	}
	paid := DistributionAmounts{Base: big.NewInt(0), Shares: amounts.Shares, Fee: amounts.Fee}
	if !inReceiptToken {
		paid = DistributionAmounts{Base: amounts.Base, Shares: big.NewInt(0), Fee: amounts.Fee}
	}
	e.emit(events.AllocationDistributed{
		Distributor:    distributor,
		Recipient:      recipient,
		Shares:         new(big.Int).Set(paid.Shares),
		Base:           new(big.Int).Set(paid.Base),
		Fee:            new(big.Int).Set(paid.Fee),
		InReceiptToken: inReceiptToken,
	})
	return paid, nil
}

// DistributeAll distributes every allocation of distributor in insertion
// order. Each entry commits or reverts on its own, so one failure leaves the
// earlier successes in place; per-entry outcomes are returned.
func (e *Engine) DistributeAll(distributor crypto.Address, inReceiptToken bool) ([]DistributionResult, error) {
	if err := e.userGate(distributor); err != nil {
		return nil, err
	}
	recipients, err := e.state.AllocationRecipients(distributor)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoAllocations
	}
	results := make([]DistributionResult, 0, len(recipients))
	for _, recipient := range recipients {
		snap := e.state.Snapshot()
		mark := e.eventMark()
		paid, err := e.distribute(distributor, recipient, inReceiptToken)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			e.dropEvents(mark)
			results = append(results, DistributionResult{Recipient: recipient, Err: err})
			continue
		}
		results = append(results, DistributionResult{
			Recipient: recipient,
			Shares:    paid.Shares,
			Base:      paid.Base,
			Fee:       paid.Fee,
		})
	}
	return results, nil
}

// DistributionAmounts reports what distributing to recipient, or to every
// recipient when recipient is zero, would cost the distributor right now.
func (e *Engine) DistributionAmounts(distributor, recipient crypto.Address) (DistributionAmounts, error) {
	st, err := e.loadState()
	if err != nil {
		return DistributionAmounts{}, err
	}
	var entries []*Allocation
	if recipient.IsZero() {
		if entries, err = e.Allocations(distributor); err != nil {
			return DistributionAmounts{}, err
		}
	} else {
		entry, err := e.Allocation(distributor, recipient)
		if err != nil {
			return DistributionAmounts{}, err
		}
		entries = []*Allocation{entry}
	}
	feeBps := st.Params.DistributionFeeBps
	if st.Params.Treasury.IsZero() {
		feeBps = 0
	}
	total := DistributionAmounts{Base: big.NewInt(0), Shares: big.NewInt(0), Fee: big.NewInt(0)}
	current := st.Price()
	for _, entry := range entries {
		amounts, err := distributionAmounts(entry, current, feeBps)
		if err != nil {
			return DistributionAmounts{}, err
		}
		total.Base.Add(total.Base, amounts.Base)
		total.Shares.Add(total.Shares, amounts.Shares)
		total.Fee.Add(total.Fee, amounts.Fee)
	}
	return total, nil
}
