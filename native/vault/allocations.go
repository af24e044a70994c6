package vault

import (
	"math/big"

	"stakevault/core/events"
	"stakevault/crypto"
)

// MinAllocation is the smallest amount that may be allocated in one call.
var MinAllocation = new(big.Int).Set(OneUnit)

// Allocate promises the rewards accrued on amount base units to recipient.
// Allocations are not backed by the distributor's stake; insolvency only
// surfaces when distributing.
func (e *Engine) Allocate(distributor, recipient crypto.Address, amount *big.Int) (*Allocation, error) {
	if err := e.userGate(distributor); err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, ErrInvalidAddress
	}
	if distributor.Equal(recipient) {
		return nil, ErrInvalidRecipient
	}
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(MinAllocation) < 0 {
		return nil, ErrBelowMinAllocation
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	price := st.Price()

	entry, ok, err := e.state.GetAllocation(distributor, recipient)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		entry = &Allocation{
			Distributor: distributor,
			Recipient:   recipient,
			Amount:      big.NewInt(0),
		}
	}
	if entry.Amount, err = add(entry.Amount, amount); err != nil {
		return nil, err
	}
	entry.Price = price
	if err := e.state.PutAllocation(entry); err != nil {
		return nil, err
	}
	e.emit(events.AllocationUpdated{
		Distributor: distributor,
		Recipient:   recipient,
		Delta:       new(big.Int).Set(amount),
		Amount:      new(big.Int).Set(entry.Amount),
		Price:       price.String(),
	})
	return entry.Clone(), nil
}

// Deallocate reduces an allocation, removing it once it reaches zero. No
// asset moves.
func (e *Engine) Deallocate(distributor, recipient crypto.Address, amount *big.Int) (*Allocation, error) {
	if err := e.userGate(distributor); err != nil {
		return nil, err
	}
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	entry, ok, err := e.state.GetAllocation(distributor, recipient)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		return nil, ErrNoAllocation
	}
	if amount.Cmp(entry.Amount) > 0 {
		return nil, ErrExcessiveDeallocation
	}
	if entry.Amount, err = sub(entry.Amount, amount); err != nil {
		return nil, err
	}
	price := st.Price()
	entry.Price = price
	removed := entry.Amount.Sign() == 0
	if removed {
		err = e.state.DeleteAllocation(distributor, recipient)
	} else {
		err = e.state.PutAllocation(entry)
	}
	if err != nil {
		return nil, err
	}
	e.emit(events.AllocationUpdated{
		Distributor: distributor,
		Recipient:   recipient,
		Delta:       new(big.Int).Neg(amount),
		Amount:      new(big.Int).Set(entry.Amount),
		Price:       price.String(),
		Removed:     removed,
	})
	return entry.Clone(), nil
}

// ComputeReward returns the base units accrued on entry at current:
// amount * (current - recorded) / recorded, clamped at zero.
func ComputeReward(entry *Allocation, current Price) *big.Int {
	if entry == nil || !entry.Price.Valid() || !current.Valid() || entry.Price.Num.Sign() == 0 {
		return big.NewInt(0)
	}
	if current.Cmp(entry.Price) <= 0 {
		return big.NewInt(0)
	}
	// (cN/cD - rN/rD) / (rN/rD) = (cN*rD - rN*cD) / (cD*rN)
	num := new(big.Int).Mul(current.Num, entry.Price.Denom)
	num.Sub(num, new(big.Int).Mul(entry.Price.Num, current.Denom))
	num.Mul(num, entry.Amount)
	den := new(big.Int).Mul(current.Denom, entry.Price.Num)
	return num.Quo(num, den)
}

// Allocation returns the entry for (distributor, recipient).
func (e *Engine) Allocation(distributor, recipient crypto.Address) (*Allocation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entry, ok, err := e.state.GetAllocation(distributor, recipient)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		return nil, ErrNoAllocation
	}
	return entry.Clone(), nil
}

// Allocations lists a distributor's entries in insertion order.
func (e *Engine) Allocations(distributor crypto.Address) ([]*Allocation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	recipients, err := e.state.AllocationRecipients(distributor)
	if err != nil {
		return nil, err
	}
	out := make([]*Allocation, 0, len(recipients))
	for _, recipient := range recipients {
		entry, ok, err := e.state.GetAllocation(distributor, recipient)
		if err != nil {
			return nil, err
		}
		if ok && entry != nil {
			out = append(out, entry.Clone())
		}
	}
	return out, nil
}

// Reward returns the reward currently accrued on one allocation.
func (e *Engine) Reward(distributor, recipient crypto.Address) (*big.Int, error) {
	entry, err := e.Allocation(distributor, recipient)
	if err != nil {
		return nil, err
	}
	price, err := e.Price()
	if err != nil {
		return nil, err
	}
	return ComputeReward(entry, price), nil
}

// TotalAllocated sums a distributor's allocations. The returned price is the
// single price at which the summed amount accrues the same reward as the
// individual entries.
func (e *Engine) TotalAllocated(distributor crypto.Address) (*big.Int, Price, error) {
	entries, err := e.Allocations(distributor)
	if err != nil {
		return nil, Price{}, err
	}
	amount := big.NewInt(0)
	shares := big.NewInt(0)
	for _, entry := range entries {
		if amount, err = add(amount, entry.Amount); err != nil {
			return nil, Price{}, err
		}
		if entry.Price.Num.Sign() == 0 {
			continue
		}
		entryShares, err := toShares(entry.Amount, entry.Price)
		if err != nil {
			return nil, Price{}, err
		}
		shares.Add(shares, entryShares)
	}
	if shares.Sign() == 0 {
		return amount, BootstrapPrice(), nil
	}
	return amount, Price{Num: amount, Denom: shares}, nil
}
