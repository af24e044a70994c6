package vault

import (
	"math/big"

	"stakevault/core/types"
	"stakevault/crypto"
)

// Info is the read-only summary of the vault singleton.
type Info struct {
	TotalStaked    *big.Int
	TotalShares    *big.Int
	Buffer         *big.Int
	ClaimPool      *big.Int
	PendingClaims  *big.Int
	Reserve        *big.Int
	UnassignedLoss *big.Int
	Price          Price
	Params         Params
	Owner          crypto.Address
	PendingOwner   crypto.Address
	Paused         bool
}

// Info returns a snapshot of the vault totals and parameters.
func (e *Engine) Info() (*Info, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	st = st.Clone()
	return &Info{
		TotalStaked:    st.TotalStaked,
		TotalShares:    st.TotalShares,
		Buffer:         st.Buffer,
		ClaimPool:      st.ClaimPool,
		PendingClaims:  st.PendingClaims,
		Reserve:        st.Reserve,
		UnassignedLoss: st.UnassignedLoss,
		Price:          st.Price(),
		Params:         st.Params,
		Owner:          st.Owner,
		PendingOwner:   st.PendingOwner,
		Paused:         e.pauses != nil && e.pauses.IsPaused(moduleName),
	}, nil
}

// TotalStaked returns the assets backing outstanding shares.
func (e *Engine) TotalStaked() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(st.TotalStaked), nil
}

// TotalShares returns the outstanding receipt-token supply.
func (e *Engine) TotalShares() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(st.TotalShares), nil
}

// Account returns the balances of addr.
func (e *Engine) Account(addr crypto.Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.account(addr)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// MaxWithdraw returns the base units addr would receive for its whole share
// balance, including the rounding top-up.
func (e *Engine) MaxWithdraw(addr crypto.Address) (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	acc, err := e.account(addr)
	if err != nil {
		return nil, err
	}
	_, owed, err := toAssets(acc.Shares, st.Price())
	if err != nil {
		return nil, err
	}
	return owed, nil
}

// ConvertToShares previews a deposit of amount at the current price.
func (e *Engine) ConvertToShares(amount *big.Int) (*big.Int, error) {
	price, err := e.Price()
	if err != nil {
		return nil, err
	}
	return toShares(amount, price)
}

// ConvertToAssets previews the truncated payout of shares at the current
// price.
func (e *Engine) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	price, err := e.Price()
	if err != nil {
		return nil, err
	}
	floor, _, err := toAssets(shares, price)
	return floor, err
}
