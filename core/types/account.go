package types

import "math/big"

// Account holds the two balances a vault participant can own: the liquid base
// asset and the receipt-token shares.
type Account struct {
	Base   *big.Int `json:"base"`
	Shares *big.Int `json:"shares"`
}

// NewAccount returns an empty account with initialised balances.
func NewAccount() *Account {
	return &Account{Base: big.NewInt(0), Shares: big.NewInt(0)}
}

// Normalize replaces nil balances with zero.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.Base == nil {
		a.Base = big.NewInt(0)
	}
	if a.Shares == nil {
		a.Shares = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	out := NewAccount()
	if a.Base != nil {
		out.Base.Set(a.Base)
	}
	if a.Shares != nil {
		out.Shares.Set(a.Shares)
	}
	return out
}

// IsEmpty reports whether both balances are zero.
func (a *Account) IsEmpty() bool {
	if a == nil {
		return true
	}
	return (a.Base == nil || a.Base.Sign() == 0) && (a.Shares == nil || a.Shares.Sign() == 0)
}
