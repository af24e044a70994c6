package vault

import (
	"math/big"

	"stakevault/core/events"
	"stakevault/crypto"
)

// Shortfall is the amount the rounding reserve must add so that a payout of
// truncated reaches owed.
func Shortfall(owed, truncated *big.Int) *big.Int {
	if owed.Cmp(truncated) <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(owed, truncated)
}

// drawReserve debits shortfall from the reserve held in st.
func (e *Engine) drawReserve(st *State, shortfall *big.Int) error {
	if shortfall == nil || shortfall.Sign() == 0 {
		return nil
	}
	if st.Reserve.Cmp(shortfall) < 0 {
		return ErrReserveExhausted
	}
	st.Reserve = new(big.Int).Sub(st.Reserve, shortfall)
	return nil
}

// FundReserve moves base asset from the funder's wallet into the rounding
// reserve. Anyone may top the reserve up.
func (e *Engine) FundReserve(funder crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if funder.IsZero() {
		return ErrInvalidAddress
	}
	if !positive(amount) {
		return ErrInvalidAmount
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	acc, err := e.account(funder)
	if err != nil {
		return err
	}
	if acc.Base.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if acc.Base, err = sub(acc.Base, amount); err != nil {
		return err
	}
	if st.Reserve, err = add(st.Reserve, amount); err != nil {
		return err
	}
	if err := e.state.PutAccount(funder, acc); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultReserve{Account: funder, Amount: new(big.Int).Set(amount), Balance: new(big.Int).Set(st.Reserve)})
	return nil
}
