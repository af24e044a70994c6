package vault

import (
	"math/big"
	"time"

	"stakevault/core/events"
	"stakevault/core/types"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

const moduleName = "vault"

// ModuleName is the pause-gate identifier of the vault.
func ModuleName() string { return moduleName }

type engineState interface {
	VaultState() (*State, error)
	PutVaultState(st *State) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error

	GetValidator(addr crypto.Address) (*Validator, bool, error)
	PutValidator(v *Validator) error
	ValidatorIDs() ([]crypto.Address, error)

	GetAllocation(distributor, recipient crypto.Address) (*Allocation, bool, error)
	PutAllocation(a *Allocation) error
	DeleteAllocation(distributor, recipient crypto.Address) error
	AllocationRecipients(distributor crypto.Address) ([]crypto.Address, error)

	GetUnbonding(id uint64) (*Unbonding, bool, error)
	PutUnbonding(u *Unbonding) error
	DeleteUnbonding(id uint64) error
	UnbondingQueue() ([]uint64, error)
	PutUnbondingQueue(ids []uint64) error
	ClaimIDs(owner crypto.Address) ([]uint64, error)
	PutClaimIDs(owner crypto.Address, ids []uint64) error

	SetModulePaused(module string, paused bool) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine applies vault instructions against the configured state.
type Engine struct {
	state     engineState
	pauses    nativecommon.PauseView
	whitelist nativecommon.WhitelistView
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewEngine constructs an engine with no state attached.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetWhitelist configures the view consulted by user instructions.
func (e *Engine) SetWhitelist(w nativecommon.WhitelistView) {
	if e == nil {
		return
	}
	e.whitelist = w
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for unbonding maturity.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// truncatingEmitter is implemented by buffering emitters such as
// events.Recorder.
type truncatingEmitter interface {
	Len() int
	Truncate(n int)
}

func (e *Engine) eventMark() int {
	if rec, ok := e.emitter.(truncatingEmitter); ok {
		return rec.Len()
	}
	return -1
}

// dropEvents discards events emitted after mark by a reverted step.
func (e *Engine) dropEvents(mark int) {
	if rec, ok := e.emitter.(truncatingEmitter); ok && mark >= 0 {
		rec.Truncate(mark)
	}
}

// userGate applies the pause and whitelist gates shared by every user
// instruction.
func (e *Engine) userGate(sender crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if sender.IsZero() {
		return ErrInvalidAddress
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return nativecommon.RequireWhitelisted(e.whitelist, sender)
}

func (e *Engine) loadState() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.VaultState()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNilState
	}
	return st.normalize(), nil
}

func (e *Engine) account(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Normalize(), nil
}

func (e *Engine) validator(addr crypto.Address) (*Validator, error) {
	v, ok, err := e.state.GetValidator(addr)
	if err != nil {
		return nil, err
	}
	if !ok || v == nil {
		return nil, ErrValidatorNotFound
	}
	if v.Delegated == nil {
		v.Delegated = big.NewInt(0)
	}
	if v.Unbonding == nil {
		v.Unbonding = big.NewInt(0)
	}
	return v, nil
}

// Price returns the current share price.
func (e *Engine) Price() (Price, error) {
	st, err := e.loadState()
	if err != nil {
		return Price{}, err
	}
	return st.Price(), nil
}

// Deposit stakes amount of the sender's base asset with validator (or the
// default validator when zero) and mints receipt shares at the pre-deposit
// price.
func (e *Engine) Deposit(sender crypto.Address, amount *big.Int, validatorAddr crypto.Address) (*big.Int, error) {
	if err := e.userGate(sender); err != nil {
		return nil, err
	}
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if amount.Cmp(st.Params.MinDeposit) < 0 {
		return nil, ErrBelowMinDeposit
	}
	if validatorAddr.IsZero() {
		validatorAddr = st.Params.DefaultValidator
		if validatorAddr.IsZero() {
			return nil, ErrNoDefaultValidator
		}
	}
	val, err := e.validator(validatorAddr)
	if err != nil {
		return nil, err
	}
	if !val.Enabled() {
		return nil, ErrValidatorNotEnabled
	}
	acc, err := e.account(sender)
	if err != nil {
		return nil, err
	}
	if acc.Base.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	if st.TotalShares.Sign() > 0 && st.TotalStaked.Sign() == 0 {
		return nil, ErrVaultInsolvent
	}

	shares, err := toShares(amount, st.Price())
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}

	if acc.Base, err = sub(acc.Base, amount); err != nil {
		return nil, err
	}
	if acc.Shares, err = add(acc.Shares, shares); err != nil {
		return nil, err
	}
	if err := delegate(val, amount); err != nil {
		return nil, err
	}
	if st.TotalStaked, err = add(st.TotalStaked, amount); err != nil {
		return nil, err
	}
	if st.TotalShares, err = add(st.TotalShares, shares); err != nil {
		return nil, err
	}

	if err := e.state.PutAccount(sender, acc); err != nil {
		return nil, err
	}
	if err := e.state.PutValidator(val); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}
	e.emit(events.VaultDeposited{Account: sender, Validator: val.Address, Amount: new(big.Int).Set(amount), Shares: new(big.Int).Set(shares)})
	return shares, nil
}

// Withdraw burns shares and pays out their value at the pre-burn price. When
// validatorAddr is set the stake is undelegated from it; otherwise the vault
// buffer is used if it covers the amount, falling back to the validator with
// the largest delegation that does.
func (e *Engine) Withdraw(sender crypto.Address, shares *big.Int, validatorAddr crypto.Address) (*WithdrawResult, error) {
	if err := e.userGate(sender); err != nil {
		return nil, err
	}
	if !positive(shares) {
		return nil, ErrInvalidAmount
	}
	return e.withdraw(sender, shares, validatorAddr)
}

// WithdrawAssets withdraws shares worth amount base units. If the position
// left behind would be worth less than the minimum deposit, the whole
// position is withdrawn instead.
func (e *Engine) WithdrawAssets(sender crypto.Address, amount *big.Int, validatorAddr crypto.Address) (*WithdrawResult, error) {
	if err := e.userGate(sender); err != nil {
		return nil, err
	}
	if !positive(amount) {
		return nil, ErrInvalidAmount
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	acc, err := e.account(sender)
	if err != nil {
		return nil, err
	}
	price := st.Price()
	_, maxWithdraw, err := toAssets(acc.Shares, price)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(maxWithdraw) > 0 {
		return nil, ErrInsufficientShares
	}
	shares := new(big.Int).Set(acc.Shares)
	if new(big.Int).Sub(maxWithdraw, amount).Cmp(st.Params.MinDeposit) >= 0 {
		if shares, err = toShares(amount, price); err != nil {
			return nil, err
		}
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	return e.withdraw(sender, shares, validatorAddr)
}

func (e *Engine) withdraw(sender crypto.Address, shares *big.Int, validatorAddr crypto.Address) (*WithdrawResult, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	acc, err := e.account(sender)
	if err != nil {
		return nil, err
	}
	if acc.Shares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}

	truncated, owed, err := toAssets(shares, st.Price())
	if err != nil {
		return nil, err
	}
	if truncated.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	shortfall := Shortfall(owed, truncated)
	// Partial withdrawals worth less than the minimum deposit may not draw on
	// the reserve. Closing a position always may.
	if shortfall.Sign() > 0 && acc.Shares.Cmp(shares) != 0 && truncated.Cmp(st.Params.MinDeposit) < 0 {
		return nil, ErrBelowMinWithdrawal
	}
	if err := e.drawReserve(st, shortfall); err != nil {
		return nil, err
	}

	if acc.Shares, err = sub(acc.Shares, shares); err != nil {
		return nil, err
	}
	if st.TotalShares, err = sub(st.TotalShares, shares); err != nil {
		return nil, err
	}
	if st.TotalStaked, err = sub(st.TotalStaked, truncated); err != nil {
		return nil, err
	}

	result := &WithdrawResult{
		Shares:    new(big.Int).Set(shares),
		Amount:    owed,
		Shortfall: shortfall,
	}

	source, err := e.withdrawSource(st, truncated, validatorAddr)
	if err != nil {
		return nil, err
	}
	if source == nil {
		if st.Buffer, err = sub(st.Buffer, truncated); err != nil {
			return nil, err
		}
		if acc.Base, err = add(acc.Base, owed); err != nil {
			return nil, err
		}
	} else {
		if err := undelegate(source, truncated); err != nil {
			return nil, err
		}
		if st.ClaimPool, err = add(st.ClaimPool, shortfall); err != nil {
			return nil, err
		}
		if st.PendingClaims, err = add(st.PendingClaims, owed); err != nil {
			return nil, err
		}
		entry, err := e.enqueueUnbonding(st, sender, source.Address, truncated, owed)
		if err != nil {
			return nil, err
		}
		if err := e.state.PutValidator(source); err != nil {
			return nil, err
		}
		result.Source = source.Address
		result.ClaimID = entry.ID
		result.ReleaseAt = entry.ReleaseAt
	}

	if err := e.state.PutAccount(sender, acc); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	sourceLabel := "buffer"
	if source != nil {
		sourceLabel = source.Address.String()
	}
	e.emit(events.VaultWithdrawn{
		Account:   sender,
		Shares:    new(big.Int).Set(shares),
		Amount:    new(big.Int).Set(owed),
		Shortfall: new(big.Int).Set(shortfall),
		Source:    sourceLabel,
		ClaimID:   result.ClaimID,
		ReleaseAt: result.ReleaseAt,
	})
	if shortfall.Sign() > 0 {
		e.emit(events.VaultReserve{Amount: new(big.Int).Set(shortfall), Balance: new(big.Int).Set(st.Reserve), Drawn: true})
	}
	return result, nil
}

// withdrawSource picks the liquidity source for a withdrawal. A nil
// validator with a nil error means the vault buffer pays.
func (e *Engine) withdrawSource(st *State, amount *big.Int, hint crypto.Address) (*Validator, error) {
	if !hint.IsZero() {
		val, err := e.validator(hint)
		if err != nil {
			return nil, err
		}
		if val.Delegated.Cmp(amount) < 0 {
			return nil, ErrInsufficientValidatorBalance
		}
		return val, nil
	}
	if st.Buffer.Cmp(amount) >= 0 {
		return nil, nil
	}
	ids, err := e.state.ValidatorIDs()
	if err != nil {
		return nil, err
	}
	var best *Validator
	for _, id := range ids {
		val, err := e.validator(id)
		if err != nil {
			return nil, err
		}
		if val.Delegated.Cmp(amount) < 0 {
			continue
		}
		// ids are ordered, so strict comparison keeps the lowest identity on ties.
		if best == nil || val.Delegated.Cmp(best.Delegated) > 0 {
			best = val
		}
	}
	if best == nil {
		return nil, ErrInsufficientLiquidity
	}
	return best, nil
}

// Transfer moves receipt shares between holders.
func (e *Engine) Transfer(sender, recipient crypto.Address, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if sender.IsZero() || recipient.IsZero() {
		return ErrInvalidAddress
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !positive(shares) {
		return ErrInvalidAmount
	}
	if err := e.moveShares(sender, recipient, shares); err != nil {
		return err
	}
	e.emit(events.VaultSharesTransferred{From: sender, To: recipient, Shares: new(big.Int).Set(shares)})
	return nil
}

func (e *Engine) moveShares(from, to crypto.Address, shares *big.Int) error {
	if from.Equal(to) {
		return nil
	}
	src, err := e.account(from)
	if err != nil {
		return err
	}
	if src.Shares.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}
	dst, err := e.account(to)
	if err != nil {
		return err
	}
	if src.Shares, err = sub(src.Shares, shares); err != nil {
		return err
	}
	if dst.Shares, err = add(dst.Shares, shares); err != nil {
		return err
	}
	if err := e.state.PutAccount(from, src); err != nil {
		return err
	}
	return e.state.PutAccount(to, dst)
}

func (e *Engine) moveBase(from, to crypto.Address, amount *big.Int) error {
	if from.Equal(to) {
		return nil
	}
	src, err := e.account(from)
	if err != nil {
		return err
	}
	if src.Base.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dst, err := e.account(to)
	if err != nil {
		return err
	}
	if src.Base, err = sub(src.Base, amount); err != nil {
		return err
	}
	if dst.Base, err = add(dst.Base, amount); err != nil {
		return err
	}
	if err := e.state.PutAccount(from, src); err != nil {
		return err
	}
	return e.state.PutAccount(to, dst)
}
