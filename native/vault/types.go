package vault

import (
	"math/big"
	"time"

	"stakevault/crypto"
)

// ValidatorStatus is the lifecycle tag of a registered validator. The zero
// value is never persisted; absence from the registry means unset.
type ValidatorStatus uint8

const (
	ValidatorEnabled  ValidatorStatus = 1
	ValidatorDisabled ValidatorStatus = 2
)

func (s ValidatorStatus) String() string {
	switch s {
	case ValidatorEnabled:
		return "enabled"
	case ValidatorDisabled:
		return "disabled"
	default:
		return "unset"
	}
}

// Validator tracks the vault's stake with a single validator. Entries are
// never removed so that in-flight unbonding stays addressable.
type Validator struct {
	Address   crypto.Address
	Status    ValidatorStatus
	Delegated *big.Int
	Unbonding *big.Int
}

// Enabled reports whether the validator accepts new delegations.
func (v *Validator) Enabled() bool { return v != nil && v.Status == ValidatorEnabled }

// Clone returns a deep copy of the validator.
func (v *Validator) Clone() *Validator {
	if v == nil {
		return nil
	}
	return &Validator{
		Address:   v.Address,
		Status:    v.Status,
		Delegated: cloneAmount(v.Delegated),
		Unbonding: cloneAmount(v.Unbonding),
	}
}

// Allocation is a distributor's standing promise to route rewards accrued on
// Amount to Recipient. Price is the share price recorded by the last touch.
type Allocation struct {
	Distributor crypto.Address
	Recipient   crypto.Address
	Amount      *big.Int
	Price       Price
}

// Clone returns a deep copy of the allocation.
func (a *Allocation) Clone() *Allocation {
	if a == nil {
		return nil
	}
	return &Allocation{
		Distributor: a.Distributor,
		Recipient:   a.Recipient,
		Amount:      cloneAmount(a.Amount),
		Price:       a.Price.Clone(),
	}
}

// Unbonding is stake leaving a validator. Owner is zero for vault-owned
// unbonding started by an operator; otherwise the entry backs a withdrawal
// claim of Owed base units.
type Unbonding struct {
	ID        uint64
	Owner     crypto.Address
	Validator crypto.Address
	Amount    *big.Int
	Owed      *big.Int
	ReleaseAt int64
	Matured   bool
}

// IsClaim reports whether the entry backs a user withdrawal.
func (u *Unbonding) IsClaim() bool { return u != nil && !u.Owner.IsZero() }

// Clone returns a deep copy of the unbonding entry.
func (u *Unbonding) Clone() *Unbonding {
	if u == nil {
		return nil
	}
	out := *u
	out.Amount = cloneAmount(u.Amount)
	out.Owed = cloneAmount(u.Owed)
	return &out
}

// Params are the owner-tunable parameters of the vault.
type Params struct {
	TreasuryFeeBps     uint64
	DistributionFeeBps uint64
	MinDeposit         *big.Int
	UnbondingPeriod    time.Duration
	Treasury           crypto.Address
	DefaultValidator   crypto.Address
}

// State is the vault singleton.
type State struct {
	TotalShares    *big.Int
	TotalStaked    *big.Int
	Buffer         *big.Int
	ClaimPool      *big.Int
	PendingClaims  *big.Int
	Reserve        *big.Int
	UnassignedLoss *big.Int
	Params         Params
	Owner          crypto.Address
	PendingOwner   crypto.Address
	NextUnbonding  uint64
}

// NewState returns a zeroed vault state with default parameters.
func NewState(owner crypto.Address) *State {
	st := &State{Owner: owner}
	st.Params = DefaultParams()
	return st.normalize()
}

// DefaultParams returns the deployment defaults.
func DefaultParams() Params {
	return Params{
		MinDeposit:      new(big.Int).Set(OneUnit),
		UnbondingPeriod: DefaultUnbondingPeriod,
	}
}

func (s *State) normalize() *State {
	for _, field := range []**big.Int{
		&s.TotalShares, &s.TotalStaked, &s.Buffer, &s.ClaimPool,
		&s.PendingClaims, &s.Reserve, &s.UnassignedLoss, &s.Params.MinDeposit,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.TotalShares = cloneAmount(s.TotalShares)
	out.TotalStaked = cloneAmount(s.TotalStaked)
	out.Buffer = cloneAmount(s.Buffer)
	out.ClaimPool = cloneAmount(s.ClaimPool)
	out.PendingClaims = cloneAmount(s.PendingClaims)
	out.Reserve = cloneAmount(s.Reserve)
	out.UnassignedLoss = cloneAmount(s.UnassignedLoss)
	out.Params.MinDeposit = cloneAmount(s.Params.MinDeposit)
	return &out
}

// Price returns the current share price.
func (s *State) Price() Price {
	return priceOf(s.TotalStaked, s.TotalShares)
}

// RewardReport is one validator's harvested staking reward.
type RewardReport struct {
	Validator crypto.Address
	Amount    *big.Int
}

// DistributionResult is the per-recipient outcome of DistributeAll.
type DistributionResult struct {
	Recipient crypto.Address
	Shares    *big.Int
	Base      *big.Int
	Fee       *big.Int
	Err       error
}

// DistributionAmounts describes what a distribution would move.
type DistributionAmounts struct {
	Base   *big.Int
	Shares *big.Int
	Fee    *big.Int
}

// WithdrawResult reports where a withdrawal was paid from.
type WithdrawResult struct {
	Shares    *big.Int
	Amount    *big.Int
	Shortfall *big.Int
	Source    crypto.Address
	ClaimID   uint64
	ReleaseAt int64
}

// Immediate reports whether the payout was made from the vault buffer.
func (r *WithdrawResult) Immediate() bool { return r != nil && r.ClaimID == 0 }

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
