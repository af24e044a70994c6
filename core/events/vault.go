package events

import (
	"math/big"
	"strconv"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	TypeVaultDeposited          = "vault.deposited"
	TypeVaultWithdrawn          = "vault.withdrawn"
	TypeVaultClaimed            = "vault.claimed"
	TypeVaultSharesTransferred  = "vault.sharesTransferred"
	TypeVaultFeeMinted          = "vault.treasuryFeeMinted"
	TypeVaultRewardsCompounded  = "vault.rewardsCompounded"
	TypeVaultSlashed            = "vault.slashed"
	TypeVaultReserveFunded      = "vault.reserveFunded"
	TypeVaultReserveDrawn       = "vault.reserveDrawn"
	TypeVaultUnbondingCompleted = "vault.unbondingCompleted"
	TypeVaultStakeMoved         = "vault.stakeMoved"
	TypeVaultValidator          = "vault.validator"
	TypeVaultAdmin              = "vault.admin"

	TypeAllocationUpdated     = "allocation.updated"
	TypeAllocationDistributed = "allocation.distributed"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// VaultDeposited records shares minted against a base-asset deposit.
type VaultDeposited struct {
	Account   crypto.Address
	Validator crypto.Address
	Amount    *big.Int
	Shares    *big.Int
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"account":   e.Account.String(),
		"validator": e.Validator.String(),
		"amount":    amountString(e.Amount),
		"shares":    amountString(e.Shares),
	}}
}

// VaultWithdrawn records shares burned for a payout. Source is either
// "buffer" (paid immediately) or the validator undelegated from, in which case
// ClaimID identifies the pending claim.
type VaultWithdrawn struct {
	Account   crypto.Address
	Shares    *big.Int
	Amount    *big.Int
	Shortfall *big.Int
	Source    string
	ClaimID   uint64
	ReleaseAt int64
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"account":   e.Account.String(),
		"shares":    amountString(e.Shares),
		"amount":    amountString(e.Amount),
		"shortfall": amountString(e.Shortfall),
		"source":    e.Source,
	}
	if e.ClaimID != 0 {
		attrs["claimId"] = strconv.FormatUint(e.ClaimID, 10)
		attrs["releaseAt"] = strconv.FormatInt(e.ReleaseAt, 10)
	}
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: attrs}
}

// VaultClaimed records matured claims paid out of the claim pool.
type VaultClaimed struct {
	Account crypto.Address
	Amount  *big.Int
	Claims  int
}

func (VaultClaimed) EventType() string { return TypeVaultClaimed }

func (e VaultClaimed) Event() *types.Event {
	return &types.Event{Type: TypeVaultClaimed, Attributes: map[string]string{
		"account": e.Account.String(),
		"amount":  amountString(e.Amount),
		"claims":  strconv.Itoa(e.Claims),
	}}
}

// VaultSharesTransferred records a receipt-token transfer.
type VaultSharesTransferred struct {
	From   crypto.Address
	To     crypto.Address
	Shares *big.Int
}

func (VaultSharesTransferred) EventType() string { return TypeVaultSharesTransferred }

func (e VaultSharesTransferred) Event() *types.Event {
	return &types.Event{Type: TypeVaultSharesTransferred, Attributes: map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"shares": amountString(e.Shares),
	}}
}

// VaultFeeMinted records treasury shares minted from a reward report.
type VaultFeeMinted struct {
	Treasury crypto.Address
	Reward   *big.Int
	Fee      *big.Int
	Shares   *big.Int
}

func (VaultFeeMinted) EventType() string { return TypeVaultFeeMinted }

func (e VaultFeeMinted) Event() *types.Event {
	return &types.Event{Type: TypeVaultFeeMinted, Attributes: map[string]string{
		"treasury": e.Treasury.String(),
		"reward":   amountString(e.Reward),
		"fee":      amountString(e.Fee),
		"shares":   amountString(e.Shares),
	}}
}

// VaultRewardsCompounded records rewards restaked into a validator or, for a
// disabled validator, parked in the vault buffer.
type VaultRewardsCompounded struct {
	Validator crypto.Address
	Amount    *big.Int
	Buffered  bool
}

func (VaultRewardsCompounded) EventType() string { return TypeVaultRewardsCompounded }

func (e VaultRewardsCompounded) Event() *types.Event {
	return &types.Event{Type: TypeVaultRewardsCompounded, Attributes: map[string]string{
		"validator": e.Validator.String(),
		"amount":    amountString(e.Amount),
		"buffered":  strconv.FormatBool(e.Buffered),
	}}
}

// VaultSlashed records a reported loss of staked assets. Claims is the part
// borne by pending withdrawal claims.
type VaultSlashed struct {
	Validator crypto.Address
	Amount    *big.Int
	Staked    *big.Int
	Claims    *big.Int
}

func (VaultSlashed) EventType() string { return TypeVaultSlashed }

func (e VaultSlashed) Event() *types.Event {
	return &types.Event{Type: TypeVaultSlashed, Attributes: map[string]string{
		"validator":   e.Validator.String(),
		"amount":      amountString(e.Amount),
		"totalStaked": amountString(e.Staked),
		"claimLoss":   amountString(e.Claims),
	}}
}

// VaultReserve records rounding reserve movements.
type VaultReserve struct {
	Account crypto.Address
	Amount  *big.Int
	Balance *big.Int
	Drawn   bool
}

func (e VaultReserve) EventType() string {
	if e.Drawn {
		return TypeVaultReserveDrawn
	}
	return TypeVaultReserveFunded
}

func (e VaultReserve) Event() *types.Event {
	attrs := map[string]string{
		"amount":  amountString(e.Amount),
		"balance": amountString(e.Balance),
	}
	if !e.Account.IsZero() {
		attrs["account"] = e.Account.String()
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// VaultUnbondingCompleted records matured unbonding released to the claim pool
// or the vault buffer.
type VaultUnbondingCompleted struct {
	Validator crypto.Address
	Amount    *big.Int
	ClaimID   uint64
}

func (VaultUnbondingCompleted) EventType() string { return TypeVaultUnbondingCompleted }

func (e VaultUnbondingCompleted) Event() *types.Event {
	return &types.Event{Type: TypeVaultUnbondingCompleted, Attributes: map[string]string{
		"validator": e.Validator.String(),
		"amount":    amountString(e.Amount),
		"claimId":   strconv.FormatUint(e.ClaimID, 10),
	}}
}

// VaultStakeMoved records delegate, undelegate and redelegate operations.
type VaultStakeMoved struct {
	Operation string
	From      crypto.Address
	To        crypto.Address
	Amount    *big.Int
}

func (VaultStakeMoved) EventType() string { return TypeVaultStakeMoved }

func (e VaultStakeMoved) Event() *types.Event {
	attrs := map[string]string{
		"operation": e.Operation,
		"amount":    amountString(e.Amount),
	}
	if !e.From.IsZero() {
		attrs["from"] = e.From.String()
	}
	if !e.To.IsZero() {
		attrs["to"] = e.To.String()
	}
	return &types.Event{Type: TypeVaultStakeMoved, Attributes: attrs}
}

// VaultValidator records registry transitions.
type VaultValidator struct {
	Validator crypto.Address
	Action    string
}

func (VaultValidator) EventType() string { return TypeVaultValidator }

func (e VaultValidator) Event() *types.Event {
	return &types.Event{Type: TypeVaultValidator, Attributes: map[string]string{
		"validator": e.Validator.String(),
		"action":    e.Action,
	}}
}

// VaultAdmin records owner and whitelist configuration changes.
type VaultAdmin struct {
	Action string
	Actor  crypto.Address
	Target crypto.Address
	Value  string
}

func (VaultAdmin) EventType() string { return TypeVaultAdmin }

func (e VaultAdmin) Event() *types.Event {
	attrs := map[string]string{
		"action": e.Action,
		"actor":  e.Actor.String(),
	}
	if !e.Target.IsZero() {
		attrs["target"] = e.Target.String()
	}
	if e.Value != "" {
		attrs["value"] = e.Value
	}
	return &types.Event{Type: TypeVaultAdmin, Attributes: attrs}
}

// AllocationUpdated records an allocate or deallocate.
type AllocationUpdated struct {
	Distributor crypto.Address
	Recipient   crypto.Address
	Delta       *big.Int
	Amount      *big.Int
	Price       string
	Removed     bool
}

func (AllocationUpdated) EventType() string { return TypeAllocationUpdated }

func (e AllocationUpdated) Event() *types.Event {
	return &types.Event{Type: TypeAllocationUpdated, Attributes: map[string]string{
		"distributor": e.Distributor.String(),
		"recipient":   e.Recipient.String(),
		"delta":       amountString(e.Delta),
		"amount":      amountString(e.Amount),
		"price":       e.Price,
		"removed":     strconv.FormatBool(e.Removed),
	}}
}

// AllocationDistributed records a paid distribution.
type AllocationDistributed struct {
	Distributor    crypto.Address
	Recipient      crypto.Address
	Shares         *big.Int
	Base           *big.Int
	Fee            *big.Int
	InReceiptToken bool
}

func (AllocationDistributed) EventType() string { return TypeAllocationDistributed }

func (e AllocationDistributed) Event() *types.Event {
	return &types.Event{Type: TypeAllocationDistributed, Attributes: map[string]string{
		"distributor":    e.Distributor.String(),
		"recipient":      e.Recipient.String(),
		"shares":         amountString(e.Shares),
		"base":           amountString(e.Base),
		"fee":            amountString(e.Fee),
		"inReceiptToken": strconv.FormatBool(e.InReceiptToken),
	}}
}
