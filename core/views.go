package core

import (
	"math/big"

	"stakevault/core/types"
	"stakevault/crypto"
	"stakevault/native/vault"
	"stakevault/native/whitelist"
)

// JSON views returned by queries and carried in receipts. Amounts are decimal
// strings; prices carry both the exact ratio and an 18-decimal rendering.

type PriceView struct {
	Num     string `json:"num"`
	Denom   string `json:"denom"`
	Wad     string `json:"wad"`
	Decimal string `json:"decimal"`
}

func newPriceView(p vault.Price) PriceView {
	if !p.Valid() {
		p = vault.BootstrapPrice()
	}
	wad := p.Wad()
	return PriceView{
		Num:     p.Num.String(),
		Denom:   p.Denom.String(),
		Wad:     wad.String(),
		Decimal: vault.FormatWad(wad),
	}
}

type ValidatorView struct {
	Address   string `json:"address"`
	Status    string `json:"status"`
	Delegated string `json:"delegated"`
	Unbonding string `json:"unbonding"`
}

func newValidatorView(v *vault.Validator) ValidatorView {
	return ValidatorView{
		Address:   v.Address.String(),
		Status:    v.Status.String(),
		Delegated: amountString(v.Delegated),
		Unbonding: amountString(v.Unbonding),
	}
}

type AllocationView struct {
	Distributor string    `json:"distributor"`
	Recipient   string    `json:"recipient"`
	Amount      string    `json:"amount"`
	Price       PriceView `json:"price"`
	Reward      string    `json:"reward"`
}

func newAllocationView(a *vault.Allocation, current vault.Price) AllocationView {
	return AllocationView{
		Distributor: a.Distributor.String(),
		Recipient:   a.Recipient.String(),
		Amount:      amountString(a.Amount),
		Price:       newPriceView(a.Price),
		Reward:      amountString(vault.ComputeReward(a, current)),
	}
}

type TotalAllocatedView struct {
	Distributor string    `json:"distributor"`
	Amount      string    `json:"amount"`
	Price       PriceView `json:"price"`
}

type UnbondingView struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner,omitempty"`
	Validator string `json:"validator"`
	Amount    string `json:"amount"`
	Owed      string `json:"owed"`
	ReleaseAt int64  `json:"releaseAt"`
	Matured   bool   `json:"matured"`
}

func newUnbondingView(u *vault.Unbonding) UnbondingView {
	view := UnbondingView{
		ID:        u.ID,
		Validator: u.Validator.String(),
		Amount:    amountString(u.Amount),
		Owed:      amountString(u.Owed),
		ReleaseAt: u.ReleaseAt,
		Matured:   u.Matured,
	}
	if !u.Owner.IsZero() {
		view.Owner = u.Owner.String()
	}
	return view
}

type AccountView struct {
	Address string `json:"address"`
	Base    string `json:"base"`
	Shares  string `json:"shares"`
	// Assets is the floor value of Shares at the current price.
	Assets string `json:"assets"`
}

func newAccountView(addr crypto.Address, acc *types.Account, assets *big.Int) AccountView {
	acc = acc.Normalize()
	return AccountView{
		Address: addr.String(),
		Base:    amountString(acc.Base),
		Shares:  amountString(acc.Shares),
		Assets:  amountString(assets),
	}
}

type ParamsView struct {
	TreasuryFeeBps     uint64 `json:"treasuryFeeBps"`
	DistributionFeeBps uint64 `json:"distributionFeeBps"`
	MinDeposit         string `json:"minDeposit"`
	UnbondingPeriod    string `json:"unbondingPeriod"`
	Treasury           string `json:"treasury,omitempty"`
	DefaultValidator   string `json:"defaultValidator,omitempty"`
}

type VaultInfoView struct {
	TotalStaked    string     `json:"totalStaked"`
	TotalShares    string     `json:"totalShares"`
	Buffer         string     `json:"buffer"`
	ClaimPool      string     `json:"claimPool"`
	PendingClaims  string     `json:"pendingClaims"`
	Reserve        string     `json:"reserve"`
	UnassignedLoss string     `json:"unassignedLoss"`
	Price          PriceView  `json:"price"`
	Params         ParamsView `json:"params"`
	Owner          string     `json:"owner"`
	PendingOwner   string     `json:"pendingOwner,omitempty"`
	Paused         bool       `json:"paused"`
}

func newVaultInfoView(info *vault.Info) VaultInfoView {
	view := VaultInfoView{
		TotalStaked:    amountString(info.TotalStaked),
		TotalShares:    amountString(info.TotalShares),
		Buffer:         amountString(info.Buffer),
		ClaimPool:      amountString(info.ClaimPool),
		PendingClaims:  amountString(info.PendingClaims),
		Reserve:        amountString(info.Reserve),
		UnassignedLoss: amountString(info.UnassignedLoss),
		Price:          newPriceView(info.Price),
		Params: ParamsView{
			TreasuryFeeBps:     info.Params.TreasuryFeeBps,
			DistributionFeeBps: info.Params.DistributionFeeBps,
			MinDeposit:         amountString(info.Params.MinDeposit),
			UnbondingPeriod:    info.Params.UnbondingPeriod.String(),
		},
		Owner:  info.Owner.String(),
		Paused: info.Paused,
	}
	if !info.Params.Treasury.IsZero() {
		view.Params.Treasury = info.Params.Treasury.String()
	}
	if !info.Params.DefaultValidator.IsZero() {
		view.Params.DefaultValidator = info.Params.DefaultValidator.String()
	}
	if !info.PendingOwner.IsZero() {
		view.PendingOwner = info.PendingOwner.String()
	}
	return view
}

type DistributionView struct {
	Recipient string `json:"recipient,omitempty"`
	Base      string `json:"base"`
	Shares    string `json:"shares"`
	Fee       string `json:"fee"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

func newDistributionView(recipient crypto.Address, amounts vault.DistributionAmounts) DistributionView {
	view := DistributionView{
		Base:   amountString(amounts.Base),
		Shares: amountString(amounts.Shares),
		Fee:    amountString(amounts.Fee),
	}
	if !recipient.IsZero() {
		view.Recipient = recipient.String()
	}
	return view
}

type WithdrawView struct {
	Shares    string `json:"shares"`
	Amount    string `json:"amount"`
	Shortfall string `json:"shortfall"`
	Source    string `json:"source,omitempty"`
	Immediate bool   `json:"immediate"`
	ClaimID   uint64 `json:"claimId,omitempty"`
	ReleaseAt int64  `json:"releaseAt,omitempty"`
}

func newWithdrawView(res *vault.WithdrawResult) WithdrawView {
	view := WithdrawView{
		Shares:    amountString(res.Shares),
		Amount:    amountString(res.Amount),
		Shortfall: amountString(res.Shortfall),
		Immediate: res.Immediate(),
		ClaimID:   res.ClaimID,
		ReleaseAt: res.ReleaseAt,
	}
	if !res.Source.IsZero() {
		view.Source = res.Source.String()
	}
	return view
}

type UserStatusView struct {
	Address string `json:"address"`
	Status  string `json:"status"`
	Agent   bool   `json:"agent"`
}

func newUserStatusView(addr crypto.Address, status whitelist.Status, agent bool) UserStatusView {
	return UserStatusView{Address: addr.String(), Status: status.String(), Agent: agent}
}

// AmountView wraps a single amount result.
type AmountView struct {
	Amount string `json:"amount"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
