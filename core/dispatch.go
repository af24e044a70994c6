package core

import (
	"encoding/json"
	"sort"

	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
	"stakevault/native/vault"
)

type instructionHandler func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error)

// SharesView reports a share amount minted or moved by an instruction.
type SharesView struct {
	Shares string `json:"shares"`
}

var instructionHandlers = map[string]instructionHandler{
	InstrDeposit: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p DepositPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		shares, err := n.vault.Deposit(sender, p.Amount.Value(), p.Validator)
		if err != nil {
			return nil, err
		}
		return SharesView{Shares: amountString(shares)}, nil
	},
	InstrWithdraw: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p WithdrawPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		res, err := n.vault.Withdraw(sender, p.Shares.Value(), p.Validator)
		if err != nil {
			return nil, err
		}
		return newWithdrawView(res), nil
	},
	InstrWithdrawAssets: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p WithdrawAssetsPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		res, err := n.vault.WithdrawAssets(sender, p.Amount.Value(), p.Validator)
		if err != nil {
			return nil, err
		}
		return newWithdrawView(res), nil
	},
	InstrClaim: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		if err := decodePayload(raw, &struct{}{}); err != nil {
			return nil, err
		}
		paid, err := n.vault.Claim(sender)
		if err != nil {
			return nil, err
		}
		return AmountView{Amount: amountString(paid)}, nil
	},
	InstrTransfer: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p TransferPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		if err := n.vault.Transfer(sender, p.Recipient, p.Shares.Value()); err != nil {
			return nil, err
		}
		return SharesView{Shares: amountString(p.Shares.Value())}, nil
	},
	InstrAllocate: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p AllocationPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		entry, err := n.vault.Allocate(sender, p.Recipient, p.Amount.Value())
		if err != nil {
			return nil, err
		}
		return n.allocationView(entry)
	},
	InstrDeallocate: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p AllocationPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		entry, err := n.vault.Deallocate(sender, p.Recipient, p.Amount.Value())
		if err != nil {
			return nil, err
		}
		return n.allocationView(entry)
	},
	InstrDistributeRewards: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p DistributePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		paid, err := n.vault.DistributeRewards(sender, p.Recipient, p.InReceiptToken)
		if err != nil {
			return nil, err
		}
		return newDistributionView(p.Recipient, paid), nil
	},
	InstrDistributeAll: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p DistributePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		results, err := n.vault.DistributeAll(sender, p.InReceiptToken)
		if err != nil {
			return nil, err
		}
		out := make([]DistributionView, 0, len(results))
		for _, res := range results {
			if res.Err != nil {
				out = append(out, DistributionView{
					Recipient: res.Recipient.String(),
					Base:      "0",
					Shares:    "0",
					Fee:       "0",
					Error:     res.Err.Error(),
					Code:      coreerrors.CodeOf(res.Err),
				})
				continue
			}
			out = append(out, newDistributionView(res.Recipient, vault.DistributionAmounts{
				Base:   res.Base,
				Shares: res.Shares,
				Fee:    res.Fee,
			}))
		}
		return out, nil
	},

	InstrAddValidator: validatorHandler(func(n *Node, sender, addr crypto.Address) error {
		return n.vault.AddValidator(sender, addr)
	}),
	InstrEnableValidator: validatorHandler(func(n *Node, sender, addr crypto.Address) error {
		return n.vault.EnableValidator(sender, addr)
	}),
	InstrDisableValidator: validatorHandler(func(n *Node, sender, addr crypto.Address) error {
		return n.vault.DisableValidator(sender, addr)
	}),
	InstrSetDefaultValidator: validatorHandler(func(n *Node, sender, addr crypto.Address) error {
		return n.vault.SetDefaultValidator(sender, addr)
	}),
	InstrDelegateBuffer: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p StakePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.Delegate(sender, p.Validator, p.Amount.Value())
	},
	InstrUndelegate: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p StakePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		entry, err := n.vault.Undelegate(sender, p.Validator, p.Amount.Value())
		if err != nil {
			return nil, err
		}
		return newUnbondingView(entry), nil
	},
	InstrRedelegate: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p RedelegatePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.Redelegate(sender, p.From, p.To, p.Amount.Value())
	},
	InstrCompoundRewards: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p CompoundPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		reports := make([]vault.RewardReport, 0, len(p.Reports))
		for _, r := range p.Reports {
			reports = append(reports, vault.RewardReport{Validator: r.Validator, Amount: r.Amount.Value()})
		}
		feeShares, err := n.vault.CompoundRewards(sender, reports)
		if err != nil {
			return nil, err
		}
		return SharesView{Shares: amountString(feeShares)}, nil
	},
	InstrReportSlash: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p StakePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.ApplyLoss(sender, p.Validator, p.Amount.Value())
	},
	InstrFundReserve: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p AmountPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.FundReserve(sender, p.Amount.Value())
	},

	InstrSetTreasuryFee: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p BpsPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.SetTreasuryFee(sender, p.Bps)
	},
	InstrSetDistributionFee: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p BpsPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.SetDistributionFee(sender, p.Bps)
	},
	InstrSetMinDeposit: func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p AmountPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, n.vault.SetMinDeposit(sender, p.Amount.Value())
	},
	InstrSetTreasury: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.vault.SetTreasury(sender, account)
	}),
	InstrSetPendingOwner: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.vault.SetPendingOwner(sender, account)
	}),
	InstrClaimOwnership: noArgHandler(func(n *Node, sender crypto.Address) error {
		return n.vault.ClaimOwnership(sender)
	}),
	InstrPause: noArgHandler(func(n *Node, sender crypto.Address) error {
		return n.vault.Pause(sender)
	}),
	InstrUnpause: noArgHandler(func(n *Node, sender crypto.Address) error {
		return n.vault.Unpause(sender)
	}),

	InstrAddAgent: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.whitelist.AddAgent(sender, account)
	}),
	InstrRemoveAgent: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.whitelist.RemoveAgent(sender, account)
	}),
	InstrWhitelistUser: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.whitelist.WhitelistUser(sender, account)
	}),
	InstrBlacklistUser: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.whitelist.BlacklistUser(sender, account)
	}),
	InstrClearUser: accountHandler(func(n *Node, sender, account crypto.Address) error {
		return n.whitelist.ClearUser(sender, account)
	}),
}

func validatorHandler(fn func(n *Node, sender, addr crypto.Address) error) instructionHandler {
	return func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p ValidatorPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, fn(n, sender, p.Validator)
	}
}

func accountHandler(fn func(n *Node, sender, account crypto.Address) error) instructionHandler {
	return func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		var p AccountPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, fn(n, sender, p.Account)
	}
}

func noArgHandler(fn func(n *Node, sender crypto.Address) error) instructionHandler {
	return func(n *Node, sender crypto.Address, raw json.RawMessage) (interface{}, error) {
		if err := decodePayload(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return nil, fn(n, sender)
	}
}

func (n *Node) dispatch(instr Instruction) (interface{}, error) {
	handler, ok := instructionHandlers[instr.Type]
	if !ok {
		return nil, ErrUnknownInstruction
	}
	if instr.Sender.IsZero() {
		return nil, ErrMissingSender
	}
	return handler(n, instr.Sender, instr.Payload)
}

func (n *Node) allocationView(entry *vault.Allocation) (interface{}, error) {
	price, err := n.vault.Price()
	if err != nil {
		return nil, err
	}
	return newAllocationView(entry, price), nil
}

// SupportedInstructions lists every instruction name Apply accepts.
func SupportedInstructions() []string {
	names := make([]string, 0, len(instructionHandlers))
	for name := range instructionHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupportedInstruction reports whether Apply dispatches name.
func IsSupportedInstruction(name string) bool {
	_, ok := instructionHandlers[name]
	return ok
}
