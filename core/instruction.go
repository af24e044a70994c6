package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
)

// Instruction names accepted by Node.Apply.
const (
	InstrDeposit           = "deposit"
	InstrWithdraw          = "withdraw"
	InstrWithdrawAssets    = "withdraw_assets"
	InstrClaim             = "claim"
	InstrTransfer          = "transfer"
	InstrAllocate          = "allocate"
	InstrDeallocate        = "deallocate"
	InstrDistributeRewards = "distribute_rewards"
	InstrDistributeAll     = "distribute_all"

	InstrAddValidator        = "add_validator"
	InstrEnableValidator     = "enable_validator"
	InstrDisableValidator    = "disable_validator"
	InstrSetDefaultValidator = "set_default_validator"
	InstrDelegateBuffer      = "delegate_buffer"
	InstrUndelegate          = "undelegate"
	InstrRedelegate          = "redelegate"
	InstrCompoundRewards     = "compound_rewards"
	InstrReportSlash         = "report_slash"
	InstrFundReserve         = "fund_reserve"

	InstrSetTreasuryFee     = "set_treasury_fee"
	InstrSetDistributionFee = "set_distribution_fee"
	InstrSetMinDeposit      = "set_min_deposit"
	InstrSetTreasury        = "set_treasury"
	InstrSetPendingOwner    = "set_pending_owner"
	InstrClaimOwnership     = "claim_ownership"
	InstrPause              = "pause"
	InstrUnpause            = "unpause"

	InstrAddAgent      = "add_agent"
	InstrRemoveAgent   = "remove_agent"
	InstrWhitelistUser = "whitelist_user"
	InstrBlacklistUser = "blacklist_user"
	InstrClearUser     = "clear_user"

	// InstrProcessUnbonding is issued by the node itself on each tick.
	InstrProcessUnbonding = "process_unbonding"
)

var (
	ErrUnknownInstruction = coreerrors.New(coreerrors.ErrValidation, "unknown_instruction", "core: unknown instruction")
	ErrInvalidPayload     = coreerrors.New(coreerrors.ErrValidation, "invalid_payload", "core: invalid instruction payload")
	ErrMissingSender      = coreerrors.New(coreerrors.ErrValidation, "missing_sender", "core: instruction sender required")
)

// Instruction is one request to mutate vault state. The transport
// authenticates Sender; Payload carries the instruction fields.
type Instruction struct {
	Type    string          `json:"type"`
	Sender  crypto.Address  `json:"sender"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Amount is a non-negative base-10 integer carried as a JSON string so that
// values above 2^53 survive every client.
type Amount struct {
	*big.Int
}

// NewAmount wraps v.
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{big.NewInt(0)}
	}
	return Amount{new(big.Int).Set(v)}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(a.Int.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("amount must be a decimal string: %w", err)
	}
	text = strings.TrimSpace(text)
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", text)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	a.Int = v
	return nil
}

// Value returns the amount, zero when unset.
func (a Amount) Value() *big.Int {
	if a.Int == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.Int)
}

type DepositPayload struct {
	Amount    Amount         `json:"amount"`
	Validator crypto.Address `json:"validator,omitempty"`
}

type WithdrawPayload struct {
	Shares    Amount         `json:"shares"`
	Validator crypto.Address `json:"validator,omitempty"`
}

type WithdrawAssetsPayload struct {
	Amount    Amount         `json:"amount"`
	Validator crypto.Address `json:"validator,omitempty"`
}

type TransferPayload struct {
	Recipient crypto.Address `json:"recipient"`
	Shares    Amount         `json:"shares"`
}

// AllocationPayload serves allocate and deallocate.
type AllocationPayload struct {
	Recipient crypto.Address `json:"recipient"`
	Amount    Amount         `json:"amount"`
}

// DistributePayload serves distribute_rewards and distribute_all; the
// latter ignores Recipient.
type DistributePayload struct {
	Recipient      crypto.Address `json:"recipient,omitempty"`
	InReceiptToken bool           `json:"inReceiptToken"`
}

type ValidatorPayload struct {
	Validator crypto.Address `json:"validator"`
}

// StakePayload serves delegate_buffer, undelegate and report_slash. A zero
// validator on report_slash records an unassigned loss.
type StakePayload struct {
	Validator crypto.Address `json:"validator,omitempty"`
	Amount    Amount         `json:"amount"`
}

type RedelegatePayload struct {
	From   crypto.Address `json:"from"`
	To     crypto.Address `json:"to"`
	Amount Amount         `json:"amount"`
}

type RewardReportPayload struct {
	Validator crypto.Address `json:"validator"`
	Amount    Amount         `json:"amount"`
}

type CompoundPayload struct {
	Reports []RewardReportPayload `json:"reports"`
}

// AmountPayload serves fund_reserve and set_min_deposit.
type AmountPayload struct {
	Amount Amount `json:"amount"`
}

type BpsPayload struct {
	Bps uint64 `json:"bps"`
}

// AccountPayload serves the single-account owner and whitelist instructions.
type AccountPayload struct {
	Account crypto.Address `json:"account"`
}

// decodePayload strictly decodes the instruction payload into out.
func decodePayload(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// NewInstruction encodes payload into an instruction of the given type.
func NewInstruction(kind string, sender crypto.Address, payload interface{}) (Instruction, error) {
	instr := Instruction{Type: kind, Sender: sender}
	if payload == nil {
		return instr, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Instruction{}, err
	}
	instr.Payload = raw
	return instr, nil
}
