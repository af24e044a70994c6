package vault

import coreerrors "stakevault/core/errors"

var (
	errNilState = coreerrors.New(coreerrors.ErrState, "state_not_configured", "vault engine: state not configured")

	ErrInvalidAmount       = coreerrors.New(coreerrors.ErrValidation, "invalid_amount", "vault: amount must be positive")
	ErrInvalidAddress      = coreerrors.New(coreerrors.ErrValidation, "invalid_address", "vault: address required")
	ErrBelowMinDeposit     = coreerrors.New(coreerrors.ErrValidation, "deposit_below_min", "vault: deposit below minimum deposit")
	ErrBelowMinWithdrawal  = coreerrors.New(coreerrors.ErrValidation, "withdrawal_below_min", "vault: partial withdrawal below minimum deposit needs rounding reserve")
	ErrBelowMinAllocation  = coreerrors.New(coreerrors.ErrValidation, "allocation_below_min", "vault: allocation below minimum allocation")
	ErrInvalidRecipient    = coreerrors.New(coreerrors.ErrValidation, "invalid_recipient", "vault: recipient must differ from distributor")
	ErrFeeTooLarge         = coreerrors.New(coreerrors.ErrValidation, "fee_too_large", "vault: fee must be below 10000 basis points")
	ErrMinDepositTooSmall  = coreerrors.New(coreerrors.ErrValidation, "min_deposit_too_small", "vault: minimum deposit below one unit")
	ErrZeroShares          = coreerrors.New(coreerrors.ErrValidation, "zero_shares", "vault: amount converts to zero shares")
	ErrEmptyRewardReport   = coreerrors.New(coreerrors.ErrValidation, "empty_reward_report", "vault: reward report is empty")
	ErrSameValidator       = coreerrors.New(coreerrors.ErrValidation, "same_validator", "vault: source and target validator are identical")
	ErrOnlyOwner           = coreerrors.New(coreerrors.ErrAuthorization, "only_owner", "vault: caller is not the owner")
	ErrNoPendingOwner      = coreerrors.New(coreerrors.ErrAuthorization, "no_pending_owner", "vault: no pending owner set")
	ErrNotPendingOwner     = coreerrors.New(coreerrors.ErrAuthorization, "not_pending_owner", "vault: caller is not the pending owner")
	ErrAlreadyPaused       = coreerrors.New(coreerrors.ErrState, "already_paused", "vault: already paused")
	ErrNotPaused           = coreerrors.New(coreerrors.ErrState, "not_paused", "vault: not paused")
	ErrValidatorExists     = coreerrors.New(coreerrors.ErrState, "validator_exists", "vault: validator already exists")
	ErrValidatorNotFound   = coreerrors.New(coreerrors.ErrState, "validator_not_found", "vault: validator does not exist")
	ErrValidatorEnabled    = coreerrors.New(coreerrors.ErrState, "validator_already_enabled", "vault: validator already enabled")
	ErrValidatorDisabled   = coreerrors.New(coreerrors.ErrState, "validator_already_disabled", "vault: validator already disabled")
	ErrValidatorNotEnabled = coreerrors.New(coreerrors.ErrState, "validator_not_enabled", "vault: validator not enabled")
	ErrNoDefaultValidator  = coreerrors.New(coreerrors.ErrState, "no_default_validator", "vault: default validator not configured")

	ErrInsufficientValidatorBalance = coreerrors.New(coreerrors.ErrState, "insufficient_validator_balance", "vault: insufficient validator balance")
	ErrInsufficientLiquidity        = coreerrors.New(coreerrors.ErrState, "insufficient_liquidity", "vault: no validator or buffer covers the withdrawal")
	ErrInsufficientBalance          = coreerrors.New(coreerrors.ErrState, "insufficient_balance", "vault: insufficient balance")
	ErrInsufficientShares           = coreerrors.New(coreerrors.ErrState, "insufficient_shares", "vault: insufficient shares")
	ErrInsufficientBuffer           = coreerrors.New(coreerrors.ErrState, "insufficient_buffer", "vault: insufficient buffer")
	ErrInsufficientClaimPool        = coreerrors.New(coreerrors.ErrState, "insufficient_claim_pool", "vault: claim pool cannot cover matured claims")
	ErrNoAllocation                 = coreerrors.New(coreerrors.ErrState, "no_allocation", "vault: no allocation to recipient")
	ErrExcessiveDeallocation        = coreerrors.New(coreerrors.ErrState, "excessive_deallocation", "vault: deallocation exceeds allocated amount")
	ErrNoAllocations                = coreerrors.New(coreerrors.ErrState, "no_allocations", "vault: distributor has no allocations")
	ErrReserveExhausted             = coreerrors.New(coreerrors.ErrState, "reserve_exhausted", "vault: rounding reserve exhausted")
	ErrNothingToClaim               = coreerrors.New(coreerrors.ErrState, "nothing_to_claim", "vault: nothing to claim")
	ErrVaultInsolvent               = coreerrors.New(coreerrors.ErrState, "vault_insolvent", "vault: shares outstanding with no backing assets")
	ErrNoRewardRecipient            = coreerrors.New(coreerrors.ErrState, "no_reward_recipient", "vault: no shares outstanding and no treasury to receive rewards")
	ErrLossExceedsStake             = coreerrors.New(coreerrors.ErrState, "loss_exceeds_stake", "vault: reported loss exceeds total staked")

	ErrOverflow  = coreerrors.New(coreerrors.ErrArithmetic, "overflow", "vault: arithmetic overflow")
	ErrUnderflow = coreerrors.New(coreerrors.ErrArithmetic, "underflow", "vault: arithmetic underflow")
)
