package core

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	coreerrors "stakevault/core/errors"
	"stakevault/crypto"
)

// Query names served by Node.Query.
const (
	QuerySharePrice          = "share_price"
	QueryTotalStaked         = "total_staked"
	QueryTotalShares         = "total_shares"
	QueryAllocation          = "allocation"
	QueryAllocations         = "allocations"
	QueryTotalAllocated      = "total_allocated"
	QueryDistributionAmounts = "distribution_amounts"
	QueryValidator           = "validator"
	QueryValidators          = "validators"
	QueryAccount             = "account"
	QueryMaxWithdraw         = "max_withdraw"
	QueryClaims              = "claims"
	QueryVaultInfo           = "vault_info"
	QueryUserStatus          = "user_status"
	QueryAgents              = "agents"
	QueryConvertToShares     = "convert_to_shares"
	QueryConvertToAssets     = "convert_to_assets"
)

var (
	ErrQueryNotSupported = coreerrors.New(coreerrors.ErrValidation, "query_not_supported", "core: query not supported")
	ErrQueryParam        = coreerrors.New(coreerrors.ErrValidation, "invalid_query_param", "core: invalid query parameter")
)

type queryHandler func(n *Node, params queryParams) (interface{}, error)

type queryParams map[string]string

func (p queryParams) address(key string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return crypto.Address{}, fmt.Errorf("%w: %s required", ErrQueryParam, key)
	}
	addr, err := crypto.ParseAddress(raw, prefix)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", ErrQueryParam, key, err)
	}
	return addr, nil
}

func (p queryParams) optionalAddress(key string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	if strings.TrimSpace(p[key]) == "" {
		return crypto.Address{}, nil
	}
	return p.address(key, prefix)
}

func (p queryParams) amount(key string) (*big.Int, error) {
	raw := strings.TrimSpace(p[key])
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrQueryParam, key)
	}
	return v, nil
}

var queryHandlers = map[string]queryHandler{
	QuerySharePrice: func(n *Node, _ queryParams) (interface{}, error) {
		price, err := n.vault.Price()
		if err != nil {
			return nil, err
		}
		return newPriceView(price), nil
	},
	QueryTotalStaked: func(n *Node, _ queryParams) (interface{}, error) {
		v, err := n.vault.TotalStaked()
		if err != nil {
			return nil, err
		}
		return AmountView{Amount: v.String()}, nil
	},
	QueryTotalShares: func(n *Node, _ queryParams) (interface{}, error) {
		v, err := n.vault.TotalShares()
		if err != nil {
			return nil, err
		}
		return SharesView{Shares: v.String()}, nil
	},
	QueryAllocation: func(n *Node, p queryParams) (interface{}, error) {
		distributor, err := p.address("distributor", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		recipient, err := p.address("recipient", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		entry, err := n.vault.Allocation(distributor, recipient)
		if err != nil {
			return nil, err
		}
		return n.allocationView(entry)
	},
	QueryAllocations: func(n *Node, p queryParams) (interface{}, error) {
		distributor, err := p.address("distributor", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		entries, err := n.vault.Allocations(distributor)
		if err != nil {
			return nil, err
		}
		price, err := n.vault.Price()
		if err != nil {
			return nil, err
		}
		out := make([]AllocationView, 0, len(entries))
		for _, entry := range entries {
			out = append(out, newAllocationView(entry, price))
		}
		return out, nil
	},
	QueryTotalAllocated: func(n *Node, p queryParams) (interface{}, error) {
		distributor, err := p.address("distributor", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		amount, price, err := n.vault.TotalAllocated(distributor)
		if err != nil {
			return nil, err
		}
		return TotalAllocatedView{
			Distributor: distributor.String(),
			Amount:      amount.String(),
			Price:       newPriceView(price),
		}, nil
	},
	QueryDistributionAmounts: func(n *Node, p queryParams) (interface{}, error) {
		distributor, err := p.address("distributor", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		recipient, err := p.optionalAddress("recipient", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		amounts, err := n.vault.DistributionAmounts(distributor, recipient)
		if err != nil {
			return nil, err
		}
		return newDistributionView(recipient, amounts), nil
	},
	QueryValidator: func(n *Node, p queryParams) (interface{}, error) {
		addr, err := p.address("validator", crypto.ValidatorPrefix)
		if err != nil {
			return nil, err
		}
		val, err := n.vault.Validator(addr)
		if err != nil {
			return nil, err
		}
		return newValidatorView(val), nil
	},
	QueryValidators: func(n *Node, _ queryParams) (interface{}, error) {
		vals, err := n.vault.Validators()
		if err != nil {
			return nil, err
		}
		out := make([]ValidatorView, 0, len(vals))
		for _, val := range vals {
			out = append(out, newValidatorView(val))
		}
		return out, nil
	},
	QueryAccount: func(n *Node, p queryParams) (interface{}, error) {
		addr, err := p.address("address", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		acc, err := n.vault.Account(addr)
		if err != nil {
			return nil, err
		}
		assets, err := n.vault.ConvertToAssets(acc.Shares)
		if err != nil {
			return nil, err
		}
		return newAccountView(addr, acc, assets), nil
	},
	QueryMaxWithdraw: func(n *Node, p queryParams) (interface{}, error) {
		addr, err := p.address("address", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		v, err := n.vault.MaxWithdraw(addr)
		if err != nil {
			return nil, err
		}
		return AmountView{Amount: v.String()}, nil
	},
	QueryClaims: func(n *Node, p queryParams) (interface{}, error) {
		addr, err := p.address("address", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		claims, err := n.vault.Claims(addr)
		if err != nil {
			return nil, err
		}
		out := make([]UnbondingView, 0, len(claims))
		for _, c := range claims {
			out = append(out, newUnbondingView(c))
		}
		return out, nil
	},
	QueryVaultInfo: func(n *Node, _ queryParams) (interface{}, error) {
		info, err := n.vault.Info()
		if err != nil {
			return nil, err
		}
		return newVaultInfoView(info), nil
	},
	QueryUserStatus: func(n *Node, p queryParams) (interface{}, error) {
		addr, err := p.address("address", crypto.AccountPrefix)
		if err != nil {
			return nil, err
		}
		status, err := n.whitelist.Status(addr)
		if err != nil {
			return nil, err
		}
		agent, err := n.whitelist.IsAgent(addr)
		if err != nil {
			return nil, err
		}
		return newUserStatusView(addr, status, agent), nil
	},
	QueryAgents: func(n *Node, _ queryParams) (interface{}, error) {
		agents, err := n.whitelist.Agents()
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(agents))
		for _, a := range agents {
			out = append(out, a.String())
		}
		return out, nil
	},
	QueryConvertToShares: func(n *Node, p queryParams) (interface{}, error) {
		amount, err := p.amount("amount")
		if err != nil {
			return nil, err
		}
		shares, err := n.vault.ConvertToShares(amount)
		if err != nil {
			return nil, err
		}
		return SharesView{Shares: shares.String()}, nil
	},
	QueryConvertToAssets: func(n *Node, p queryParams) (interface{}, error) {
		shares, err := p.amount("shares")
		if err != nil {
			return nil, err
		}
		assets, err := n.vault.ConvertToAssets(shares)
		if err != nil {
			return nil, err
		}
		return AmountView{Amount: assets.String()}, nil
	},
}

// Query answers a read-only question about committed state.
func (n *Node) Query(ctx context.Context, name string, params map[string]string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handler, ok := queryHandlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotSupported, name)
	}
	_, span := n.tracer.Start(ctx, "vault.query")
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()
	return handler(n, queryParams(params))
}

// SupportedQueries lists every query name Query accepts.
func SupportedQueries() []string {
	names := make([]string, 0, len(queryHandlers))
	for name := range queryHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
