package vault

import (
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

var (
	basisPoints = big.NewInt(10_000)
	wad         = big.NewInt(1_000_000_000_000_000_000)

	// OneUnit is one whole base-asset token (18 decimals). It is the floor
	// for deposits and allocations.
	OneUnit = big.NewInt(1_000_000_000_000_000_000)

	// ShareScalar is the number of share units minted per base unit at the
	// bootstrap price. The extra precision keeps conversion error below one
	// base unit for any realistic share price.
	ShareScalar = big.NewInt(1_000_000_000)
)

const (
	// MaxFeeBps is the exclusive upper bound for fee parameters.
	MaxFeeBps uint64 = 10_000

	DefaultUnbondingPeriod = 21 * 24 * time.Hour
)

// Price is an exact rational share price expressed as base units per share
// unit.
type Price struct {
	Num   *big.Int
	Denom *big.Int
}

// BootstrapPrice is the price used while no shares are outstanding: one base
// unit per ShareScalar share units, displayed as 1.0.
func BootstrapPrice() Price {
	return Price{Num: big.NewInt(1), Denom: new(big.Int).Set(ShareScalar)}
}

func priceOf(staked, shares *big.Int) Price {
	if shares == nil || shares.Sign() == 0 {
		return BootstrapPrice()
	}
	return Price{Num: cloneAmount(staked), Denom: new(big.Int).Set(shares)}
}

func (p Price) Clone() Price {
	return Price{Num: cloneAmount(p.Num), Denom: cloneAmount(p.Denom)}
}

// Valid reports whether the price has a positive denominator.
func (p Price) Valid() bool {
	return p.Num != nil && p.Denom != nil && p.Denom.Sign() > 0 && p.Num.Sign() >= 0
}

// Cmp compares two prices by cross multiplication.
func (p Price) Cmp(other Price) int {
	left := new(big.Int).Mul(p.Num, other.Denom)
	right := new(big.Int).Mul(other.Num, p.Denom)
	return left.Cmp(right)
}

// Wad renders the price as an 18-decimal fixed-point number of base tokens
// per whole receipt token.
func (p Price) Wad() *big.Int {
	if !p.Valid() {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(p.Num, ShareScalar)
	out.Mul(out, wad)
	return out.Quo(out, p.Denom)
}

func (p Price) String() string {
	return FormatWad(p.Wad())
}

// FormatWad renders an 18-decimal fixed-point value.
func FormatWad(v *big.Int) string {
	if v == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(v, wad, new(big.Int))
	frac := r.String()
	frac = strings.Repeat("0", 18-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return q.String()
	}
	return q.String() + "." + frac
}

// toShares converts base units to share units at p, rounding down.
func toShares(amount *big.Int, p Price) (*big.Int, error) {
	if p.Num.Sign() == 0 {
		return nil, ErrVaultInsolvent
	}
	return mulDiv(amount, p.Denom, p.Num)
}

// toAssets converts share units to base units at p, returning the truncated
// and the rounded-up amounts.
func toAssets(shares *big.Int, p Price) (floor, ceil *big.Int, err error) {
	product := new(big.Int).Mul(shares, p.Num)
	floor, rem := new(big.Int).QuoRem(product, p.Denom, new(big.Int))
	ceil = new(big.Int).Set(floor)
	if rem.Sign() != 0 {
		ceil.Add(ceil, big.NewInt(1))
	}
	if err := bounded(ceil); err != nil {
		return nil, nil, err
	}
	return floor, ceil, nil
}

// bpsOf returns amount * bps / 10000 rounded down.
func bpsOf(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, basisPoints)
}

// mulDiv returns floor(a*b/c). Intermediates are unbounded; the result must
// fit in 256 bits.
func mulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, ErrOverflow
	}
	out := new(big.Int).Mul(a, b)
	out.Quo(out, c)
	if err := bounded(out); err != nil {
		return nil, err
	}
	return out, nil
}

func bounded(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrUnderflow
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrOverflow
	}
	return nil
}

// add returns a+b, failing when the sum leaves the 256-bit range.
func add(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

// sub returns a-b, failing instead of wrapping below zero.
func sub(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrUnderflow
	}
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return diff.ToBig(), nil
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
