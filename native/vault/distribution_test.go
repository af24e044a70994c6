package vault

import (
	"errors"
	"math/big"
	"testing"

	"stakevault/core/events"
	"stakevault/crypto"
)

type distributionFixture struct {
	*fixture
	distributor crypto.Address
	recipient   crypto.Address
}

// newDistributionFixture allocates 50 at price 1.0 and lifts the price to 1.2.
func newDistributionFixture(t *testing.T) *distributionFixture {
	t.Helper()
	f := newFixture(t)
	d := &distributionFixture{
		fixture:     f,
		distributor: crypto.DeriveAddress(crypto.AccountPrefix, "carol"),
		recipient:   crypto.DeriveAddress(crypto.AccountPrefix, "bob"),
	}
	f.deposit(t, d.distributor, units(100))
	if _, err := f.engine.Allocate(d.distributor, d.recipient, units(50)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	f.reward(t, units(20))
	return d
}

func TestDistributeRewardsInsufficientBalance(t *testing.T) {
	d := newDistributionFixture(t)
	before, _ := d.engine.Allocation(d.distributor, d.recipient)
	reward, _ := d.engine.Reward(d.distributor, d.recipient)
	if reward.Cmp(units(10)) != 0 {
		t.Fatalf("expected reward 10, got %s", reward)
	}

	d.fund(t, d.distributor, units(5))
	if _, err := d.engine.DistributeRewards(d.distributor, d.recipient, false); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	after, _ := d.engine.Allocation(d.distributor, d.recipient)
	if after.Price.Cmp(before.Price) != 0 {
		t.Fatalf("failed distribution moved recorded price to %s", after.Price)
	}
	if d.balances(t, d.recipient).Base.Sign() != 0 {
		t.Fatalf("recipient paid on failure")
	}
}

func TestDistributeRewardsInBaseAsset(t *testing.T) {
	d := newDistributionFixture(t)
	d.fund(t, d.distributor, units(10))

	preview, err := d.engine.DistributionAmounts(d.distributor, d.recipient)
	if err != nil {
		t.Fatalf("distribution amounts: %v", err)
	}
	paid, err := d.engine.DistributeRewards(d.distributor, d.recipient, false)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if paid.Base.Cmp(preview.Base) != 0 || paid.Shares.Sign() != 0 {
		t.Fatalf("unexpected payout base=%s shares=%s", paid.Base, paid.Shares)
	}
	// The base payout is the truncated value of the reward shares.
	dust := new(big.Int).Sub(units(10), paid.Base)
	if dust.Sign() < 0 || dust.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("expected a payout of 10 less dust, got %s", paid.Base)
	}
	if got := d.balances(t, d.recipient).Base; got.Cmp(paid.Base) != 0 {
		t.Fatalf("recipient received %s", got)
	}

	entry, _ := d.engine.Allocation(d.distributor, d.recipient)
	if entry.Price.Cmp(d.price(t)) != 0 {
		t.Fatalf("recorded price not advanced")
	}
	reward, _ := d.engine.Reward(d.distributor, d.recipient)
	if reward.Sign() != 0 {
		t.Fatalf("expected zero reward after distributing, got %s", reward)
	}
	d.checkLedger(t)
}

func TestDistributeRewardsInReceiptTokenTakesFee(t *testing.T) {
	d := newDistributionFixture(t)
	if err := d.engine.SetDistributionFee(d.owner, 1_000); err != nil {
		t.Fatalf("set distribution fee: %v", err)
	}
	held := d.balances(t, d.distributor).Shares

	paid, err := d.engine.DistributeRewards(d.distributor, d.recipient, true)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	gross := new(big.Int).Add(paid.Shares, paid.Fee)
	if paid.Fee.Cmp(bpsOf(gross, 1_000)) != 0 {
		t.Fatalf("fee %s is not 10%% of %s", paid.Fee, gross)
	}
	spent := new(big.Int).Sub(held, d.balances(t, d.distributor).Shares)
	if spent.Cmp(gross) != 0 {
		t.Fatalf("distributor spent %s, expected %s", spent, gross)
	}
	if got := d.balances(t, d.recipient).Shares; got.Cmp(paid.Shares) != 0 {
		t.Fatalf("recipient holds %s shares, expected %s", got, paid.Shares)
	}
	if got := d.balances(t, d.treasury).Shares; got.Cmp(paid.Fee) != 0 {
		t.Fatalf("treasury holds %s shares, expected %s", got, paid.Fee)
	}

	// Nothing accrued since; a second call is a no-op.
	again, err := d.engine.DistributeRewards(d.distributor, d.recipient, true)
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if again.Shares.Sign() != 0 || again.Fee.Sign() != 0 {
		t.Fatalf("expected empty second distribution")
	}
	d.checkLedger(t)
}

func TestDistributeRewardsAfterPriceDropIsNoop(t *testing.T) {
	d := newDistributionFixture(t)
	if _, err := d.engine.DistributeRewards(d.distributor, d.recipient, true); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	recorded, _ := d.engine.Allocation(d.distributor, d.recipient)
	if err := d.engine.ApplyLoss(d.owner, d.validator, units(12)); err != nil {
		t.Fatalf("apply loss: %v", err)
	}
	paid, err := d.engine.DistributeRewards(d.distributor, d.recipient, true)
	if err != nil {
		t.Fatalf("distribute after loss: %v", err)
	}
	if paid.Shares.Sign() != 0 || paid.Base.Sign() != 0 {
		t.Fatalf("expected nothing distributed below the recorded price")
	}
	after, _ := d.engine.Allocation(d.distributor, d.recipient)
	if after.Price.Cmp(recorded.Price) != 0 {
		t.Fatalf("recorded price moved down to %s", after.Price)
	}
	if _, err := d.engine.DistributeRewards(d.distributor, crypto.DeriveAddress(crypto.AccountPrefix, "nobody"), true); !errors.Is(err, ErrNoAllocation) {
		t.Fatalf("expected ErrNoAllocation, got %v", err)
	}
}

func TestDistributeAllPartialSuccess(t *testing.T) {
	f := newFixture(t)
	carol := crypto.DeriveAddress(crypto.AccountPrefix, "carol")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	dave := crypto.DeriveAddress(crypto.AccountPrefix, "dave")

	if _, err := f.engine.DistributeAll(carol, false); !errors.Is(err, ErrNoAllocations) {
		t.Fatalf("expected ErrNoAllocations, got %v", err)
	}
	f.deposit(t, crypto.DeriveAddress(crypto.AccountPrefix, "alice"), units(100))
	for _, r := range []crypto.Address{bob, dave} {
		if _, err := f.engine.Allocate(carol, r, units(50)); err != nil {
			t.Fatalf("allocate: %v", err)
		}
	}
	f.reward(t, units(20))
	start := f.price(t)

	// Enough base for exactly one of the two payouts.
	f.fund(t, carol, units(10))
	rec := &events.Recorder{}
	f.engine.SetEmitter(rec)
	results, err := f.engine.DistributeAll(carol, false)
	if err != nil {
		t.Fatalf("distribute all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil || !results[0].Recipient.Equal(bob) {
		t.Fatalf("expected bob paid first, got %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrInsufficientBalance) {
		t.Fatalf("expected dave to fail with ErrInsufficientBalance, got %v", results[1].Err)
	}
	if got := f.balances(t, bob).Base; got.Cmp(results[0].Base) != 0 {
		t.Fatalf("bob received %s", got)
	}
	if f.balances(t, dave).Base.Sign() != 0 {
		t.Fatalf("dave paid despite failure")
	}
	emitted := rec.Drain()
	if len(emitted) == 0 {
		t.Fatalf("expected events for bob's distribution")
	}
	for _, evt := range emitted {
		if evt.Type == events.TypeAllocationDistributed && evt.Attributes["recipient"] == dave.String() {
			t.Fatalf("reverted distribution left an event behind")
		}
	}
	bobEntry, _ := f.engine.Allocation(carol, bob)
	daveEntry, _ := f.engine.Allocation(carol, dave)
	if bobEntry.Price.Cmp(start) != 0 {
		t.Fatalf("bob's recorded price not advanced")
	}
	if daveEntry.Price.Cmp(start) == 0 {
		t.Fatalf("dave's recorded price advanced on failure")
	}
	pending, err := f.engine.DistributionAmounts(carol, crypto.Address{})
	if err != nil {
		t.Fatalf("distribution amounts: %v", err)
	}
	if pending.Base.Cmp(results[0].Base) != 0 {
		t.Fatalf("expected dave's reward still pending, got %s", pending.Base)
	}
	f.checkLedger(t)
}

func TestDistributionAmountsWithoutTreasuryChargesNoFee(t *testing.T) {
	f := newFixture(t)
	f.state.vault.Params.Treasury = crypto.Address{}
	f.state.vault.Params.DistributionFeeBps = 500
	entry := &Allocation{Amount: units(50), Price: Price{Num: units(100), Denom: new(big.Int).Mul(units(100), ShareScalar)}}
	current := Price{Num: units(120), Denom: new(big.Int).Mul(units(100), ShareScalar)}

	withFee, err := distributionAmounts(entry, current, 500)
	if err != nil {
		t.Fatalf("amounts: %v", err)
	}
	if withFee.Fee.Sign() == 0 {
		t.Fatalf("expected a fee at 5%%")
	}
	noFee, err := distributionAmounts(entry, current, 0)
	if err != nil {
		t.Fatalf("amounts: %v", err)
	}
	if noFee.Fee.Sign() != 0 || noFee.Shares.Cmp(new(big.Int).Add(withFee.Shares, withFee.Fee)) != 0 {
		t.Fatalf("fee-free split should keep the gross shares")
	}

	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	f.deposit(t, alice, units(100))
	if _, err := f.engine.Allocate(alice, bob, units(50)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	// The treasury is unset, so the reward mints no fee shares either.
	f.reward(t, units(20))
	amounts, err := f.engine.DistributionAmounts(alice, bob)
	if err != nil {
		t.Fatalf("distribution amounts: %v", err)
	}
	if amounts.Fee.Sign() != 0 {
		t.Fatalf("expected no fee without a treasury, got %s", amounts.Fee)
	}
}
