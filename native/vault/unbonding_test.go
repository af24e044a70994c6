package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"stakevault/crypto"
)

func TestClaimMaturity(t *testing.T) {
	f := newFixture(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	f.deposit(t, alice, units(10))

	res, err := f.engine.Withdraw(alice, new(big.Int).Mul(units(4), ShareScalar), crypto.Address{})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Immediate() {
		t.Fatalf("expected a delayed claim with an empty buffer")
	}
	if want := f.clock.Add(DefaultUnbondingPeriod).Unix(); res.ReleaseAt != want {
		t.Fatalf("expected release at %d, got %d", want, res.ReleaseAt)
	}
	if _, err := f.engine.Claim(alice); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}
	claims, err := f.engine.Claims(alice)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if len(claims) != 1 || claims[0].Matured || claims[0].ID != res.ClaimID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	f.clock = f.clock.Add(DefaultUnbondingPeriod - time.Second)
	if _, err := f.engine.Claim(alice); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim one second early, got %v", err)
	}
	f.clock = f.clock.Add(time.Second)
	paid, err := f.engine.Claim(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(units(4)) != 0 {
		t.Fatalf("expected 4 claimed, got %s", paid)
	}
	if claims, _ := f.engine.Claims(alice); len(claims) != 0 {
		t.Fatalf("expected claims cleared, got %d", len(claims))
	}
	if _, err := f.engine.Claim(alice); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim after paying out, got %v", err)
	}
	f.checkLedger(t)
}

func TestSlashedClaimsChargedToClaimants(t *testing.T) {
	f := newFixture(t)
	second := crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-b")
	if err := f.engine.AddValidator(f.owner, second); err != nil {
		t.Fatalf("add validator: %v", err)
	}
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	carol := crypto.DeriveAddress(crypto.AccountPrefix, "carol")
	aliceShares := f.deposit(t, alice, units(10))
	bobShares := f.deposit(t, bob, units(10))
	f.fund(t, carol, units(30))
	if _, err := f.engine.Deposit(carol, units(30), second); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.engine.Withdraw(alice, aliceShares, f.validator); err != nil {
		t.Fatalf("alice withdraw: %v", err)
	}
	if _, err := f.engine.Withdraw(bob, bobShares, f.validator); err != nil {
		t.Fatalf("bob withdraw: %v", err)
	}
	before := f.price(t)

	// validator-a only holds the two claims, so the whole loss lands on them.
	if err := f.engine.ApplyLoss(f.owner, f.validator, units(3)); err != nil {
		t.Fatalf("apply loss: %v", err)
	}
	if got := f.price(t); got.Cmp(before) != 0 {
		t.Fatalf("remaining holders repriced from %s to %s", before, got)
	}
	if f.state.vault.TotalStaked.Cmp(units(30)) != 0 {
		t.Fatalf("expected staked total untouched at 30, got %s", f.state.vault.TotalStaked)
	}
	if f.state.vault.PendingClaims.Cmp(units(17)) != 0 {
		t.Fatalf("expected 17 still owed to claimants, got %s", f.state.vault.PendingClaims)
	}
	f.checkLedger(t)

	f.clock = f.clock.Add(DefaultUnbondingPeriod)
	if f.state.vault.Buffer.Sign() != 0 {
		t.Fatalf("buffer must be empty at maturity")
	}
	half := new(big.Int).Quo(units(17), big.NewInt(2))
	for _, who := range []crypto.Address{bob, alice} {
		paid, err := f.engine.Claim(who)
		if err != nil {
			t.Fatalf("claim %s: %v", who, err)
		}
		if paid.Cmp(half) != 0 {
			t.Fatalf("expected %s claimed, got %s", half, paid)
		}
	}
	if f.state.vault.ClaimPool.Sign() != 0 || f.state.vault.PendingClaims.Sign() != 0 {
		t.Fatalf("claims not settled: pool=%s pending=%s", f.state.vault.ClaimPool, f.state.vault.PendingClaims)
	}
	f.checkLedger(t)
}

func TestSlashSplitsVaultAndClaimUnbonding(t *testing.T) {
	f := newFixture(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	f.deposit(t, alice, units(20))
	bobShares := f.deposit(t, bob, units(10))
	if _, err := f.engine.Withdraw(bob, bobShares, f.validator); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := f.engine.Undelegate(f.owner, f.validator, units(10)); err != nil {
		t.Fatalf("undelegate: %v", err)
	}

	// 10 from the delegation, then 6 split evenly between the vault-owned
	// and the claim-backed unbonding.
	if err := f.engine.ApplyLoss(f.owner, f.validator, units(16)); err != nil {
		t.Fatalf("apply loss: %v", err)
	}
	if f.state.vault.TotalStaked.Cmp(units(7)) != 0 {
		t.Fatalf("expected 7 staked, got %s", f.state.vault.TotalStaked)
	}
	if f.state.vault.PendingClaims.Cmp(units(7)) != 0 {
		t.Fatalf("expected 7 owed to bob, got %s", f.state.vault.PendingClaims)
	}
	f.checkLedger(t)

	f.clock = f.clock.Add(DefaultUnbondingPeriod)
	if _, err := f.engine.ProcessUnbonding(); err != nil {
		t.Fatalf("process unbonding: %v", err)
	}
	if f.state.vault.Buffer.Cmp(units(7)) != 0 {
		t.Fatalf("expected 7 released to the buffer, got %s", f.state.vault.Buffer)
	}
	paid, err := f.engine.Claim(bob)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(units(7)) != 0 {
		t.Fatalf("expected 7 claimed, got %s", paid)
	}
	f.checkLedger(t)
}

func TestSlashOnClaimsNotBoundByStakedTotal(t *testing.T) {
	f := newFixture(t)
	second := crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-b")
	if err := f.engine.AddValidator(f.owner, second); err != nil {
		t.Fatalf("add validator: %v", err)
	}
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	shares := f.deposit(t, alice, units(10))
	f.fund(t, bob, units(2))
	if _, err := f.engine.Deposit(bob, units(2), second); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.engine.Withdraw(alice, shares, f.validator); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := f.engine.ApplyLoss(f.owner, f.validator, units(5)); err != nil {
		t.Fatalf("loss on claim-backed unbonding larger than the staked total: %v", err)
	}
	if f.state.vault.TotalStaked.Cmp(units(2)) != 0 {
		t.Fatalf("expected bob's 2 untouched, got %s", f.state.vault.TotalStaked)
	}
	claims, _ := f.engine.Claims(alice)
	if len(claims) != 1 || claims[0].Owed.Cmp(units(5)) != 0 {
		t.Fatalf("expected alice to be owed 5, got %+v", claims)
	}
	f.checkLedger(t)
}

func TestProcessUnbondingKeepsQueueOrder(t *testing.T) {
	f := newFixture(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	f.deposit(t, alice, units(30))

	first, err := f.engine.Undelegate(f.owner, f.validator, units(1))
	if err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	f.clock = f.clock.Add(time.Hour)
	second, err := f.engine.Undelegate(f.owner, f.validator, units(2))
	if err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("unbonding ids must increase")
	}

	f.clock = time.Unix(first.ReleaseAt, 0)
	if n, err := f.engine.ProcessUnbonding(); err != nil || n != 1 {
		t.Fatalf("expected first entry released, got %d (%v)", n, err)
	}
	queue, _ := f.state.UnbondingQueue()
	if len(queue) != 1 || queue[0] != second.ID {
		t.Fatalf("unexpected queue %v", queue)
	}
	if f.state.vault.Buffer.Cmp(units(1)) != 0 {
		t.Fatalf("expected 1 in buffer, got %s", f.state.vault.Buffer)
	}
	if n, err := f.engine.ProcessUnbonding(); err != nil || n != 0 {
		t.Fatalf("expected nothing else to release, got %d (%v)", n, err)
	}
	f.checkLedger(t)
}
