// core/genesis/spec_test.go
package genesis

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stakevault/core/state"
	"stakevault/crypto"
	"stakevault/native/vault"
	"stakevault/native/whitelist"
	"stakevault/storage"
)

type genesisAddrs struct {
	owner, treasury, agent, alice crypto.Address
	valA, valB                    crypto.Address
}

func testAddrs() genesisAddrs {
	return genesisAddrs{
		owner:    crypto.DeriveAddress(crypto.AccountPrefix, "owner"),
		treasury: crypto.DeriveAddress(crypto.AccountPrefix, "treasury"),
		agent:    crypto.DeriveAddress(crypto.AccountPrefix, "agent"),
		alice:    crypto.DeriveAddress(crypto.AccountPrefix, "alice"),
		valA:     crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-a"),
		valB:     crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-b"),
	}
}

func sampleGenesis(a genesisAddrs) string {
	return fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
owner: %s
treasury: %s
params:
  treasuryFeeBps: 500
  distributionFeeBps: 100
  minDeposit: "2000000000000000000"
  unbondingPeriod: 72h
validators:
  - address: %s
    disabled: true
  - address: %s
    moniker: second
agents:
  - %s
whitelist:
  - %s
alloc:
  %s: "50000000000000000000"
reserve: "1000"
`, a.owner, a.treasury, a.valA, a.valB, a.agent, a.alice, a.alice)
}

func TestLoadGenesisSpecAndBuildGenesis(t *testing.T) {
	a := testAddrs()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(sampleGenesis(a)), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	spec, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if !spec.GenesisTimestamp().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected genesis time %s", spec.GenesisTimestamp())
	}

	manager := state.NewManager(storage.NewMemDB())
	root, err := BuildGenesisFromSpec(spec, manager)
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	if len(root) == 0 {
		t.Fatalf("expected a state root")
	}

	st, err := manager.VaultState()
	if err != nil {
		t.Fatalf("vault state: %v", err)
	}
	if !st.Owner.Equal(a.owner) || !st.Params.Treasury.Equal(a.treasury) {
		t.Fatalf("owner or treasury not applied")
	}
	if st.Params.TreasuryFeeBps != 500 || st.Params.DistributionFeeBps != 100 {
		t.Fatalf("fees not applied: %+v", st.Params)
	}
	if st.Params.UnbondingPeriod != 72*time.Hour {
		t.Fatalf("unexpected unbonding period %s", st.Params.UnbondingPeriod)
	}
	if st.Params.MinDeposit.Cmp(new(big.Int).Mul(big.NewInt(2), vault.OneUnit)) != 0 {
		t.Fatalf("unexpected min deposit %s", st.Params.MinDeposit)
	}
	if st.Reserve.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected reserve %s", st.Reserve)
	}
	// The first validator is disabled, so the second becomes the default.
	if !st.Params.DefaultValidator.Equal(a.valB) {
		t.Fatalf("expected validator-b as default, got %s", st.Params.DefaultValidator)
	}
	valA, ok, err := manager.GetValidator(a.valA)
	if err != nil || !ok {
		t.Fatalf("validator-a missing: %v", err)
	}
	if valA.Enabled() {
		t.Fatalf("validator-a should be disabled")
	}

	status, err := manager.UserStatus(a.alice)
	if err != nil || status != whitelist.StatusWhitelisted {
		t.Fatalf("alice not whitelisted: %v %v", status, err)
	}
	isAgent, err := manager.IsWhitelistAgent(a.agent)
	if err != nil || !isAgent {
		t.Fatalf("agent not registered: %v", err)
	}
	acc, err := manager.GetAccount(a.alice)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Base.Cmp(new(big.Int).Mul(big.NewInt(50), vault.OneUnit)) != 0 {
		t.Fatalf("unexpected alice balance %s", acc.Base)
	}
	version, ok, err := manager.StateVersion()
	if err != nil || !ok || version != state.StateVersion {
		t.Fatalf("state version not recorded")
	}

	if _, err := BuildGenesisFromSpec(spec, manager); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestGenesisIsDeterministic(t *testing.T) {
	a := testAddrs()
	raw := []byte(sampleGenesis(a))
	var roots [][]byte
	for i := 0; i < 2; i++ {
		spec, err := ParseGenesisSpec(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		root, err := BuildGenesisFromSpec(spec, state.NewManager(storage.NewMemDB()))
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		roots = append(roots, root)
	}
	if string(roots[0]) != string(roots[1]) {
		t.Fatalf("genesis roots differ")
	}
}

func TestParseGenesisSpecRejectsInvalid(t *testing.T) {
	a := testAddrs()
	base := sampleGenesis(a)
	cases := map[string]string{
		"unknown field":      base + "bogus: true\n",
		"missing time":       strings.Replace(base, `genesisTime: "2024-01-01T00:00:00Z"`, `genesisTime: ""`, 1),
		"fee too large":      strings.Replace(base, "treasuryFeeBps: 500", "treasuryFeeBps: 10000", 1),
		"min deposit small":  strings.Replace(base, `minDeposit: "2000000000000000000"`, `minDeposit: "5"`, 1),
		"bad period":         strings.Replace(base, "unbondingPeriod: 72h", "unbondingPeriod: soon", 1),
		"validator as owner": strings.Replace(base, "owner: "+a.owner.String(), "owner: "+a.valA.String(), 1),
		"negative reserve":   strings.Replace(base, `reserve: "1000"`, `reserve: "-1"`, 1),
		"disabled default":   base + "defaultValidator: " + a.valA.String() + "\n",
		"owner as agent":     strings.Replace(base, "agents:\n  - "+a.agent.String(), "agents:\n  - "+a.owner.String(), 1),
	}
	for name, doc := range cases {
		if _, err := ParseGenesisSpec([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaultOwnerFillsMissingOwner(t *testing.T) {
	a := testAddrs()
	operator := crypto.DeriveAddress(crypto.AccountPrefix, "operator")
	ownerless := strings.Replace(sampleGenesis(a), "owner: "+a.owner.String()+"\n", "", 1)

	if _, err := ParseGenesisSpec([]byte(ownerless)); err == nil {
		t.Fatalf("expected missing owner to fail without a default")
	}
	spec, err := ParseGenesisSpec([]byte(ownerless), WithDefaultOwner(operator))
	if err != nil {
		t.Fatalf("parse with default owner: %v", err)
	}
	if !spec.owner.Equal(operator) || spec.Owner != operator.String() {
		t.Fatalf("expected operator as owner, got %s", spec.Owner)
	}

	spec, err = ParseGenesisSpec([]byte(sampleGenesis(a)), WithDefaultOwner(operator))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !spec.owner.Equal(a.owner) {
		t.Fatalf("document owner must win over the default, got %s", spec.owner)
	}
}
