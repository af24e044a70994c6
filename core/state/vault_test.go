package state

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakevault/core/types"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
	"stakevault/native/vault"
	"stakevault/native/whitelist"
	"stakevault/storage"
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), vault.OneUnit)
}

type vaultHarness struct {
	manager   *Manager
	engine    *vault.Engine
	gate      *whitelist.Engine
	owner     crypto.Address
	validator crypto.Address
	clock     time.Time
}

func newVaultHarness(t *testing.T, db storage.Database) *vaultHarness {
	t.Helper()
	h := &vaultHarness{
		manager:   NewManager(db),
		owner:     crypto.DeriveAddress(crypto.AccountPrefix, "owner"),
		validator: crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-a"),
		clock:     time.Unix(1_700_000_000, 0),
	}
	h.engine = vault.NewEngine()
	h.engine.SetState(h.manager)
	h.engine.SetPauses(h.manager)
	h.engine.SetNowFunc(func() time.Time { return h.clock })
	h.gate = whitelist.NewEngine()
	h.gate.SetState(h.manager)
	h.gate.SetOwner(h.engine)
	h.engine.SetWhitelist(h.gate)
	return h
}

func (h *vaultHarness) bootstrap(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.PutVaultState(vault.NewState(h.owner)))
	require.NoError(t, h.engine.AddValidator(h.owner, h.validator))
	require.NoError(t, h.engine.SetTreasury(h.owner, crypto.DeriveAddress(crypto.AccountPrefix, "treasury")))
}

func (h *vaultHarness) admit(t *testing.T, addr crypto.Address, base *big.Int) {
	t.Helper()
	require.NoError(t, h.gate.WhitelistUser(h.owner, addr))
	acc, err := h.manager.GetAccount(addr)
	require.NoError(t, err)
	acc.Base.Add(acc.Base, base)
	require.NoError(t, h.manager.PutAccount(addr, acc))
}

func TestVaultStateRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	empty, err := m.VaultState()
	require.NoError(t, err)
	require.True(t, empty.Owner.IsZero())
	require.Equal(t, 0, empty.Params.MinDeposit.Cmp(vault.OneUnit))

	owner := crypto.DeriveAddress(crypto.AccountPrefix, "owner")
	st := vault.NewState(owner)
	st.TotalStaked = tokens(12)
	st.TotalShares = new(big.Int).Mul(tokens(10), vault.ShareScalar)
	st.Reserve = big.NewInt(3)
	st.Params.TreasuryFeeBps = 250
	st.Params.UnbondingPeriod = 48 * time.Hour
	st.Params.DefaultValidator = crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-a")
	st.NextUnbonding = 7
	require.NoError(t, m.PutVaultState(st))

	got, err := m.VaultState()
	require.NoError(t, err)
	require.True(t, got.Owner.Equal(owner))
	require.Equal(t, crypto.ValidatorPrefix, got.Params.DefaultValidator.Prefix())
	require.Equal(t, 0, got.TotalStaked.Cmp(st.TotalStaked))
	require.Equal(t, 0, got.TotalShares.Cmp(st.TotalShares))
	require.Equal(t, 0, got.Reserve.Cmp(big.NewInt(3)))
	require.Equal(t, uint64(250), got.Params.TreasuryFeeBps)
	require.Equal(t, 48*time.Hour, got.Params.UnbondingPeriod)
	require.True(t, got.Params.Treasury.IsZero())
	require.Equal(t, uint64(7), got.NextUnbonding)
}

func TestRegistryIndexes(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	b := crypto.DeriveAddress(crypto.ValidatorPrefix, "b")
	a := crypto.DeriveAddress(crypto.ValidatorPrefix, "a")
	for _, addr := range []crypto.Address{b, a, b} {
		require.NoError(t, m.PutValidator(&vault.Validator{Address: addr, Status: vault.ValidatorEnabled, Delegated: big.NewInt(1), Unbonding: big.NewInt(0)}))
	}
	ids, err := m.ValidatorIDs()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Negative(t, ids[0].Compare(ids[1]))

	d := crypto.DeriveAddress(crypto.AccountPrefix, "distributor")
	r1 := crypto.DeriveAddress(crypto.AccountPrefix, "r1")
	r2 := crypto.DeriveAddress(crypto.AccountPrefix, "r2")
	for _, r := range []crypto.Address{r2, r1} {
		require.NoError(t, m.PutAllocation(&vault.Allocation{Distributor: d, Recipient: r, Amount: big.NewInt(5), Price: vault.BootstrapPrice()}))
	}
	recipients, err := m.AllocationRecipients(d)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	require.True(t, recipients[0].Equal(r2))

	require.NoError(t, m.DeleteAllocation(d, r2))
	recipients, err = m.AllocationRecipients(d)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	require.True(t, recipients[0].Equal(r1))
	_, ok, err := m.GetAllocation(d, r2)
	require.NoError(t, err)
	require.False(t, ok)

	distributors, err := m.Distributors()
	require.NoError(t, err)
	require.Len(t, distributors, 1)

	owner := crypto.DeriveAddress(crypto.AccountPrefix, "holder")
	require.NoError(t, m.PutUnbonding(&vault.Unbonding{ID: 4, Owner: owner, Validator: a, Amount: big.NewInt(9), Owed: big.NewInt(9), ReleaseAt: 100}))
	entry, ok, err := m.GetUnbonding(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, entry.IsClaim())
	require.Equal(t, int64(100), entry.ReleaseAt)
	require.Error(t, m.PutUnbonding(&vault.Unbonding{ID: 5, ReleaseAt: -1}))
}

func TestIndexesWrittenOnFirstStoreOnly(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	holder := crypto.DeriveAddress(crypto.AccountPrefix, "holder")
	for i := int64(1); i <= 3; i++ {
		before := m.Snapshot()
		require.NoError(t, m.PutAccount(holder, &types.Account{Base: big.NewInt(i), Shares: big.NewInt(i)}))
		if i == 1 {
			require.Equal(t, before+2, m.Snapshot(), "first store writes record and index")
		} else {
			require.Equal(t, before+1, m.Snapshot(), "updates write the record only")
		}
	}
	holders, err := m.Accounts()
	require.NoError(t, err)
	require.Len(t, holders, 1)

	d := crypto.DeriveAddress(crypto.AccountPrefix, "distributor")
	r1 := crypto.DeriveAddress(crypto.AccountPrefix, "r1")
	r2 := crypto.DeriveAddress(crypto.AccountPrefix, "r2")
	put := func(r crypto.Address, amt int64) int {
		before := m.Snapshot()
		require.NoError(t, m.PutAllocation(&vault.Allocation{Distributor: d, Recipient: r, Amount: big.NewInt(amt), Price: vault.BootstrapPrice()}))
		return m.Snapshot() - before
	}
	require.Equal(t, 3, put(r1, 5), "new distributor writes record, recipients and distributors")
	require.Equal(t, 1, put(r1, 7))
	require.Equal(t, 2, put(r2, 1), "new recipient skips the distributor index")
	require.Equal(t, 1, put(r2, 4))

	require.NoError(t, m.DeleteAllocation(d, r1))
	require.NoError(t, m.DeleteAllocation(d, r2))
	put(r1, 2)
	recipients, err := m.AllocationRecipients(d)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	distributors, err := m.Distributors()
	require.NoError(t, err)
	require.Len(t, distributors, 1)
}

func TestWhitelistGatesOverManager(t *testing.T) {
	h := newVaultHarness(t, storage.NewMemDB())
	h.bootstrap(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	agent := crypto.DeriveAddress(crypto.AccountPrefix, "agent")

	_, err := h.engine.Deposit(alice, tokens(1), crypto.Address{})
	require.True(t, errors.Is(err, nativecommon.ErrNotWhitelisted), "got %v", err)

	require.NoError(t, h.gate.AddAgent(h.owner, agent))
	agents, err := h.manager.WhitelistAgents()
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.NoError(t, h.gate.WhitelistUser(agent, alice))

	acc := types.NewAccount()
	acc.Base.Set(tokens(5))
	require.NoError(t, h.manager.PutAccount(alice, acc))
	_, err = h.engine.Deposit(alice, tokens(5), crypto.Address{})
	require.NoError(t, err)

	require.NoError(t, h.engine.Pause(h.owner))
	require.True(t, h.manager.IsPaused(vault.ModuleName()))
	_, err = h.engine.Withdraw(alice, big.NewInt(1), crypto.Address{})
	require.True(t, errors.Is(err, nativecommon.ErrModulePaused), "got %v", err)
	require.NoError(t, h.engine.Unpause(h.owner))

	require.NoError(t, h.gate.RemoveAgent(h.owner, agent))
	agents, err = h.manager.WhitelistAgents()
	require.NoError(t, err)
	require.Empty(t, agents)

	require.NoError(t, h.gate.BlacklistUser(h.owner, alice))
	require.False(t, h.gate.IsWhitelisted(alice))
	require.NoError(t, h.gate.ClearUser(h.owner, alice))
	status, err := h.manager.UserStatus(alice)
	require.NoError(t, err)
	require.Equal(t, whitelist.StatusNone, status)
}

func TestVaultLifecyclePersists(t *testing.T) {
	path := t.TempDir()
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	h := newVaultHarness(t, db)
	h.bootstrap(t)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	h.admit(t, alice, tokens(100))

	shares, err := h.engine.Deposit(alice, tokens(100), crypto.Address{})
	require.NoError(t, err)
	_, err = h.engine.Allocate(alice, bob, tokens(40))
	require.NoError(t, err)
	_, err = h.engine.CompoundRewards(h.owner, []vault.RewardReport{{Validator: h.validator, Amount: tokens(10)}})
	require.NoError(t, err)
	half := new(big.Int).Quo(shares, big.NewInt(2))
	res, err := h.engine.Withdraw(alice, half, crypto.Address{})
	require.NoError(t, err)
	require.NotZero(t, res.ClaimID)

	root, err := h.manager.Commit()
	require.NoError(t, err)
	before, err := h.engine.Info()
	require.NoError(t, err)
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	h2 := newVaultHarness(t, db)
	reopened, err := h2.manager.Root()
	require.NoError(t, err)
	require.Equal(t, root, reopened)

	after, err := h2.engine.Info()
	require.NoError(t, err)
	require.Equal(t, 0, before.Price.Cmp(after.Price))
	require.Equal(t, 0, before.TotalStaked.Cmp(after.TotalStaked))

	entry, err := h2.engine.Allocation(alice, bob)
	require.NoError(t, err)
	require.Equal(t, 0, entry.Amount.Cmp(tokens(40)))
	claims, err := h2.engine.Claims(alice)
	require.NoError(t, err)
	require.Len(t, claims, 1)

	h2.clock = h.clock.Add(vault.DefaultUnbondingPeriod)
	processed, err := h2.engine.ProcessUnbonding()
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	paid, err := h2.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, 0, paid.Cmp(res.Amount))
}

func TestDistributeAllRevertsFailedEntries(t *testing.T) {
	h := newVaultHarness(t, storage.NewMemDB())
	h.bootstrap(t)
	carol := crypto.DeriveAddress(crypto.AccountPrefix, "carol")
	bob := crypto.DeriveAddress(crypto.AccountPrefix, "bob")
	dave := crypto.DeriveAddress(crypto.AccountPrefix, "dave")
	h.admit(t, carol, tokens(110))

	_, err := h.engine.Deposit(carol, tokens(100), crypto.Address{})
	require.NoError(t, err)
	for _, r := range []crypto.Address{bob, dave} {
		_, err := h.engine.Allocate(carol, r, tokens(50))
		require.NoError(t, err)
	}
	_, err = h.engine.CompoundRewards(h.owner, []vault.RewardReport{{Validator: h.validator, Amount: tokens(20)}})
	require.NoError(t, err)

	results, err := h.engine.DistributeAll(carol, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.True(t, errors.Is(results[1].Err, vault.ErrInsufficientBalance), "got %v", results[1].Err)

	daveAcc, err := h.manager.GetAccount(dave)
	require.NoError(t, err)
	require.Zero(t, daveAcc.Base.Sign())
	entry, err := h.engine.Allocation(carol, dave)
	require.NoError(t, err)
	require.Equal(t, 0, entry.Price.Cmp(vault.BootstrapPrice()))
}
