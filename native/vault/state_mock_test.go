package vault

import (
	"math/big"
	"sort"
	"testing"
	"time"

	"stakevault/core/types"
	"stakevault/crypto"
)

type mockState struct {
	vault       *State
	accounts    map[string]*types.Account
	validators  map[string]*Validator
	allocations map[string]*Allocation
	allocOrder  map[string][]crypto.Address
	unbondings  map[uint64]*Unbonding
	queue       []uint64
	claims      map[string][]uint64
	paused      map[string]bool
	snapshots   []*mockState
}

func newMockState(owner crypto.Address) *mockState {
	return &mockState{
		vault:       NewState(owner),
		accounts:    make(map[string]*types.Account),
		validators:  make(map[string]*Validator),
		allocations: make(map[string]*Allocation),
		allocOrder:  make(map[string][]crypto.Address),
		unbondings:  make(map[uint64]*Unbonding),
		claims:      make(map[string][]uint64),
		paused:      make(map[string]bool),
	}
}

func key(addr crypto.Address) string { return string(addr.Bytes()) }

func allocKey(d, r crypto.Address) string { return key(d) + "/" + key(r) }

func (m *mockState) clone() *mockState {
	out := newMockState(m.vault.Owner)
	out.vault = m.vault.Clone()
	for k, v := range m.accounts {
		out.accounts[k] = v.Clone()
	}
	for k, v := range m.validators {
		out.validators[k] = v.Clone()
	}
	for k, v := range m.allocations {
		out.allocations[k] = v.Clone()
	}
	for k, v := range m.allocOrder {
		out.allocOrder[k] = append([]crypto.Address(nil), v...)
	}
	for k, v := range m.unbondings {
		out.unbondings[k] = v.Clone()
	}
	out.queue = append([]uint64(nil), m.queue...)
	for k, v := range m.claims {
		out.claims[k] = append([]uint64(nil), v...)
	}
	for k, v := range m.paused {
		out.paused[k] = v
	}
	return out
}

func (m *mockState) VaultState() (*State, error) { return m.vault.Clone(), nil }

func (m *mockState) PutVaultState(st *State) error {
	m.vault = st.Clone()
	return nil
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[key(addr)]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *mockState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[key(addr)] = account.Clone()
	return nil
}

func (m *mockState) GetValidator(addr crypto.Address) (*Validator, bool, error) {
	v, ok := m.validators[key(addr)]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) PutValidator(v *Validator) error {
	m.validators[key(v.Address)] = v.Clone()
	return nil
}

func (m *mockState) ValidatorIDs() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(m.validators))
	for _, v := range m.validators {
		out = append(out, v.Address)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

func (m *mockState) GetAllocation(d, r crypto.Address) (*Allocation, bool, error) {
	a, ok := m.allocations[allocKey(d, r)]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) PutAllocation(a *Allocation) error {
	k := allocKey(a.Distributor, a.Recipient)
	if _, ok := m.allocations[k]; !ok {
		m.allocOrder[key(a.Distributor)] = append(m.allocOrder[key(a.Distributor)], a.Recipient)
	}
	m.allocations[k] = a.Clone()
	return nil
}

func (m *mockState) DeleteAllocation(d, r crypto.Address) error {
	delete(m.allocations, allocKey(d, r))
	order := m.allocOrder[key(d)]
	kept := order[:0:0]
	for _, addr := range order {
		if !addr.Equal(r) {
			kept = append(kept, addr)
		}
	}
	m.allocOrder[key(d)] = kept
	return nil
}

func (m *mockState) AllocationRecipients(d crypto.Address) ([]crypto.Address, error) {
	return append([]crypto.Address(nil), m.allocOrder[key(d)]...), nil
}

func (m *mockState) GetUnbonding(id uint64) (*Unbonding, bool, error) {
	u, ok := m.unbondings[id]
	if !ok {
		return nil, false, nil
	}
	return u.Clone(), true, nil
}

func (m *mockState) PutUnbonding(u *Unbonding) error {
	m.unbondings[u.ID] = u.Clone()
	return nil
}

func (m *mockState) DeleteUnbonding(id uint64) error {
	delete(m.unbondings, id)
	return nil
}

func (m *mockState) UnbondingQueue() ([]uint64, error) {
	return append([]uint64(nil), m.queue...), nil
}

func (m *mockState) PutUnbondingQueue(ids []uint64) error {
	m.queue = append([]uint64(nil), ids...)
	return nil
}

func (m *mockState) ClaimIDs(owner crypto.Address) ([]uint64, error) {
	return append([]uint64(nil), m.claims[key(owner)]...), nil
}

func (m *mockState) PutClaimIDs(owner crypto.Address, ids []uint64) error {
	m.claims[key(owner)] = append([]uint64(nil), ids...)
	return nil
}

func (m *mockState) SetModulePaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.clone())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	saved := m.snapshots[id]
	snapshots := m.snapshots[:id]
	*m = *saved
	m.snapshots = snapshots
}

func newShareAccount(shares int64) *types.Account {
	acc := types.NewAccount()
	acc.Shares.SetInt64(shares)
	return acc
}

type allowAll struct{}

func (allowAll) IsWhitelisted(crypto.Address) bool { return true }

// units converts whole tokens to base units.
func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), OneUnit)
}

type fixture struct {
	engine    *Engine
	state     *mockState
	owner     crypto.Address
	treasury  crypto.Address
	validator crypto.Address
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner := crypto.DeriveAddress(crypto.AccountPrefix, "owner")
	f := &fixture{
		state:     newMockState(owner),
		owner:     owner,
		treasury:  crypto.DeriveAddress(crypto.AccountPrefix, "treasury"),
		validator: crypto.DeriveAddress(crypto.ValidatorPrefix, "validator-a"),
		clock:     time.Unix(1_700_000_000, 0),
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetPauses(f.state)
	f.engine.SetWhitelist(allowAll{})
	f.engine.SetNowFunc(func() time.Time { return f.clock })
	if err := f.engine.AddValidator(owner, f.validator); err != nil {
		t.Fatalf("add validator: %v", err)
	}
	if err := f.engine.SetTreasury(owner, f.treasury); err != nil {
		t.Fatalf("set treasury: %v", err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, addr crypto.Address, amount *big.Int) {
	t.Helper()
	acc, _ := f.state.GetAccount(addr)
	acc.Base.Add(acc.Base, amount)
	if err := f.state.PutAccount(addr, acc); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) deposit(t *testing.T, addr crypto.Address, amount *big.Int) *big.Int {
	t.Helper()
	f.fund(t, addr, amount)
	shares, err := f.engine.Deposit(addr, amount, crypto.Address{})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return shares
}

func (f *fixture) reward(t *testing.T, amount *big.Int) {
	t.Helper()
	if _, err := f.engine.CompoundRewards(f.owner, []RewardReport{{Validator: f.validator, Amount: amount}}); err != nil {
		t.Fatalf("compound rewards: %v", err)
	}
}

func (f *fixture) price(t *testing.T) Price {
	t.Helper()
	p, err := f.engine.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	return p
}

func (f *fixture) balances(t *testing.T, addr crypto.Address) *types.Account {
	t.Helper()
	acc, err := f.engine.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return acc
}

// checkLedger asserts the stake ledger balances against the vault totals.
func (f *fixture) checkLedger(t *testing.T) {
	t.Helper()
	st := f.state.vault
	left := new(big.Int).Add(st.TotalStaked, st.PendingClaims)
	left.Add(left, st.UnassignedLoss)
	right := new(big.Int).Add(st.Buffer, st.ClaimPool)
	for _, v := range f.state.validators {
		right.Add(right, v.Delegated)
		right.Add(right, v.Unbonding)
	}
	if left.Cmp(right) != 0 {
		t.Fatalf("ledger out of balance: staked+pending+loss=%s validators+buffer+pool=%s", left, right)
	}
	shares := big.NewInt(0)
	for _, acc := range f.state.accounts {
		shares.Add(shares, acc.Shares)
	}
	if shares.Cmp(st.TotalShares) != 0 {
		t.Fatalf("share supply %s != holder balances %s", st.TotalShares, shares)
	}
}
