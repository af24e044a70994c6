package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"stakevault/core/types"
	"stakevault/crypto"
	"stakevault/native/vault"
)

var (
	vaultStateKey       = []byte("vault/state")
	vaultValidatorIndex = []byte("vault/validators")
	vaultQueueKey       = []byte("vault/unbonding-queue")

	accountPrefix    = []byte("account/")
	validatorPrefix  = []byte("vault/validator/")
	allocationPrefix = []byte("vault/allocation/")
	allocationIndex  = []byte("vault/allocation-index/")
	distributorIndex = []byte("vault/distributors")
	unbondingPrefix  = []byte("vault/unbonding/")
	claimIndexPrefix = []byte("vault/claims/")
	accountIndexKey  = []byte("account/index")
)

type storedVault struct {
	TotalShares        *big.Int
	TotalStaked        *big.Int
	Buffer             *big.Int
	ClaimPool          *big.Int
	PendingClaims      *big.Int
	Reserve            *big.Int
	UnassignedLoss     *big.Int
	TreasuryFeeBps     uint64
	DistributionFeeBps uint64
	MinDeposit         *big.Int
	UnbondingSeconds   uint64
	Treasury           []byte
	DefaultValidator   []byte
	Owner              []byte
	PendingOwner       []byte
	NextUnbonding      uint64
}

type storedAccount struct {
	Base   *big.Int
	Shares *big.Int
}

type storedValidator struct {
	Address   []byte
	Status    uint8
	Delegated *big.Int
	Unbonding *big.Int
}

type storedAllocation struct {
	Distributor []byte
	Recipient   []byte
	Amount      *big.Int
	PriceNum    *big.Int
	PriceDenom  *big.Int
}

type storedUnbonding struct {
	ID        uint64
	Owner     []byte
	Validator []byte
	Amount    *big.Int
	Owed      *big.Int
	ReleaseAt uint64
	Matured   bool
}

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, part...)
	}
	return buf
}

func idKey(prefix []byte, id uint64) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], id)
	return joinKey(prefix, raw[:])
}

func toAddress(prefix crypto.AddressPrefix, raw []byte) (crypto.Address, error) {
	if len(raw) == 0 {
		return crypto.Address{}, nil
	}
	if len(raw) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("state: invalid address length %d", len(raw))
	}
	return crypto.NewAddress(prefix, raw), nil
}

func amount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// VaultState loads the vault singleton. A missing record yields a zero state
// with default parameters and no owner.
func (m *Manager) VaultState() (*vault.State, error) {
	var stored storedVault
	ok, err := m.KVGet(vaultStateKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode vault: %w", err)
	}
	if !ok {
		return vault.NewState(crypto.Address{}), nil
	}
	st := &vault.State{
		TotalShares:    amount(stored.TotalShares),
		TotalStaked:    amount(stored.TotalStaked),
		Buffer:         amount(stored.Buffer),
		ClaimPool:      amount(stored.ClaimPool),
		PendingClaims:  amount(stored.PendingClaims),
		Reserve:        amount(stored.Reserve),
		UnassignedLoss: amount(stored.UnassignedLoss),
		NextUnbonding:  stored.NextUnbonding,
		Params: vault.Params{
			TreasuryFeeBps:     stored.TreasuryFeeBps,
			DistributionFeeBps: stored.DistributionFeeBps,
			MinDeposit:         amount(stored.MinDeposit),
			UnbondingPeriod:    time.Duration(stored.UnbondingSeconds) * time.Second,
		},
	}
	for _, field := range []struct {
		dst    *crypto.Address
		prefix crypto.AddressPrefix
		raw    []byte
	}{
		{&st.Params.Treasury, crypto.AccountPrefix, stored.Treasury},
		{&st.Params.DefaultValidator, crypto.ValidatorPrefix, stored.DefaultValidator},
		{&st.Owner, crypto.AccountPrefix, stored.Owner},
		{&st.PendingOwner, crypto.AccountPrefix, stored.PendingOwner},
	} {
		addr, err := toAddress(field.prefix, field.raw)
		if err != nil {
			return nil, err
		}
		*field.dst = addr
	}
	return st, nil
}

// PutVaultState persists the vault singleton.
func (m *Manager) PutVaultState(st *vault.State) error {
	if st == nil {
		return fmt.Errorf("state: nil vault state")
	}
	return m.KVPut(vaultStateKey, &storedVault{
		TotalShares:        amount(st.TotalShares),
		TotalStaked:        amount(st.TotalStaked),
		Buffer:             amount(st.Buffer),
		ClaimPool:          amount(st.ClaimPool),
		PendingClaims:      amount(st.PendingClaims),
		Reserve:            amount(st.Reserve),
		UnassignedLoss:     amount(st.UnassignedLoss),
		TreasuryFeeBps:     st.Params.TreasuryFeeBps,
		DistributionFeeBps: st.Params.DistributionFeeBps,
		MinDeposit:         amount(st.Params.MinDeposit),
		UnbondingSeconds:   uint64(st.Params.UnbondingPeriod / time.Second),
		Treasury:           st.Params.Treasury.Bytes(),
		DefaultValidator:   st.Params.DefaultValidator.Bytes(),
		Owner:              st.Owner.Bytes(),
		PendingOwner:       st.PendingOwner.Bytes(),
		NextUnbonding:      st.NextUnbonding,
	})
}

// GetAccount returns the balances of addr, zero when absent.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if addr.IsZero() {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	var stored storedAccount
	ok, err := m.KVGet(joinKey(accountPrefix, addr.Bytes()), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	if !ok {
		return types.NewAccount(), nil
	}
	return &types.Account{Base: amount(stored.Base), Shares: amount(stored.Shares)}, nil
}

// PutAccount persists the balances of addr. The holder index is written on
// the first store only.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if addr.IsZero() {
		return fmt.Errorf("state: address must not be empty")
	}
	key := joinKey(accountPrefix, addr.Bytes())
	known, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	account = account.Clone()
	if err := m.KVPut(key, &storedAccount{Base: account.Base, Shares: account.Shares}); err != nil {
		return err
	}
	if known {
		return nil
	}
	return m.KVAppend(accountIndexKey, addr.Bytes())
}

// Accounts lists every address that has ever held a balance.
func (m *Manager) Accounts() ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(accountIndexKey, &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(crypto.AccountPrefix, raw)
}

func decodeAddresses(prefix crypto.AddressPrefix, raw [][]byte) ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := toAddress(prefix, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func encodeAddresses(addrs []crypto.Address) [][]byte {
	out := make([][]byte, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Bytes())
	}
	return out
}

// GetValidator loads a registry entry.
func (m *Manager) GetValidator(addr crypto.Address) (*vault.Validator, bool, error) {
	var stored storedValidator
	ok, err := m.KVGet(joinKey(validatorPrefix, addr.Bytes()), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: decode validator: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	id, err := toAddress(crypto.ValidatorPrefix, stored.Address)
	if err != nil {
		return nil, false, err
	}
	return &vault.Validator{
		Address:   id,
		Status:    vault.ValidatorStatus(stored.Status),
		Delegated: amount(stored.Delegated),
		Unbonding: amount(stored.Unbonding),
	}, true, nil
}

// PutValidator persists a registry entry, indexing new identities.
func (m *Manager) PutValidator(v *vault.Validator) error {
	if v == nil || v.Address.IsZero() {
		return fmt.Errorf("state: validator address required")
	}
	if err := m.KVPut(joinKey(validatorPrefix, v.Address.Bytes()), &storedValidator{
		Address:   v.Address.Bytes(),
		Status:    uint8(v.Status),
		Delegated: amount(v.Delegated),
		Unbonding: amount(v.Unbonding),
	}); err != nil {
		return err
	}
	ids, err := m.ValidatorIDs()
	if err != nil {
		return err
	}
	pos := len(ids)
	for i, id := range ids {
		cmp := id.Compare(v.Address)
		if cmp == 0 {
			return nil
		}
		if cmp > 0 {
			pos = i
			break
		}
	}
	ids = append(ids, crypto.Address{})
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = v.Address
	return m.KVPut(vaultValidatorIndex, encodeAddresses(ids))
}

// ValidatorIDs lists registered validators in ascending identity order.
func (m *Manager) ValidatorIDs() ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(vaultValidatorIndex, &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(crypto.ValidatorPrefix, raw)
}

func allocationKey(distributor, recipient crypto.Address) []byte {
	return joinKey(allocationPrefix, distributor.Bytes(), recipient.Bytes())
}

// GetAllocation loads the (distributor, recipient) entry.
func (m *Manager) GetAllocation(distributor, recipient crypto.Address) (*vault.Allocation, bool, error) {
	var stored storedAllocation
	ok, err := m.KVGet(allocationKey(distributor, recipient), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: decode allocation: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	d, err := toAddress(crypto.AccountPrefix, stored.Distributor)
	if err != nil {
		return nil, false, err
	}
	r, err := toAddress(crypto.AccountPrefix, stored.Recipient)
	if err != nil {
		return nil, false, err
	}
	return &vault.Allocation{
		Distributor: d,
		Recipient:   r,
		Amount:      amount(stored.Amount),
		Price:       vault.Price{Num: amount(stored.PriceNum), Denom: amount(stored.PriceDenom)},
	}, true, nil
}

// PutAllocation persists an entry. Only entries that did not exist touch the
// distributor's insertion-ordered index.
func (m *Manager) PutAllocation(a *vault.Allocation) error {
	if a == nil || a.Distributor.IsZero() || a.Recipient.IsZero() {
		return fmt.Errorf("state: allocation parties required")
	}
	key := allocationKey(a.Distributor, a.Recipient)
	known, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	var recipients [][]byte
	if !known {
		if err := m.KVGetList(joinKey(allocationIndex, a.Distributor.Bytes()), &recipients); err != nil {
			return err
		}
	}
	if err := m.KVPut(key, &storedAllocation{
		Distributor: a.Distributor.Bytes(),
		Recipient:   a.Recipient.Bytes(),
		Amount:      amount(a.Amount),
		PriceNum:    amount(a.Price.Num),
		PriceDenom:  amount(a.Price.Denom),
	}); err != nil {
		return err
	}
	if known {
		return nil
	}
	if err := m.KVPut(joinKey(allocationIndex, a.Distributor.Bytes()), append(recipients, a.Recipient.Bytes())); err != nil {
		return err
	}
	// A distributor whose recipient list was empty is either new or already
	// indexed from an earlier allocation.
	if len(recipients) > 0 {
		return nil
	}
	return m.KVAppend(distributorIndex, a.Distributor.Bytes())
}

// DeleteAllocation removes an entry and its index slot.
func (m *Manager) DeleteAllocation(distributor, recipient crypto.Address) error {
	if err := m.KVDelete(allocationKey(distributor, recipient)); err != nil {
		return err
	}
	recipients, err := m.AllocationRecipients(distributor)
	if err != nil {
		return err
	}
	kept := recipients[:0]
	for _, r := range recipients {
		if !r.Equal(recipient) {
			kept = append(kept, r)
		}
	}
	return m.KVPut(joinKey(allocationIndex, distributor.Bytes()), encodeAddresses(kept))
}

// AllocationRecipients lists a distributor's recipients in insertion order.
func (m *Manager) AllocationRecipients(distributor crypto.Address) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(joinKey(allocationIndex, distributor.Bytes()), &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(crypto.AccountPrefix, raw)
}

// Distributors lists every address that has created an allocation.
func (m *Manager) Distributors() ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(distributorIndex, &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(crypto.AccountPrefix, raw)
}

// GetUnbonding loads an unbonding entry by id.
func (m *Manager) GetUnbonding(id uint64) (*vault.Unbonding, bool, error) {
	var stored storedUnbonding
	ok, err := m.KVGet(idKey(unbondingPrefix, id), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: decode unbonding: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	owner, err := toAddress(crypto.AccountPrefix, stored.Owner)
	if err != nil {
		return nil, false, err
	}
	validator, err := toAddress(crypto.ValidatorPrefix, stored.Validator)
	if err != nil {
		return nil, false, err
	}
	return &vault.Unbonding{
		ID:        stored.ID,
		Owner:     owner,
		Validator: validator,
		Amount:    amount(stored.Amount),
		Owed:      amount(stored.Owed),
		ReleaseAt: int64(stored.ReleaseAt),
		Matured:   stored.Matured,
	}, true, nil
}

// PutUnbonding persists an unbonding entry.
func (m *Manager) PutUnbonding(u *vault.Unbonding) error {
	if u == nil || u.ID == 0 {
		return fmt.Errorf("state: unbonding id required")
	}
	if u.ReleaseAt < 0 {
		return fmt.Errorf("state: negative release time")
	}
	return m.KVPut(idKey(unbondingPrefix, u.ID), &storedUnbonding{
		ID:        u.ID,
		Owner:     u.Owner.Bytes(),
		Validator: u.Validator.Bytes(),
		Amount:    amount(u.Amount),
		Owed:      amount(u.Owed),
		ReleaseAt: uint64(u.ReleaseAt),
		Matured:   u.Matured,
	})
}

// DeleteUnbonding removes an unbonding entry.
func (m *Manager) DeleteUnbonding(id uint64) error {
	return m.KVDelete(idKey(unbondingPrefix, id))
}

// UnbondingQueue returns the ids awaiting maturity in creation order.
func (m *Manager) UnbondingQueue() ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(vaultQueueKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PutUnbondingQueue replaces the pending queue.
func (m *Manager) PutUnbondingQueue(ids []uint64) error {
	return m.KVPut(vaultQueueKey, ids)
}

// ClaimIDs lists the withdrawal claims held by owner.
func (m *Manager) ClaimIDs(owner crypto.Address) ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(joinKey(claimIndexPrefix, owner.Bytes()), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PutClaimIDs replaces the claim index of owner.
func (m *Manager) PutClaimIDs(owner crypto.Address, ids []uint64) error {
	return m.KVPut(joinKey(claimIndexPrefix, owner.Bytes()), ids)
}
