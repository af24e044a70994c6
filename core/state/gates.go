package state

import (
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
	"stakevault/native/whitelist"
)

var (
	pausePrefix           = []byte("pause/")
	whitelistAgentPrefix  = []byte("whitelist/agent/")
	whitelistAgentIndex   = []byte("whitelist/agents")
	whitelistStatusPrefix = []byte("whitelist/user/")
	quotaPrefix           = []byte("quota/")
)

// IsPaused reports whether module is paused. Read failures report unpaused
// so that queries keep working; mutations re-check through the engines.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(joinKey(pausePrefix, []byte(module)), &paused)
	return err == nil && ok && paused
}

// SetModulePaused records the pause flag of module.
func (m *Manager) SetModulePaused(module string, paused bool) error {
	return m.KVPut(joinKey(pausePrefix, []byte(module)), paused)
}

// IsWhitelistAgent reports whether addr is a registered agent.
func (m *Manager) IsWhitelistAgent(addr crypto.Address) (bool, error) {
	var active bool
	ok, err := m.KVGet(joinKey(whitelistAgentPrefix, addr.Bytes()), &active)
	if err != nil {
		return false, err
	}
	return ok && active, nil
}

// PutWhitelistAgent adds or removes addr from the agent set.
func (m *Manager) PutWhitelistAgent(addr crypto.Address, active bool) error {
	key := joinKey(whitelistAgentPrefix, addr.Bytes())
	agents, err := m.WhitelistAgents()
	if err != nil {
		return err
	}
	if active {
		if err := m.KVPut(key, true); err != nil {
			return err
		}
		return m.KVAppend(whitelistAgentIndex, addr.Bytes())
	}
	if err := m.KVDelete(key); err != nil {
		return err
	}
	kept := agents[:0]
	for _, agent := range agents {
		if !agent.Equal(addr) {
			kept = append(kept, agent)
		}
	}
	return m.KVPut(whitelistAgentIndex, encodeAddresses(kept))
}

// WhitelistAgents lists registered agents in the order they were added.
func (m *Manager) WhitelistAgents() ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(whitelistAgentIndex, &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(crypto.AccountPrefix, raw)
}

// UserStatus returns the whitelist status of addr.
func (m *Manager) UserStatus(addr crypto.Address) (whitelist.Status, error) {
	var raw uint8
	ok, err := m.KVGet(joinKey(whitelistStatusPrefix, addr.Bytes()), &raw)
	if err != nil || !ok {
		return whitelist.StatusNone, err
	}
	return whitelist.Status(raw), nil
}

// PutUserStatus stores the whitelist status of addr, deleting the record on
// StatusNone.
func (m *Manager) PutUserStatus(addr crypto.Address, status whitelist.Status) error {
	key := joinKey(whitelistStatusPrefix, addr.Bytes())
	if status == whitelist.StatusNone {
		return m.KVDelete(key)
	}
	return m.KVPut(key, uint8(status))
}

// QuotaCounter returns the usage counters of addr within module.
func (m *Manager) QuotaCounter(module string, addr crypto.Address) (nativecommon.QuotaNow, error) {
	var now nativecommon.QuotaNow
	_, err := m.KVGet(joinKey(quotaPrefix, []byte(module), addr.Bytes()), &now)
	return now, err
}

// PutQuotaCounter stores the usage counters of addr within module.
func (m *Manager) PutQuotaCounter(module string, addr crypto.Address, now nativecommon.QuotaNow) error {
	return m.KVPut(joinKey(quotaPrefix, []byte(module), addr.Bytes()), &now)
}
