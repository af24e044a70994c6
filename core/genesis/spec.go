// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stakevault/crypto"
	"stakevault/native/vault"
)

// GenesisSpec is the YAML document describing the initial vault deployment.
type GenesisSpec struct {
	GenesisTime      string            `yaml:"genesisTime"`
	Owner            string            `yaml:"owner"`
	Treasury         string            `yaml:"treasury,omitempty"`
	Params           ParamsSpec        `yaml:"params"`
	Validators       []ValidatorSpec   `yaml:"validators"`
	DefaultValidator string            `yaml:"defaultValidator,omitempty"`
	Agents           []string          `yaml:"agents,omitempty"`
	Whitelist        []string          `yaml:"whitelist,omitempty"`
	Alloc            map[string]string `yaml:"alloc,omitempty"` // addr -> base units
	Reserve          string            `yaml:"reserve,omitempty"`
	Paused           bool              `yaml:"paused,omitempty"`

	genesisTimestamp time.Time
	owner            crypto.Address
	treasury         crypto.Address
	defaultValidator crypto.Address
	validators       []validatorEntry
	agents           []crypto.Address
	whitelist        []crypto.Address
	alloc            []allocEntry
	reserve          *big.Int
}

// ParamsSpec mirrors vault.Params with human-writable values.
type ParamsSpec struct {
	TreasuryFeeBps     uint64 `yaml:"treasuryFeeBps"`
	DistributionFeeBps uint64 `yaml:"distributionFeeBps"`
	MinDeposit         string `yaml:"minDeposit,omitempty"`
	UnbondingPeriod    string `yaml:"unbondingPeriod,omitempty"`

	minDeposit      *big.Int
	unbondingPeriod time.Duration
}

type ValidatorSpec struct {
	Address  string `yaml:"address"`
	Disabled bool   `yaml:"disabled,omitempty"`
	Moniker  string `yaml:"moniker,omitempty"`
}

type validatorEntry struct {
	address  crypto.Address
	disabled bool
}

type allocEntry struct {
	address crypto.Address
	amount  *big.Int
}

// Option adjusts how a genesis document is validated.
type Option func(*loadOptions)

type loadOptions struct {
	defaultOwner crypto.Address
}

// WithDefaultOwner names the owner used when the document leaves owner empty.
func WithDefaultOwner(addr crypto.Address) Option {
	return func(o *loadOptions) { o.defaultOwner = addr }
}

// LoadGenesisSpec reads and validates the YAML genesis at path.
func LoadGenesisSpec(path string, opts ...Option) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	return ParseGenesisSpec(raw, opts...)
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte, opts ...Option) (*GenesisSpec, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	if strings.TrimSpace(spec.Owner) == "" && !o.defaultOwner.IsZero() {
		spec.Owner = o.defaultOwner.String()
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time; zero before validation.
func (s *GenesisSpec) GenesisTimestamp() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.genesisTimestamp
}

func (s *GenesisSpec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if s.owner, err = crypto.ParseAddress(s.Owner, crypto.AccountPrefix); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if strings.TrimSpace(s.Treasury) != "" {
		if s.treasury, err = crypto.ParseAddress(s.Treasury, crypto.AccountPrefix); err != nil {
			return fmt.Errorf("treasury: %w", err)
		}
	}
	if err := s.Params.validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	if len(s.Validators) == 0 {
		return fmt.Errorf("at least one validator required")
	}
	seen := make(map[string]struct{}, len(s.Validators))
	s.validators = s.validators[:0]
	for i, v := range s.Validators {
		addr, err := crypto.ParseAddress(v.Address, crypto.ValidatorPrefix)
		if err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
		if _, dup := seen[string(addr.Bytes())]; dup {
			return fmt.Errorf("validators[%d]: duplicate address %s", i, v.Address)
		}
		seen[string(addr.Bytes())] = struct{}{}
		s.validators = append(s.validators, validatorEntry{address: addr, disabled: v.Disabled})
	}
	for _, v := range s.validators {
		if !v.disabled {
			s.defaultValidator = v.address
			break
		}
	}
	if s.defaultValidator.IsZero() {
		return fmt.Errorf("at least one enabled validator required")
	}
	if strings.TrimSpace(s.DefaultValidator) != "" {
		if s.defaultValidator, err = crypto.ParseAddress(s.DefaultValidator, crypto.ValidatorPrefix); err != nil {
			return fmt.Errorf("defaultValidator: %w", err)
		}
		found := false
		for _, v := range s.validators {
			if v.address.Equal(s.defaultValidator) {
				if v.disabled {
					return fmt.Errorf("defaultValidator %s is disabled", s.DefaultValidator)
				}
				found = true
			}
		}
		if !found {
			return fmt.Errorf("defaultValidator %s is not listed", s.DefaultValidator)
		}
	}

	if s.agents, err = parseAccounts("agents", s.Agents); err != nil {
		return err
	}
	for _, agent := range s.agents {
		if agent.Equal(s.owner) {
			return fmt.Errorf("agents: owner is implicitly an agent")
		}
	}
	if s.whitelist, err = parseAccounts("whitelist", s.Whitelist); err != nil {
		return err
	}

	// Sorted so that genesis application is deterministic.
	keys := make([]string, 0, len(s.Alloc))
	for key := range s.Alloc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	s.alloc = s.alloc[:0]
	for _, key := range keys {
		addr, err := crypto.ParseAddress(key, crypto.AccountPrefix)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", key, err)
		}
		amount, err := parseAmountString(s.Alloc[key])
		if err != nil {
			return fmt.Errorf("alloc %q: %w", key, err)
		}
		s.alloc = append(s.alloc, allocEntry{address: addr, amount: amount})
	}
	if s.reserve, err = parseAmountString(s.Reserve); err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	return nil
}

func (p *ParamsSpec) validate() error {
	if p.TreasuryFeeBps >= vault.MaxFeeBps {
		return fmt.Errorf("treasuryFeeBps must be below %d", vault.MaxFeeBps)
	}
	if p.DistributionFeeBps >= vault.MaxFeeBps {
		return fmt.Errorf("distributionFeeBps must be below %d", vault.MaxFeeBps)
	}
	p.minDeposit = new(big.Int).Set(vault.OneUnit)
	if strings.TrimSpace(p.MinDeposit) != "" {
		amount, err := parseAmountString(p.MinDeposit)
		if err != nil {
			return fmt.Errorf("minDeposit: %w", err)
		}
		if amount.Cmp(vault.OneUnit) < 0 {
			return fmt.Errorf("minDeposit must be at least %s", vault.OneUnit)
		}
		p.minDeposit = amount
	}
	p.unbondingPeriod = vault.DefaultUnbondingPeriod
	if strings.TrimSpace(p.UnbondingPeriod) != "" {
		period, err := time.ParseDuration(p.UnbondingPeriod)
		if err != nil {
			return fmt.Errorf("unbondingPeriod: %w", err)
		}
		if period < time.Second {
			return fmt.Errorf("unbondingPeriod must be at least 1s")
		}
		p.unbondingPeriod = period
	}
	return nil
}

func parseAccounts(field string, values []string) ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(values))
	for i, value := range values {
		addr, err := crypto.ParseAddress(value, crypto.AccountPrefix)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime: %w", err)
	}
	return ts.UTC(), nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
