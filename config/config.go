package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakevault/crypto"
)

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	Environment          string `toml:"Environment,omitempty"`
	AllowMigrate         bool   `toml:"AllowMigrate"`
	// TickSeconds is how often matured unbonding is released without
	// waiting for the next instruction.
	TickSeconds int64 `toml:"TickSeconds"`

	Auth        Auth        `toml:"auth"`
	RateLimit   RateLimit   `toml:"rate_limit"`
	Quota       Quota       `toml:"quota"`
	Logging     Logging     `toml:"logging"`
	Telemetry   Telemetry   `toml:"telemetry"`
	Indexer     Indexer     `toml:"indexer"`
	Idempotency Idempotency `toml:"idempotency"`
	Export      Export      `toml:"export"`
}

type loadOptions struct {
	passphrase func() (string, error)
}

func (o loadOptions) resolvePassphrase() (string, error) {
	if o.passphrase == nil {
		return "", nil
	}
	return o.passphrase()
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithKeystorePassphrase encrypts a generated operator keystore with
// passphrase.
func WithKeystorePassphrase(passphrase string) LoadOption {
	return func(o *loadOptions) {
		o.passphrase = func() (string, error) { return passphrase, nil }
	}
}

// WithKeystorePassphraseSource defers passphrase resolution until a keystore
// actually has to be generated.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

// Load loads the configuration from the given path, writing a default file
// and operator keystore when none exists.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := ensureKeystore(path, cfg, options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RPCAddress:  "127.0.0.1:8645",
		DataDir:     "./vault-data",
		GenesisFile: "genesis.yaml",
		Environment: "local",
		TickSeconds: 30,
		Auth: Auth{
			Enabled:               true,
			HMACSecretEnv:         "VAULT_JWT_SECRET",
			Issuer:                "stakevault",
			AllowAnonymousQueries: true,
			ClockSkewSeconds:      30,
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Logging:   Logging{Level: "info"},
		Idempotency: Idempotency{
			TTLSeconds: 24 * 60 * 60,
		},
	}
}

func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		if err := generateKeystore(keystorePath, options); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, options loadOptions) (*Config, error) {
	keystorePath := defaultKeystorePath(path)
	if err := generateKeystore(keystorePath, options); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OperatorKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generateKeystore(path string, options loadOptions) error {
	passphrase, err := options.resolvePassphrase()
	if err != nil {
		return fmt.Errorf("keystore passphrase: %w", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return crypto.SaveToKeystore(path, key, passphrase)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}

// ResolvePath anchors a relative path from the config at the data directory.
func (c *Config) ResolvePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
