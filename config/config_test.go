package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stakevault/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "operator.keystore")
	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
GenesisFile = "genesis.yaml"
OperatorKeystorePath = "%s"
Environment = "staging"
TickSeconds = 5

[auth]
Enabled = true
HMACSecret = "0123456789abcdef0123456789abcdef"
Issuer = "vault-test"
Audience = ["vaultd"]
AllowAnonymousQueries = false

[rate_limit]
RequestsPerSecond = 2.5
Burst = 5

[quota]
MaxRequestsPerEpoch = 10
MaxTokensPerEpoch = 1000
EpochSeconds = 3600

[logging]
Level = "debug"
File = "vaultd.log"

[telemetry]
Endpoint = "otel:4318"
Headers = "api-key=abc"
Traces = true
SampleRatio = 0.25

[indexer]
Driver = "sqlite"
DSN = "file:index.db"

[idempotency]
Path = "idem.db"
TTLSeconds = 60

[export]
Dir = "exports"
IntervalSeconds = 300
`, keystorePath)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" || cfg.Environment != "staging" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.TickInterval() != 5*time.Second {
		t.Fatalf("unexpected tick interval: %s", cfg.TickInterval())
	}
	if cfg.Auth.AllowAnonymousQueries || cfg.Auth.Issuer != "vault-test" || len(cfg.Auth.Audience) != 1 {
		t.Fatalf("unexpected auth: %+v", cfg.Auth)
	}
	// Defaults survive when a section omits them.
	if cfg.Auth.ClockSkewSeconds != 30 {
		t.Fatalf("expected default clock skew, got %d", cfg.Auth.ClockSkewSeconds)
	}
	quota := cfg.NodeQuota()
	if quota.MaxRequestsPerEpoch != 10 || quota.MaxVolumePerEpoch != 1000 || quota.EpochSeconds != 3600 {
		t.Fatalf("unexpected quota: %+v", quota)
	}
	if got := cfg.LoggingOptions().File; got != filepath.Join("data", "vaultd.log") {
		t.Fatalf("log file not anchored at data dir: %s", got)
	}
	tel := cfg.TelemetryConfig("vaultd")
	if tel.Headers["api-key"] != "abc" || !tel.Traces || tel.Metrics || tel.SampleRatio != 0.25 {
		t.Fatalf("unexpected telemetry: %+v", tel)
	}
	if cfg.Indexer.Driver != "sqlite" || cfg.IdempotencyTTL() != time.Minute || cfg.ExportInterval() != 5*time.Minute {
		t.Fatalf("unexpected storage sections: %+v %+v %+v", cfg.Indexer, cfg.Idempotency, cfg.Export)
	}
	if _, err := os.Stat(keystorePath); err != nil {
		t.Fatalf("expected keystore to be generated: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(keystorePath, testKeystorePassphrase); err != nil {
		t.Fatalf("keystore should decrypt with the passphrase: %v", err)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.OperatorKeystorePath != filepath.Join(dir, "nested", "operator.keystore") {
		t.Fatalf("unexpected keystore path: %s", cfg.OperatorKeystorePath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted config: %v", err)
	}
	if !strings.Contains(string(raw), "OperatorKeystorePath") {
		t.Fatalf("persisted config missing keystore path:\n%s", raw)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPCAddress != cfg.RPCAddress || reloaded.Auth.HMACSecretEnv != "VAULT_JWT_SECRET" {
		t.Fatalf("reloaded config differs: %+v", reloaded)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = \":1\"\nValidatorKey = \"abc\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty rpc":          func(c *Config) { c.RPCAddress = "" },
		"zero tick":          func(c *Config) { c.TickSeconds = 0 },
		"auth without key":   func(c *Config) { c.Auth.HMACSecretEnv = "" },
		"burst missing":      func(c *Config) { c.RateLimit.Burst = 0 },
		"bad sample ratio":   func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"unknown driver":     func(c *Config) { c.Indexer.Driver = "mysql"; c.Indexer.DSN = "x" },
		"driver without dsn": func(c *Config) { c.Indexer.Driver = "postgres" },
		"export without dir": func(c *Config) { c.Export.IntervalSeconds = 10 },
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestJWTSecret(t *testing.T) {
	t.Setenv("VAULT_TEST_SECRET", strings.Repeat("s", 40))
	secret, err := Auth{HMACSecretEnv: "VAULT_TEST_SECRET"}.JWTSecret()
	if err != nil || len(secret) != 40 {
		t.Fatalf("expected env secret, got %q %v", secret, err)
	}
	if _, err := (Auth{HMACSecret: "short"}).JWTSecret(); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if _, err := (Auth{}).JWTSecret(); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}
