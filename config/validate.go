package config

import (
	"fmt"
	"os"
	"strings"
)

var (
	MinTickSeconds  = int64(1)
	MinSecretLength = 32
)

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.TickSeconds < MinTickSeconds {
		return fmt.Errorf("config: TickSeconds must be at least %d", MinTickSeconds)
	}
	if c.Auth.Enabled {
		if c.Auth.HMACSecret == "" && c.Auth.HMACSecretEnv == "" {
			return fmt.Errorf("auth: HMACSecret or HMACSecretEnv required when enabled")
		}
		if c.Auth.ClockSkewSeconds < 0 {
			return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when RequestsPerSecond is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required for driver %s", c.Indexer.Driver)
		}
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if c.Idempotency.TTLSeconds < 0 {
		return fmt.Errorf("idempotency: TTLSeconds must not be negative")
	}
	if c.Export.IntervalSeconds < 0 {
		return fmt.Errorf("export: IntervalSeconds must not be negative")
	}
	if c.Export.IntervalSeconds > 0 && strings.TrimSpace(c.Export.Dir) == "" {
		return fmt.Errorf("export: Dir required when IntervalSeconds is set")
	}
	return nil
}

// JWTSecret resolves the HMAC secret, preferring the inline value. The
// environment variable is read at call time.
func (a Auth) JWTSecret() ([]byte, error) {
	secret := a.HMACSecret
	if secret == "" && a.HMACSecretEnv != "" {
		secret = os.Getenv(a.HMACSecretEnv)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("auth: HMAC secret is empty")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: HMAC secret must be at least %d bytes", MinSecretLength)
	}
	return []byte(secret), nil
}
