package config

// Auth configures bearer-token authentication of the HTTP API. Tokens are
// HMAC-signed JWTs whose subject is the instruction sender.
type Auth struct {
	Enabled       bool     `toml:"Enabled"`
	HMACSecret    string   `toml:"HMACSecret,omitempty"`
	HMACSecretEnv string   `toml:"HMACSecretEnv,omitempty"`
	Issuer        string   `toml:"Issuer,omitempty"`
	Audience      []string `toml:"Audience,omitempty"`
	// AllowAnonymousQueries lets GET endpoints through without a token.
	AllowAnonymousQueries bool  `toml:"AllowAnonymousQueries"`
	ClockSkewSeconds      int64 `toml:"ClockSkewSeconds,omitempty"`
}

// RateLimit bounds requests per client identity.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Quota limits user instructions per sender and epoch. Volume is counted in
// whole base-asset tokens.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxTokensPerEpoch   uint64 `toml:"MaxTokensPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
	Compress   bool   `toml:"Compress,omitempty"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint,omitempty"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers,omitempty"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio,omitempty"`
}

// Indexer configures the relational receipt index. An empty driver disables
// it.
type Indexer struct {
	Driver string `toml:"Driver,omitempty"` // sqlite | postgres
	DSN    string `toml:"DSN,omitempty"`
}

type Idempotency struct {
	Path       string `toml:"Path,omitempty"`
	TTLSeconds int64  `toml:"TTLSeconds,omitempty"`
}

// Export configures the periodic parquet ledger export. A zero interval
// disables the schedule; the CLI can still trigger exports.
type Export struct {
	Dir             string `toml:"Dir,omitempty"`
	IntervalSeconds int64  `toml:"IntervalSeconds,omitempty"`
}
