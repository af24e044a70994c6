package config

import (
	"time"

	nativecommon "stakevault/native/common"
	"stakevault/observability/logging"
	"stakevault/observability/otel"
)

// NodeQuota converts the quota section into the runtime limits.
func (c *Config) NodeQuota() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
		MaxVolumePerEpoch:   c.Quota.MaxTokensPerEpoch,
		EpochSeconds:        c.Quota.EpochSeconds,
	}
}

// LoggingOptions converts the logging section.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.ResolvePath(c.Logging.File),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// TelemetryConfig converts the telemetry section for service.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Traces:      c.Telemetry.Traces,
		Metrics:     c.Telemetry.Metrics,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

// TickInterval is the unbonding maturity poll interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// IdempotencyTTL is how long a replayable response is kept.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Idempotency.TTLSeconds) * time.Second
}

// ExportInterval is the parquet export period; zero disables it.
func (c *Config) ExportInterval() time.Duration {
	return time.Duration(c.Export.IntervalSeconds) * time.Second
}
