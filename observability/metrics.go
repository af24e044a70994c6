package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics tracks HTTP API traffic per route group.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// RPC returns the singleton HTTP API metrics registry.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "API requests by route group, method and status class.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "API handler latency by route group.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected before reaching a handler.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency, rpcRegistry.throttles)
	})
	return rpcRegistry
}

// Observe records one finished request. status is the HTTP status written to
// the client and is reported by class ("2xx", "4xx", ...).
func (m *RPCMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unknown")
	m.requests.WithLabelValues(route, labelOr(method, "unknown"), statusClass(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request, e.g. reason "rate_limit".
func (m *RPCMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(route, "unknown"), labelOr(reason, "unspecified")).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func labelOr(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

// VaultMetrics tracks applied instructions and the vault ledger totals.
type VaultMetrics struct {
	instructions *prometheus.CounterVec
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	ledger       *prometheus.GaugeVec
	sharePrice   prometheus.Gauge
	matured      prometheus.Counter
	paused       prometheus.Gauge
}

// LedgerSnapshot carries the totals exported as gauges.
type LedgerSnapshot struct {
	TotalStaked    *big.Int
	TotalShares    *big.Int
	Buffer         *big.Int
	ClaimPool      *big.Int
	PendingClaims  *big.Int
	Reserve        *big.Int
	UnassignedLoss *big.Int
	// PriceWad is the share price scaled by 1e18.
	PriceWad *big.Int
	Paused   bool
}

// Vault returns the singleton vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "instructions_total",
				Help:      "Count of applied instructions segmented by type and outcome.",
			}, []string{"instruction", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "instruction_failures_total",
				Help:      "Count of rejected instructions segmented by type and error code.",
			}, []string{"instruction", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "instruction_duration_seconds",
				Help:      "Latency distribution for instruction execution including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"instruction"}),
			ledger: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "ledger_base_units",
				Help:      "Vault ledger totals in base units segmented by bucket.",
			}, []string{"bucket"}),
			sharePrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "share_price",
				Help:      "Current share price in base asset per whole receipt token.",
			}),
			matured: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "unbondings_matured_total",
				Help:      "Count of unbonding entries released at maturity.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "paused",
				Help:      "Indicates whether the vault pause gate is engaged (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.instructions,
			vaultRegistry.failures,
			vaultRegistry.latency,
			vaultRegistry.ledger,
			vaultRegistry.sharePrice,
			vaultRegistry.matured,
			vaultRegistry.paused,
		)
	})
	return vaultRegistry
}

// ObserveInstruction records the execution of one instruction. code is the
// stable error code of a failure and ignored on success.
func (m *VaultMetrics) ObserveInstruction(instruction string, duration time.Duration, code string, err error) {
	if m == nil {
		return
	}
	instr := labelOr(instruction, "unknown")
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(instr, labelOr(code, "internal")).Inc()
	}
	m.instructions.WithLabelValues(instr, outcome).Inc()
	m.latency.WithLabelValues(instr).Observe(duration.Seconds())
}

// RecordMatured adds n released unbonding entries.
func (m *VaultMetrics) RecordMatured(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.matured.Add(float64(n))
}

// RecordLedger updates the ledger gauges.
func (m *VaultMetrics) RecordLedger(snap LedgerSnapshot) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues("staked").Set(bigToFloat(snap.TotalStaked))
	m.ledger.WithLabelValues("shares").Set(bigToFloat(snap.TotalShares))
	m.ledger.WithLabelValues("buffer").Set(bigToFloat(snap.Buffer))
	m.ledger.WithLabelValues("claim_pool").Set(bigToFloat(snap.ClaimPool))
	m.ledger.WithLabelValues("pending_claims").Set(bigToFloat(snap.PendingClaims))
	m.ledger.WithLabelValues("reserve").Set(bigToFloat(snap.Reserve))
	m.ledger.WithLabelValues("unassigned_loss").Set(bigToFloat(snap.UnassignedLoss))
	m.sharePrice.Set(bigToFloat(snap.PriceWad) / 1e18)
	if snap.Paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return 0
	}
	return f
}
