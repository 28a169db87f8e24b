package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "numvend_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// ActiveConnections tracks active connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "numvend_active_connections",
			Help: "Number of active connections",
		},
	)

	// ProviderCallDuration tracks upstream provider call duration
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "numvend_provider_call_duration_seconds",
			Help: "Duration of upstream provider calls in seconds",
		},
		[]string{"endpoint", "outcome"},
	)

	// ProviderRetries tracks retry attempts against the provider
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numvend_provider_retries_total",
			Help: "Number of retried provider calls",
		},
		[]string{"endpoint"},
	)

	// BreakerState tracks circuit breaker state per endpoint group
	// (0 = closed, 1 = half-open, 2 = open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "numvend_breaker_state",
			Help: "Circuit breaker state per provider endpoint group",
		},
		[]string{"endpoint"},
	)

	// LedgerTransactions tracks ledger postings by reason
	LedgerTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numvend_ledger_transactions_total",
			Help: "Number of ledger transactions recorded",
		},
		[]string{"reason"},
	)

	// SweepRuns tracks expiry sweep executions
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numvend_sweep_runs_total",
			Help: "Number of expiry sweep runs",
		},
		[]string{"status"},
	)

	// SweepTransitions tracks entities transitioned by the expiry sweep
	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numvend_sweep_transitions_total",
			Help: "Number of entities expired or warned by the sweep",
		},
		[]string{"entity", "action"},
	)
)
