package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vaultctx"

// Vault client Prometheus metrics.
var (
	VaultRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_requests_total",
			Help:      "Total vault API attempts by operation and outcome",
		},
		[]string{"operation", "status"}, // status: ok, client_error, server_error, network_error, timeout, rejected
	)

	VaultRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vault_request_duration_seconds",
			Help:      "Vault API attempt duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	VaultRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_retries_total",
			Help:      "Total vault API retries",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)

	ResponseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_cache_total",
			Help:      "Vault response cache hits and misses",
		},
		[]string{"result"}, // hit / miss / shared_hit
	)

	SharedCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_cache_total",
			Help:      "Shared (Redis) response cache lookups",
		},
		[]string{"result"}, // hit / miss / error
	)
)

// Pipeline Prometheus metrics.
var (
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of monitored operations (pipeline stages, vault calls)",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation", "status"},
	)

	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and outcome",
		},
		[]string{"tool", "status"}, // status: ok, error
	)

	DegradedRetrievalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_retrievals_total",
			Help:      "Retrievals answered with an empty or partial candidate set because the vault was unavailable",
		},
	)
)

var (
	vaultMetricsRegistered    bool
	pipelineMetricsRegistered bool
)

// RegisterVaultMetrics registers vault client metrics. Must be called once from main.
func RegisterVaultMetrics() {
	if vaultMetricsRegistered {
		return
	}
	prometheus.MustRegister(VaultRequestsTotal)
	prometheus.MustRegister(VaultRequestDuration)
	prometheus.MustRegister(VaultRetriesTotal)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(ResponseCacheTotal)
	prometheus.MustRegister(SharedCacheTotal)
	vaultMetricsRegistered = true
}

// RegisterPipelineMetrics registers retrieval pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(DegradedRetrievalsTotal)
	prometheus.MustRegister(ToolExecutionsTotal)
	pipelineMetricsRegistered = true
}

// OperationObserver mirrors perf.Monitor records into OperationDuration.
type OperationObserver struct{}

// Observe implements perf.Observer.
func (OperationObserver) Observe(operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}
