package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Processor metrics
	ProcessorRequestsTotal   *prometheus.CounterVec
	ProcessorRequestDuration *prometheus.HistogramVec

	// Checkout lifecycle metrics
	OrdersTotal        *prometheus.CounterVec
	ApprovalsTotal     *prometheus.CounterVec
	LedgerWritesTotal  *prometheus.CounterVec
	LedgerWriteLatency prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		ProcessorRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processor_requests_total",
				Help:      "Total number of payment processor calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProcessorRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processor_request_duration_seconds",
				Help:      "Payment processor call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Total number of order operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Success-page landings by outcome",
			},
			[]string{"outcome"},
		),
		LedgerWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_writes_total",
				Help:      "Total number of ledger writes by result",
			},
			[]string{"driver", "result"},
		),
		LedgerWriteLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_write_duration_seconds",
				Help:      "Ledger write duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.ProcessorRequestsTotal,
		m.ProcessorRequestDuration,
		m.OrdersTotal,
		m.ApprovalsTotal,
		m.LedgerWritesTotal,
		m.LedgerWriteLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
	)

	return m
}
