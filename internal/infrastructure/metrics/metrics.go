package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Vault metrics
	Operations        *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Compensations     *prometheus.CounterVec
	TotalValue        prometheus.Gauge
	BankCap           prometheus.Gauge

	// Oracle metrics
	OracleLookups *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBConnections prometheus.Gauge

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

// New creates and registers all Prometheus metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all Prometheus metrics and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Vault metrics
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_operations_total",
				Help: "Total completed vault operations by operation and asset",
			},
			[]string{"operation", "asset"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_operation_errors_total",
				Help: "Total aborted vault operations by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govault_operation_duration_seconds",
				Help:    "Duration of vault operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Compensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_compensations_total",
				Help: "Total compensating actions by kind",
			},
			[]string{"kind"},
		),
		TotalValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govault_total_value",
			Help: "Historical-cost value held, in common-currency smallest units",
		}),
		BankCap: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govault_bank_cap",
			Help: "Configured cap on total value held",
		}),

		// Oracle metrics
		OracleLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_oracle_lookups_total",
				Help: "Total price lookups by asset and status",
			},
			[]string{"asset", "status"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govault_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govault_db_connections",
			Help: "Current number of acquired database connections",
		}),

		// Redis metrics
		RedisOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Authentication metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_auth_failures_total",
				Help: "Total authentication failures by reason",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"endpoint"},
		),

		// Outbox metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govault_events_published_total",
				Help: "Total outbox events published by type",
			},
			[]string{"event_type"},
		),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "govault_event_publish_errors_total",
			Help: "Total outbox publish failures",
		}),
	}
}
