package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsifi_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulsifi_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ValidationFailures counts rejected entities by kind and field.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsifi_validation_failures_total",
		Help: "Total number of validation failures by entity and field",
	}, []string{"entity", "field"})

	// VisibilityCascadeSize records how many replies a pulse visibility change touched.
	VisibilityCascadeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsifi_visibility_cascade_replies",
		Help:    "Number of replies updated by a pulse visibility cascade",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	// ReactionsTotal counts like/dislike/clear operations by content type.
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsifi_reactions_total",
		Help: "Total reaction changes by content type and kind",
	}, []string{"content_type", "kind"})

	// ReportsAssigned counts reports that received a moderator.
	ReportsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsifi_reports_assigned_total",
		Help: "Total number of reports assigned to a moderator",
	})

	// ReportsRejected counts report validations that failed by reason.
	ReportsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsifi_reports_rejected_total",
		Help: "Total number of report validations that failed",
	}, []string{"reason"})

	// FeedCacheLookups counts feed cache hits and misses.
	FeedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsifi_feed_cache_lookups_total",
		Help: "Feed cache lookups by result",
	}, []string{"result"})
)

// DatabaseMetrics records query latency.
type DatabaseMetrics struct{}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics() *DatabaseMetrics {
	return &DatabaseMetrics{}
}

// ObserveQuery records the latency of a database query.
func (*DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
