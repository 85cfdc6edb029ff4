package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_chat_requests_total",
			Help: "Total number of chat pipeline runs by terminal status.",
		},
		[]string{"status"},
	)
	chatPipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_chat_pipeline_duration_seconds",
			Help:    "End-to-end chat pipeline latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
	)
	sqlGenerationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_sql_generation_failures_total",
			Help: "Total number of oracle calls that produced no usable SQL.",
		},
	)
	sqlRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_sql_rejected_total",
			Help: "Total number of generated statements rejected by the validator.",
		},
		[]string{"reason"},
	)
	executorAsyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_executor_async_accepted_total",
			Help: "Total number of queries acknowledged asynchronously by the executor.",
		},
	)
	schemaRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_schema_refresh_total",
			Help: "Total number of schema cache refreshes by outcome.",
		},
		[]string{"outcome"},
	)
	schemaRefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_schema_refresh_duration_seconds",
			Help:    "Schema introspection latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	auditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_audit_write_failures_total",
			Help: "Total number of swallowed audit-log write failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		chatPipelineDurationSeconds,
		sqlGenerationFailuresTotal,
		sqlRejectedTotal,
		executorAsyncTotal,
		schemaRefreshTotal,
		schemaRefreshDurationSeconds,
		auditWriteFailuresTotal,
	)
}

func ObserveChatRequest(status string, elapsed time.Duration) {
	chatRequestsTotal.WithLabelValues(status).Inc()
	chatPipelineDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementGenerationFailure() {
	sqlGenerationFailuresTotal.Inc()
}

func IncrementSQLRejected(reason string) {
	sqlRejectedTotal.WithLabelValues(reason).Inc()
}

func IncrementExecutorAsync() {
	executorAsyncTotal.Inc()
}

func ObserveSchemaRefresh(outcome string, elapsed time.Duration) {
	schemaRefreshTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		schemaRefreshDurationSeconds.Observe(elapsed.Seconds())
	}
}

func IncrementAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}
