package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishSuccessTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postline_publish_success_total",
			Help: "Total successful publish operations",
		},
	)

	PublishRetryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postline_publish_retry_total",
			Help: "Total publish attempts rescheduled after a retryable failure",
		},
	)

	PublishFailTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postline_publish_fail_total",
			Help: "Total publish operations that ended in failed status",
		},
	)

	PostStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postline_post_status_transitions_total",
			Help: "Post status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	GatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postline_gateway_errors_total",
			Help: "Messaging gateway errors by action and retryability",
		},
		[]string{"action", "retryable"},
	)

	SuggestionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postline_suggestions_created_total",
			Help: "Total suggestions accepted by the intake",
		},
	)
)

// RecordTransition increments the labeled transition counter. Kept as a
// helper so every call site labels consistently.
func RecordTransition(from, to string) {
	PostStatusTransitionsTotal.WithLabelValues(from, to).Inc()
}
