package observer

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "careops_orchestrator"

var (
	metricsEnabled atomic.Bool

	eventProcessingLabels = []string{"event_type", "workspace_id", "consumer_type"}
	eventActionLabels     = []string{"event_type", "workspace_id", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events successfully processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events that failed processing (resulting in Nak or DLQ).",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_duration_seconds",
			Help:      "Histogram of event processing durations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_routing_duration_seconds",
			Help:      "Histogram of time spent in router.Route.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_processing_actions_total",
			Help:      "Ack decisions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)
)

// DLQ worker
var (
	dlqWorkspaceLabels = []string{"workspace_id"}

	dlqFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_fetch_requests_total",
		Help:      "Total number of fetch requests made to the DLQ stream.",
	})
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_fetch_errors_total",
		Help:      "Total number of errors encountered during DLQ fetch requests.",
	})
	dlqWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dlq_workers_active",
		Help:      "Current number of running workers in the DLQ pool.",
	})
	dlqTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_tasks_submitted_total",
			Help:      "Total number of tasks submitted to the DLQ worker pool.",
		},
		dlqWorkspaceLabels,
	)
	dlqProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dlq_processing_duration_seconds",
			Help:      "Histogram of processing durations for DLQ messages.",
			Buckets:   prometheus.DefBuckets,
		},
		dlqWorkspaceLabels,
	)
	dlqTaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_task_retries_total",
			Help:      "Total number of NakWithDelay retries for DLQ messages.",
		},
		dlqWorkspaceLabels,
	)
	dlqAcksSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_acks_success_total",
			Help:      "Total number of DLQ messages acknowledged after successful replay.",
		},
		dlqWorkspaceLabels,
	)
	dlqAcksFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_acks_failure_total",
			Help:      "Total number of failed acknowledgements for DLQ messages (excluding retries).",
		},
		dlqWorkspaceLabels,
	)
	dlqTasksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_tasks_dropped_total",
			Help:      "Total number of DLQ messages persisted as exhausted after max retries.",
		},
		dlqWorkspaceLabels,
	)
)

var (
	dbOperationLabels = []string{"operation", "entity", "workspace_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Histogram of database operation durations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric recording. promauto registers collectors at init,
// so disabling only stops the helpers from recording.
func InitMetrics(enabled bool) {
	metricsEnabled.Store(enabled)
}

// Enabled reports whether helpers record.
func Enabled() bool {
	return metricsEnabled.Load()
}

func init() {
	metricsEnabled.Store(true)
}

// sanitizeWorkspace keeps the label non-empty.
func sanitizeWorkspace(workspaceID string) string {
	if workspaceID == "" {
		return "unknown"
	}
	return workspaceID
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, workspaceID, consumerType string) {
	if !Enabled() {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, workspaceID, consumerType string) {
	if !Enabled() {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, workspaceID, consumerType string) {
	if !Enabled() {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType).Inc()
}

// ObserveEventProcessingDuration records the processing time for an event.
func ObserveEventProcessingDuration(eventType, workspaceID, consumerType string, duration time.Duration) {
	if !Enabled() {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType).Observe(duration.Seconds())
}

// ObserveEventRoutingDuration records the routing time for an event.
func ObserveEventRoutingDuration(eventType, workspaceID, consumerType string, duration time.Duration) {
	if !Enabled() {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for an ack decision.
func IncEventProcessingAction(eventType, workspaceID, consumerType, action, errorType string) {
	if !Enabled() {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeWorkspace(workspaceID), consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, workspaceID string, duration time.Duration, err error) {
	if !Enabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeWorkspace(workspaceID), status).Observe(duration.Seconds())
}

// SanitizeErrorType maps an error string onto a small label set.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "workspace is not active"):
		return "inactive"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// IncDlqFetchRequest increments the DLQ fetch request counter.
func IncDlqFetchRequest() {
	if Enabled() {
		dlqFetchRequestsTotal.Inc()
	}
}

// IncDlqFetchError increments the DLQ fetch error counter.
func IncDlqFetchError() {
	if Enabled() {
		dlqFetchErrorsTotal.Inc()
	}
}

// IncDlqTasksSubmitted increments the counter for tasks submitted to the pool.
func IncDlqTasksSubmitted(workspaceID string) {
	if Enabled() {
		dlqTasksSubmittedTotal.WithLabelValues(sanitizeWorkspace(workspaceID)).Inc()
	}
}

// SetDlqWorkersActive sets the current number of running DLQ workers.
func SetDlqWorkersActive(count int) {
	if Enabled() {
		dlqWorkersActive.Set(float64(count))
	}
}

// ObserveDlqProcessingDuration records the processing time for a DLQ message.
func ObserveDlqProcessingDuration(workspaceID string, duration time.Duration) {
	if Enabled() {
		dlqProcessingDurationSeconds.WithLabelValues(sanitizeWorkspace(workspaceID)).Observe(duration.Seconds())
	}
}

// IncDlqTaskRetry increments the counter for DLQ retries.
func IncDlqTaskRetry(workspaceID string) {
	if Enabled() {
		dlqTaskRetriesTotal.WithLabelValues(sanitizeWorkspace(workspaceID)).Inc()
	}
}

// IncDlqAckSuccess increments the counter for acknowledged DLQ replays.
func IncDlqAckSuccess(workspaceID string) {
	if Enabled() {
		dlqAcksSuccessTotal.WithLabelValues(sanitizeWorkspace(workspaceID)).Inc()
	}
}

// IncDlqAckFailure increments the counter for failed DLQ acknowledgements.
func IncDlqAckFailure(workspaceID string) {
	if Enabled() {
		dlqAcksFailureTotal.WithLabelValues(sanitizeWorkspace(workspaceID)).Inc()
	}
}

// IncDlqTasksDropped increments the counter for exhausted DLQ messages.
func IncDlqTasksDropped(workspaceID string) {
	if Enabled() {
		dlqTasksDroppedTotal.WithLabelValues(sanitizeWorkspace(workspaceID)).Inc()
	}
}
