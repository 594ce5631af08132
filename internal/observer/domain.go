package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orchestration outcomes.
var (
	bookingsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_submitted_total",
		Help:      "Public booking submissions by result (created, replayed, rejected).",
	}, []string{"workspace_id", "result"})

	automationStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_steps_total",
		Help:      "Downstream booking steps by step name and status.",
	}, []string{"workspace_id", "step", "status"})

	messageDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "message_deliveries_total",
		Help:      "Outbound message deliveries by channel and final status.",
	}, []string{"workspace_id", "channel", "status"})

	deliveryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "message_delivery_duration_seconds",
		Help:      "Time from dispatch to JetStream ack for outbound messages.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"workspace_id", "channel"})

	alertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_raised_total",
		Help:      "Alerts raised or escalated, by type and severity.",
	}, []string{"workspace_id", "type", "severity"})

	activationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activation_attempts_total",
		Help:      "Workspace activation attempts by result (activated, already_active, blocked).",
	}, []string{"workspace_id", "result"})

	remindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_total",
		Help:      "Reminder intents by action (scheduled, skipped, cancelled, fired).",
	}, []string{"workspace_id", "action"})

	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Read-through cache lookups by key kind and result (hit, miss, error).",
	}, []string{"kind", "result"})
)

// Worker pools.
var (
	poolLabels = []string{"pool"}

	poolTasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_tasks_submitted_total",
		Help:      "Tasks submitted to a worker pool.",
	}, poolLabels)

	poolRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_running_workers",
		Help:      "Workers currently running in a pool.",
	}, poolLabels)

	poolWaiting = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_waiting_tasks",
		Help:      "Callers blocked waiting for a free worker.",
	}, poolLabels)
)

// Load generator.
var (
	loadgenLabels = []string{"subject", "workspace_id"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_attempted_total",
		Help:      "Messages the load generator attempted to publish.",
	}, loadgenLabels)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_published_total",
		Help:      "Messages successfully published by the load generator.",
	}, loadgenLabels)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_publish_errors_total",
		Help:      "Publish errors seen by the load generator.",
	}, loadgenLabels)
)

func IncBookingsSubmitted(workspaceID, result string) {
	if Enabled() {
		bookingsSubmittedTotal.WithLabelValues(sanitizeWorkspace(workspaceID), result).Inc()
	}
}

func IncAutomationStep(workspaceID, step, status string) {
	if Enabled() {
		automationStepsTotal.WithLabelValues(sanitizeWorkspace(workspaceID), step, status).Inc()
	}
}

func IncMessageDelivery(workspaceID, channel, status string) {
	if Enabled() {
		messageDeliveriesTotal.WithLabelValues(sanitizeWorkspace(workspaceID), channel, status).Inc()
	}
}

func ObserveDeliveryDuration(workspaceID, channel string, d time.Duration) {
	if Enabled() {
		deliveryDurationSeconds.WithLabelValues(sanitizeWorkspace(workspaceID), channel).Observe(d.Seconds())
	}
}

func IncAlertRaised(workspaceID, alertType, severity string) {
	if Enabled() {
		alertsRaisedTotal.WithLabelValues(sanitizeWorkspace(workspaceID), alertType, severity).Inc()
	}
}

func IncActivationAttempt(workspaceID, result string) {
	if Enabled() {
		activationAttemptsTotal.WithLabelValues(sanitizeWorkspace(workspaceID), result).Inc()
	}
}

func IncReminders(workspaceID, action string, n int) {
	if Enabled() && n > 0 {
		remindersTotal.WithLabelValues(sanitizeWorkspace(workspaceID), action).Add(float64(n))
	}
}

func IncCacheRequest(kind, result string) {
	if Enabled() {
		cacheRequestsTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncPoolTasksSubmitted counts a task handed to the named pool.
func IncPoolTasksSubmitted(pool string) {
	if Enabled() {
		poolTasksSubmittedTotal.WithLabelValues(pool).Inc()
	}
}

// SetPoolStats publishes running and waiting counts of the named pool.
func SetPoolStats(pool string, running, waiting int) {
	if Enabled() {
		poolRunning.WithLabelValues(pool).Set(float64(running))
		poolWaiting.WithLabelValues(pool).Set(float64(waiting))
	}
}

func IncLoadgenMessagesAttempted(subject, workspaceID string) {
	if Enabled() {
		loadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeWorkspace(workspaceID)).Inc()
	}
}

func IncLoadgenMessagesPublished(subject, workspaceID string) {
	if Enabled() {
		loadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeWorkspace(workspaceID)).Inc()
	}
}

func IncLoadgenPublishErrors(subject, workspaceID string) {
	if Enabled() {
		loadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeWorkspace(workspaceID)).Inc()
	}
}
