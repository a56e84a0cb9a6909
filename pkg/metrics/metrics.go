// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisioningSagasTotal tracks provisioning sagas by platform and outcome
	ProvisioningSagasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "provisioning",
			Name:      "sagas_total",
			Help:      "Total number of provisioning sagas by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	// ProvisioningSagaDuration tracks saga wall-clock duration in seconds
	ProvisioningSagaDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "provisioning",
			Name:      "saga_duration_seconds",
			Help:      "Duration of provisioning sagas in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"platform"},
	)

	// CompensationStepsTotal tracks compensating deletes by resource and outcome
	CompensationStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "provisioning",
			Name:      "compensation_steps_total",
			Help:      "Total number of compensating deletes by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	// WebhookRepairsTotal tracks webhook identifier repairs by level and outcome
	WebhookRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "webhook",
			Name:      "repairs_total",
			Help:      "Total number of webhook identifier repair attempts by level and outcome",
		},
		[]string{"level", "outcome"},
	)

	// ActivationAttemptsTotal tracks workflow activation attempts
	ActivationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "activation",
			Name:      "attempts_total",
			Help:      "Total number of workflow activation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// StateReconciliationsTotal tracks drift corrections performed before state changes
	StateReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "total",
			Help:      "Total number of state reconciliations by result",
		},
		[]string{"result"},
	)

	// EngineRequestsTotal tracks outbound workflow-engine requests
	EngineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total number of workflow engine requests",
		},
		[]string{"operation", "status_code"},
	)

	// EngineRequestDuration tracks workflow-engine request duration
	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Duration of workflow engine requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// EventsPublishedTotal tracks lifecycle events published to Kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of chatbot lifecycle events published",
		},
		[]string{"type", "status"},
	)
)

// RecordSaga records a provisioning saga outcome
func RecordSaga(platform, outcome string, durationSeconds float64) {
	ProvisioningSagasTotal.WithLabelValues(platform, outcome).Inc()
	ProvisioningSagaDuration.WithLabelValues(platform).Observe(durationSeconds)
}

// RecordCompensation records a compensating delete
func RecordCompensation(resource, outcome string) {
	CompensationStepsTotal.WithLabelValues(resource, outcome).Inc()
}

// RecordWebhookRepair records a webhook repair attempt
func RecordWebhookRepair(level, outcome string) {
	WebhookRepairsTotal.WithLabelValues(level, outcome).Inc()
}

// RecordActivationAttempt records one activation attempt
func RecordActivationAttempt(outcome string) {
	ActivationAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordStateReconciliation records a pre-state-change drift check
func RecordStateReconciliation(result string) {
	StateReconciliationsTotal.WithLabelValues(result).Inc()
}

// RecordEngineRequest records a workflow engine request
func RecordEngineRequest(operation, statusCode string, durationSeconds float64) {
	EngineRequestsTotal.WithLabelValues(operation, statusCode).Inc()
	EngineRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordEventPublished records a lifecycle event publish
func RecordEventPublished(eventType, status string) {
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
