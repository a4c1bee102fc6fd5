package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agritrade"

// Compensation steps reported by the workflow services.
const (
	StepDeleteUpload       = "delete_upload"
	StepConfirmReservation = "confirm_reservation"
	StepReserveStock       = "reserve_stock"
	StepReleaseReservation = "release_reservation"
	StepTerminateOrder     = "terminate_order"
	StepRecordActivity     = "record_activity"
)

// WorkflowMetrics counts workflow outcomes that are logged and swallowed
// instead of failing the request.
type WorkflowMetrics struct {
	compensationFailures *prometheus.CounterVec
	reservations         *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow counters on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	compensation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_compensation_failures_total",
		Help:      "Best-effort workflow steps that failed and were swallowed.",
	}, []string{"step"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_reservations_total",
		Help:      "Stock reservation transitions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(compensation, reservations)
	return &WorkflowMetrics{
		compensationFailures: compensation,
		reservations:         reservations,
	}
}

// IncCompensationFailure counts a swallowed failure of the named step.
func (w *WorkflowMetrics) IncCompensationFailure(step string) {
	if w == nil || w.compensationFailures == nil {
		return
	}
	w.compensationFailures.WithLabelValues(normalizeLabel(step)).Inc()
}

// IncReservation counts a reservation transition (reserved, confirmed, released, expired).
func (w *WorkflowMetrics) IncReservation(outcome string) {
	if w == nil || w.reservations == nil {
		return
	}
	w.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// CompensationFailures reads the current count for a step.
func (w *WorkflowMetrics) CompensationFailures(step string) float64 {
	if w == nil || w.compensationFailures == nil {
		return 0
	}
	return counterValue(w.compensationFailures.WithLabelValues(normalizeLabel(step)))
}
