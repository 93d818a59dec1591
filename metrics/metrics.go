// Package metrics provides Prometheus observability metrics for the
// assignment scheduler and the walk-in queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// =============================================================================
// SCHEDULER METRICS
// =============================================================================

// AssignmentsCreatedTotal counts successfully created assignments.
var AssignmentsCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "assignments_created_total",
	Help:      "Total number of assignments successfully created",
})

// AssignmentsMutatedTotal counts successful mutations by operation
// (reschedule, reassign, noshow, cancel).
var AssignmentsMutatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "assignments_mutated_total",
	Help:      "Total number of successful assignment mutations by operation",
}, []string{"operation"})

// ConflictsDetectedTotal counts double-bookings rejected by the conflict
// detector, by the operation that triggered the check.
var ConflictsDetectedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "conflicts_detected_total",
	Help:      "Total number of overlapping assignments rejected, by operation",
}, []string{"operation"})

// ForcedOverridesTotal counts assignments created despite a known conflict.
// Every increment corresponds to an audit log line.
var ForcedOverridesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "forced_overrides_total",
	Help:      "Total number of assignments force-created over a detected conflict",
})

// StaleWritesTotal counts compare-and-swap updates lost to a concurrent
// writer. Sustained growth means two sessions are editing the same slots.
var StaleWritesTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "stale_writes_total",
	Help:      "Total number of updates rejected because the record version was stale",
}, []string{"kind"})

// OpDurationSeconds tracks the duration of scheduler operations.
var OpDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "scheduler",
	Name:      "op_duration_seconds",
	Help:      "Time taken by scheduler operations",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
}, []string{"operation"})

// =============================================================================
// CAPACITY METRICS
// =============================================================================

// SlotOccupied tracks the derived occupied count per center and shift.
var SlotOccupied = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "capacity",
	Name:      "slot_occupied",
	Help:      "Occupied count of the most recently recomputed slot per center and shift",
}, []string{"center", "shift"})

// SlotAvailable tracks the derived available count per center and shift.
var SlotAvailable = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "capacity",
	Name:      "slot_available",
	Help:      "Available count of the most recently recomputed slot per center and shift",
}, []string{"center", "shift"})

// =============================================================================
// QUEUE METRICS
// =============================================================================

// QueueTicketsTotal counts queue lifecycle events by kind
// (added, reordered, no_show, converted).
var QueueTicketsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "tickets_total",
	Help:      "Total queue ticket lifecycle events by kind",
}, []string{"kind"})

// QueueDepth tracks the active (waiting/ready) ticket count per center.
var QueueDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "queue",
	Name:      "depth",
	Help:      "Number of active tickets in the walk-in queue per center",
}, []string{"center"})

// StaleReordersTotal counts reorders rejected for not matching the current
// active queue snapshot.
var StaleReordersTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "stale_reorders_total",
	Help:      "Total reorder requests rejected as derived from a stale queue snapshot",
})
