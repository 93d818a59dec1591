// Package capacity derives slot occupancy from the live assignment set.
// Counts are always recomputed, never incrementally maintained, so a partial
// failure elsewhere can never leave a drifted counter behind.
package capacity

import (
	"context"

	"center-scheduler/metrics"
	"center-scheduler/models"
	"center-scheduler/store"
)

// Provider returns the configured capacity of a slot. Capacity is external
// configuration, not derived from assignments.
type Provider func(centerID string, shift models.Shift) int

// Tracker computes occupancy for (center, date, shift) slots.
type Tracker struct {
	store       store.Store
	capacityFor Provider
}

// NewTracker constructs a Tracker backed by the given store and capacity
// configuration.
func NewTracker(st store.Store, capacityFor Provider) *Tracker {
	return &Tracker{store: st, capacityFor: capacityFor}
}

// Compute derives the occupancy of one slot from the live assignment set.
func (t *Tracker) Compute(ctx context.Context, centerID, date string, shift models.Shift) (models.SlotCapacity, error) {
	shiftWindow, err := shift.Window(date)
	if err != nil {
		return models.SlotCapacity{}, err
	}
	assignments, err := t.store.ListAssignments(ctx, store.AssignmentFilter{
		CenterID:   centerID,
		ActiveOnly: true,
	})
	if err != nil {
		return models.SlotCapacity{}, err
	}

	occupied := 0
	for _, a := range assignments {
		if occupiesSlot(a, date, shift, shiftWindow) {
			occupied++
		}
	}

	cap := t.capacityFor(centerID, shift)
	return models.SlotCapacity{
		CenterID:  centerID,
		Date:      date,
		Shift:     shift,
		Capacity:  cap,
		Occupied:  occupied,
		Available: cap - occupied,
	}, nil
}

// ComputeDay derives occupancy for all three shifts of a center day.
func (t *Tracker) ComputeDay(ctx context.Context, centerID, date string) ([]models.SlotCapacity, error) {
	results := make([]models.SlotCapacity, 0, len(models.Shifts))
	for _, shift := range models.Shifts {
		sc, err := t.Compute(ctx, centerID, date, shift)
		if err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	return results, nil
}

// Publish recomputes a slot and exports its occupancy gauges. Mutating
// scheduler operations call this after every successful change.
func (t *Tracker) Publish(ctx context.Context, centerID, date string, shift models.Shift) error {
	sc, err := t.Compute(ctx, centerID, date, shift)
	if err != nil {
		return err
	}
	metrics.SlotOccupied.WithLabelValues(centerID, string(shift)).Set(float64(sc.Occupied))
	metrics.SlotAvailable.WithLabelValues(centerID, string(shift)).Set(float64(sc.Available))
	return nil
}

// occupiesSlot reports whether the assignment counts against the slot.
// Shift-created assignments match by the recorded shift; window-created ones
// match by overlap with the shift window.
func occupiesSlot(a models.Assignment, date string, shift models.Shift, shiftWindow models.Window) bool {
	if a.Shift != "" {
		return a.Shift == shift && a.Date() == date
	}
	return a.Window().Overlaps(shiftWindow)
}

// Utilization labels and colors in display order of severity. These values
// are a presentation contract shared with the console and must not change.
const (
	LabelNearFull  = "near full"
	LabelBusy      = "busy"
	LabelMedium    = "medium"
	LabelAvailable = "available"

	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorGreen  = "green"
)

// Classify maps slot occupancy onto its display label and color:
// >=90% near full/red, >=75% busy/orange, >=50% medium/yellow, otherwise
// available/green.
func Classify(occupied, capacity int) (label, color string) {
	if capacity <= 0 {
		return LabelNearFull, ColorRed
	}
	percent := float64(occupied) * 100 / float64(capacity)
	switch {
	case percent >= 90:
		return LabelNearFull, ColorRed
	case percent >= 75:
		return LabelBusy, ColorOrange
	case percent >= 50:
		return LabelMedium, ColorYellow
	default:
		return LabelAvailable, ColorGreen
	}
}
