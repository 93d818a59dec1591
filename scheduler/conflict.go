package scheduler

import (
	"context"

	"center-scheduler/models"
	"center-scheduler/store"
)

// ConflictResult is the explicit outcome of a conflict check. HasConflict is
// always set; Conflicts carries the colliding records for disclosure.
type ConflictResult struct {
	HasConflict bool                `json:"hasConflict"`
	Conflicts   []models.Assignment `json:"conflicts"`
}

// Detector decides whether a proposed window overlaps a technician's
// existing assignments. It is read-only and never mutates state.
type Detector struct {
	store store.Store
}

// NewDetector constructs a Detector backed by the given store.
func NewDetector(st store.Store) *Detector {
	return &Detector{store: st}
}

// Check fetches the technician's non-terminal assignments and tests each
// against the proposed half-open window. Two intervals conflict iff
// existing.Start < proposed.End && existing.End > proposed.Start; because
// the shifts of a day map to disjoint windows this also rejects a duplicate
// (technician, date, shift) slot. excludeID skips one assignment so that
// reschedule and reassign can check against all other assignments.
func (d *Detector) Check(ctx context.Context, technicianID string, proposed models.Window, excludeID string) (ConflictResult, error) {
	existing, err := d.store.ListAssignments(ctx, store.AssignmentFilter{
		TechnicianID: technicianID,
		ActiveOnly:   true,
	})
	if err != nil {
		return ConflictResult{}, err
	}

	result := ConflictResult{Conflicts: make([]models.Assignment, 0)}
	for _, a := range existing {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Window().Overlaps(proposed) {
			result.Conflicts = append(result.Conflicts, a)
		}
	}
	result.HasConflict = len(result.Conflicts) > 0
	return result, nil
}
