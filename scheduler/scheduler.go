// Package scheduler orchestrates assignment lifecycle operations. Every
// mutation runs validation first, then conflict detection, then a
// compare-and-swap store write, and finally republishes the touched slot's
// capacity from the live assignment set.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"center-scheduler/capacity"
	"center-scheduler/errors"
	"center-scheduler/metrics"
	"center-scheduler/models"
	"center-scheduler/store"
)

// Clock provides time keeping; overridable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// Scheduler performs assignment scheduling backed by a Store.
type Scheduler struct {
	store    store.Store
	detector *Detector
	tracker  *capacity.Tracker
	locks    SlotLocker
	clock    Clock
	logger   *log.Logger
}

// New constructs a Scheduler. Nil clock defaults to the system clock; nil
// locks defaults to in-process locking.
func New(st store.Store, tracker *capacity.Tracker, locks SlotLocker, clock Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = systemClock{}
	}
	if locks == nil {
		locks = NewLocalSlotLocker()
	}
	return &Scheduler{
		store:    st,
		detector: NewDetector(st),
		tracker:  tracker,
		locks:    locks,
		clock:    clock,
		logger:   logger,
	}
}

// Detector exposes the conflict detector for read-only checks.
func (s *Scheduler) Detector() *Detector { return s.detector }

// CreateInput carries the fields of a create request. The window may be given
// either as a concrete Start/End pair or as Date+Shift; exactly one work item
// reference (BookingID or ServiceRequestID) must be set. Force acknowledges a
// previously disclosed conflict and creates anyway.
type CreateInput struct {
	CenterID         string
	TechnicianID     string
	BookingID        string
	ServiceRequestID string
	Start            time.Time
	End              time.Time
	Date             string
	Shift            models.Shift
	Note             string
	Force            bool
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.TechnicianID) == "" {
		return &errors.ValidationError{Field: "technicianId", Err: errors.ErrMissingTechnician}
	}
	if strings.TrimSpace(in.CenterID) == "" {
		return &errors.ValidationError{Field: "centerId", Err: errors.ErrMissingCenter}
	}
	hasBooking := strings.TrimSpace(in.BookingID) != ""
	hasRequest := strings.TrimSpace(in.ServiceRequestID) != ""
	if hasBooking == hasRequest {
		return &errors.ValidationError{Field: "bookingId", Err: errors.ErrWorkItemRequired}
	}
	return nil
}

// resolveWindow fills Start/End from Date+Shift when the discrete form was
// used, and derives the shift when the window coincides with one.
func (in *CreateInput) resolveWindow() error {
	if in.Shift != "" && in.Date != "" {
		w, err := in.Shift.Window(in.Date)
		if err != nil {
			return &errors.ValidationError{Field: "date", Err: err}
		}
		in.Start, in.End = w.Start, w.End
		return nil
	}
	if in.Start.IsZero() || in.End.IsZero() || !in.Start.Before(in.End) {
		return &errors.ValidationError{Field: "plannedStartUtc", Err: errors.ErrInvalidWindow}
	}
	if shift, ok := models.ShiftForWindow(models.Window{Start: in.Start, End: in.End}); ok {
		in.Shift = shift
	}
	return nil
}

// Create validates the request, checks for conflicts under the slot lock and
// persists a new assignment with status Assigned. A detected conflict is
// returned as *errors.ConflictError with the colliding records and nothing is
// created, unless Force is set, in which case the override is audit-logged
// and creation proceeds.
func (s *Scheduler) Create(ctx context.Context, in CreateInput) (models.Assignment, error) {
	timer := prometheus.NewTimer(metrics.OpDurationSeconds.WithLabelValues("create"))
	defer timer.ObserveDuration()

	if err := in.validate(); err != nil {
		return models.Assignment{}, err
	}
	if err := in.resolveWindow(); err != nil {
		return models.Assignment{}, err
	}

	release, err := s.acquireSlots(ctx, in.TechnicianID, in.Start, in.End)
	if err != nil {
		return models.Assignment{}, err
	}
	defer release()

	window := models.Window{Start: in.Start, End: in.End}
	check, err := s.detector.Check(ctx, in.TechnicianID, window, "")
	if err != nil {
		return models.Assignment{}, err
	}
	if check.HasConflict {
		if !in.Force {
			metrics.ConflictsDetectedTotal.WithLabelValues("create").Inc()
			return models.Assignment{}, &errors.ConflictError{TechnicianID: in.TechnicianID, Conflicts: check.Conflicts}
		}
		metrics.ForcedOverridesTotal.Inc()
		s.logf("OVERRIDE technician=%s window=[%s,%s) forced over %d conflict(s): %s",
			in.TechnicianID, in.Start.Format(time.RFC3339), in.End.Format(time.RFC3339),
			len(check.Conflicts), conflictIDs(check.Conflicts))
	}

	now := s.clock.Now()
	a := models.Assignment{
		ID:               uuid.NewString(),
		CenterID:         in.CenterID,
		TechnicianID:     in.TechnicianID,
		BookingID:        in.BookingID,
		ServiceRequestID: in.ServiceRequestID,
		StartUTC:         in.Start,
		EndUTC:           in.End,
		Shift:            in.Shift,
		Status:           models.StatusAssigned,
		Note:             in.Note,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	created, err := s.store.CreateAssignment(ctx, a)
	if err != nil {
		return models.Assignment{}, err
	}
	metrics.AssignmentsCreatedTotal.Inc()
	s.republish(ctx, created)
	return created, nil
}

// Reschedule moves an assignment to a new window. The conflict check excludes
// the assignment's own id; status is left unchanged.
func (s *Scheduler) Reschedule(ctx context.Context, id string, newWindow models.Window, reason string) (models.Assignment, error) {
	timer := prometheus.NewTimer(metrics.OpDurationSeconds.WithLabelValues("reschedule"))
	defer timer.ObserveDuration()

	if newWindow.Start.IsZero() || !newWindow.Start.Before(newWindow.End) {
		return models.Assignment{}, &errors.ValidationError{Field: "newPlannedStartUtc", Err: errors.ErrInvalidWindow}
	}
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status.IsTerminal() {
		return models.Assignment{}, &errors.ValidationError{Err: errors.ErrAlreadyTerminal}
	}

	release, err := s.acquireSlots(ctx, a.TechnicianID, newWindow.Start, newWindow.End)
	if err != nil {
		return models.Assignment{}, err
	}
	defer release()

	check, err := s.detector.Check(ctx, a.TechnicianID, newWindow, a.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if check.HasConflict {
		metrics.ConflictsDetectedTotal.WithLabelValues("reschedule").Inc()
		return models.Assignment{}, &errors.ConflictError{TechnicianID: a.TechnicianID, Conflicts: check.Conflicts}
	}

	oldDate, oldShift := a.Date(), a.Shift
	a.StartUTC, a.EndUTC = newWindow.Start, newWindow.End
	if shift, ok := models.ShiftForWindow(newWindow); ok {
		a.Shift = shift
	} else {
		a.Shift = ""
	}
	a.Note = appendNote(a.Note, reason)
	a.UpdatedAt = s.clock.Now()

	updated, err := s.updateCAS(ctx, a)
	if err != nil {
		return models.Assignment{}, err
	}
	metrics.AssignmentsMutatedTotal.WithLabelValues("reschedule").Inc()
	s.republishSlot(ctx, updated.CenterID, oldDate, oldShift)
	s.republish(ctx, updated)
	return updated, nil
}

// Reassign hands the assignment to another technician. The conflict check
// runs against the new technician's other assignments; on success the status
// becomes Reassigned. A conflict leaves the original technician untouched.
func (s *Scheduler) Reassign(ctx context.Context, id, newTechnicianID, reason string) (models.Assignment, error) {
	timer := prometheus.NewTimer(metrics.OpDurationSeconds.WithLabelValues("reassign"))
	defer timer.ObserveDuration()

	if strings.TrimSpace(newTechnicianID) == "" {
		return models.Assignment{}, &errors.ValidationError{Field: "newTechnicianId", Err: errors.ErrMissingTechnician}
	}
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}
	if !a.Status.CanTransitionTo(models.StatusReassigned) {
		return models.Assignment{}, &errors.ValidationError{Err: errors.ErrInvalidStatusMove}
	}

	release, err := s.acquireSlots(ctx, newTechnicianID, a.StartUTC, a.EndUTC)
	if err != nil {
		return models.Assignment{}, err
	}
	defer release()

	check, err := s.detector.Check(ctx, newTechnicianID, a.Window(), a.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if check.HasConflict {
		metrics.ConflictsDetectedTotal.WithLabelValues("reassign").Inc()
		return models.Assignment{}, &errors.ConflictError{TechnicianID: newTechnicianID, Conflicts: check.Conflicts}
	}

	a.TechnicianID = newTechnicianID
	a.Status = models.StatusReassigned
	a.Note = appendNote(a.Note, reason)
	a.UpdatedAt = s.clock.Now()

	updated, err := s.updateCAS(ctx, a)
	if err != nil {
		return models.Assignment{}, err
	}
	metrics.AssignmentsMutatedTotal.WithLabelValues("reassign").Inc()
	s.republish(ctx, updated)
	return updated, nil
}

// MarkNoShow cancels an assignment whose customer did not arrive. Permitted
// only from Pending or Assigned; already-terminal assignments are rejected.
func (s *Scheduler) MarkNoShow(ctx context.Context, id string) (models.Assignment, error) {
	timer := prometheus.NewTimer(metrics.OpDurationSeconds.WithLabelValues("noshow"))
	defer timer.ObserveDuration()

	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.Status != models.StatusPending && a.Status != models.StatusAssigned {
		if a.Status.IsTerminal() {
			return models.Assignment{}, &errors.ValidationError{Err: errors.ErrAlreadyTerminal}
		}
		return models.Assignment{}, &errors.ValidationError{Err: errors.ErrInvalidStatusMove}
	}

	a.Status = models.StatusCancelled
	a.Note = appendNote(a.Note, fmt.Sprintf("no-show recorded at %s", s.clock.Now().Format(time.RFC3339)))
	a.UpdatedAt = s.clock.Now()

	updated, err := s.updateCAS(ctx, a)
	if err != nil {
		return models.Assignment{}, err
	}
	metrics.AssignmentsMutatedTotal.WithLabelValues("noshow").Inc()
	s.republish(ctx, updated)
	return updated, nil
}

// Cancel cancels an assignment. Cancelling an already-cancelled assignment is
// a no-op, not an error; cancelling a completed one is rejected.
func (s *Scheduler) Cancel(ctx context.Context, id string, byCustomer bool) (models.Assignment, error) {
	timer := prometheus.NewTimer(metrics.OpDurationSeconds.WithLabelValues("cancel"))
	defer timer.ObserveDuration()

	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}
	switch a.Status {
	case models.StatusCancelled, models.StatusCancelledByCustomer:
		return a, nil
	case models.StatusCompleted:
		return models.Assignment{}, &errors.ValidationError{Err: errors.ErrAlreadyTerminal}
	}

	target := models.StatusCancelled
	if byCustomer {
		target = models.StatusCancelledByCustomer
	}
	if !a.Status.CanTransitionTo(target) {
		return models.Assignment{}, &errors.ValidationError{Err: errors.ErrInvalidStatusMove}
	}

	a.Status = target
	a.UpdatedAt = s.clock.Now()

	updated, err := s.updateCAS(ctx, a)
	if err != nil {
		return models.Assignment{}, err
	}
	metrics.AssignmentsMutatedTotal.WithLabelValues("cancel").Inc()
	s.republish(ctx, updated)
	return updated, nil
}

// Get returns one assignment by id.
func (s *Scheduler) Get(ctx context.Context, id string) (models.Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// List returns assignments matching the filter.
func (s *Scheduler) List(ctx context.Context, filter store.AssignmentFilter) ([]models.Assignment, error) {
	return s.store.ListAssignments(ctx, filter)
}

func (s *Scheduler) updateCAS(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	updated, err := s.store.UpdateAssignment(ctx, a)
	var stale *errors.StaleVersionError
	if stderrors.As(err, &stale) {
		metrics.StaleWritesTotal.WithLabelValues(stale.Kind).Inc()
	}
	return updated, err
}

// republish recomputes the capacity gauges of the assignment's slot.
func (s *Scheduler) republish(ctx context.Context, a models.Assignment) {
	s.republishSlot(ctx, a.CenterID, a.Date(), a.Shift)
}

func (s *Scheduler) republishSlot(ctx context.Context, centerID, date string, shift models.Shift) {
	if s.tracker == nil {
		return
	}
	shifts := models.Shifts
	if shift != "" {
		shifts = []models.Shift{shift}
	}
	for _, sh := range shifts {
		if err := s.tracker.Publish(ctx, centerID, date, sh); err != nil {
			s.logf("capacity republish failed center=%s date=%s shift=%s: %v", centerID, date, sh, err)
		}
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// slotKeys returns one lock key per date the window touches, in date order.
// A night shift on day D spans into D+1 and must contend with a window-form
// create starting on D+1, so both days' keys are taken. Keying on the day
// rather than the shift also covers window-form assignments that span shifts.
func slotKeys(technicianID string, start, end time.Time) []string {
	last := end.UTC().Add(-time.Nanosecond)
	var keys []string
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(last); d = d.Add(24 * time.Hour) {
		keys = append(keys, technicianID+"|"+d.Format(models.DateLayout))
	}
	return keys
}

// acquireSlots takes every slot lock of the window, always in date order so
// two operations contending on overlapping windows cannot deadlock. On any
// acquisition failure the already-held locks are released.
func (s *Scheduler) acquireSlots(ctx context.Context, technicianID string, start, end time.Time) (func(), error) {
	releases := make([]func(), 0, 2)
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range slotKeys(technicianID, start, end) {
		release, err := s.locks.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func conflictIDs(conflicts []models.Assignment) string {
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

func appendNote(note, addition string) string {
	if strings.TrimSpace(addition) == "" {
		return note
	}
	if note == "" {
		return addition
	}
	return note + "; " + addition
}
