// Package surface is the interaction layer of the assignment calendar. It is
// deliberately UI-toolkit-free: a drag gesture reaches it as a
// (sourceId, targetCompositeKey) event, so keyboard- or click-driven
// assignment can be substituted without touching scheduling logic.
package surface

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"center-scheduler/errors"
	"center-scheduler/models"
	"center-scheduler/scheduler"
)

// Backend is the scheduler capability the surface talks to. The networked
// client and the in-memory scheduler both satisfy it; they are wired
// explicitly and never substituted for each other at runtime.
type Backend interface {
	Create(ctx context.Context, in scheduler.CreateInput) (models.Assignment, error)
}

// Notifier surfaces the outcome of every mutating action to the user.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Failure(string) {}

const cellKeySeparator = "|"

// EncodeCellKey builds the composite drop-target key of a (date, shift) cell.
func EncodeCellKey(date string, shift models.Shift) string {
	return date + cellKeySeparator + string(shift)
}

// DecodeCellKey splits a composite cell key back into date and shift.
func DecodeCellKey(key string) (date string, shift models.Shift, err error) {
	parts := strings.SplitN(key, cellKeySeparator, 2)
	if len(parts) != 2 {
		return "", "", &errors.ValidationError{Field: "targetKey", Err: fmt.Errorf("malformed cell key %q", key)}
	}
	shift, err = models.ParseShift(parts[1])
	if err != nil {
		return "", "", &errors.ValidationError{Field: "targetKey", Err: err}
	}
	return parts[0], shift, nil
}

// DropEvent is a completed drag of a technician onto a calendar cell.
// SourceID is the technician id; TargetKey is an EncodeCellKey value.
type DropEvent struct {
	SourceID         string
	TargetKey        string
	CenterID         string
	BookingID        string
	ServiceRequestID string
	Note             string
	Force            bool
}

// Command is one optimistic assignment mutation: issued against local state
// first, then confirmed or rolled back when the backend answers. It exists so
// the compensating action is testable independent of any UI.
type Command struct {
	surface     *Surface
	placeholder models.Assignment
	pending     bool
}

// Pending reports whether the backend call has not settled yet.
func (c *Command) Pending() bool { return c.pending }

// Placeholder returns the optimistic local record.
func (c *Command) Placeholder() models.Assignment { return c.placeholder }

func (c *Command) confirm(confirmed models.Assignment) {
	c.surface.replaceLocal(c.placeholder.ID, confirmed)
	c.pending = false
}

func (c *Command) rollback() {
	c.surface.removeLocal(c.placeholder.ID)
	c.pending = false
}

// Surface holds the calendar's local assignment state and translates
// interaction events into scheduler calls.
type Surface struct {
	mu          sync.Mutex
	backend     Backend
	notify      Notifier
	assignments []models.Assignment
}

// New constructs a Surface.
func New(backend Backend, notify Notifier) *Surface {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Surface{backend: backend, notify: notify}
}

// Load replaces local state with a fresh server snapshot.
func (s *Surface) Load(assignments []models.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append([]models.Assignment(nil), assignments...)
}

// Assignments returns a copy of the current local state.
func (s *Surface) Assignments() []models.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Assignment(nil), s.assignments...)
}

// HandleDrop turns a drop event into an assignment. The duplicate pre-check
// against local state runs first; it is redundant with server-side conflict
// detection on purpose, both layers reject duplicates independently.
func (s *Surface) HandleDrop(ctx context.Context, ev DropEvent) (models.Assignment, error) {
	date, shift, err := DecodeCellKey(ev.TargetKey)
	if err != nil {
		s.notify.Failure(err.Error())
		return models.Assignment{}, err
	}

	if dup, ok := s.localDuplicate(ev.SourceID, date, shift); ok && !ev.Force {
		err := &errors.ConflictError{TechnicianID: ev.SourceID, Conflicts: []models.Assignment{dup}}
		s.notify.Failure(err.Error())
		return models.Assignment{}, err
	}

	return s.assign(ctx, scheduler.CreateInput{
		CenterID:         ev.CenterID,
		TechnicianID:     ev.SourceID,
		BookingID:        ev.BookingID,
		ServiceRequestID: ev.ServiceRequestID,
		Date:             date,
		Shift:            shift,
		Note:             ev.Note,
		Force:            ev.Force,
	})
}

// SubmitDialog runs a dialog-entered assignment through the same optimistic
// command path as a drop.
func (s *Surface) SubmitDialog(ctx context.Context, in scheduler.CreateInput) (models.Assignment, error) {
	return s.assign(ctx, in)
}

// assign applies the optimistic update, issues the backend call, and
// confirms or rolls back when it settles.
func (s *Surface) assign(ctx context.Context, in scheduler.CreateInput) (models.Assignment, error) {
	placeholder := models.Assignment{
		ID:               "pending-" + uuid.NewString(),
		CenterID:         in.CenterID,
		TechnicianID:     in.TechnicianID,
		BookingID:        in.BookingID,
		ServiceRequestID: in.ServiceRequestID,
		StartUTC:         in.Start,
		EndUTC:           in.End,
		Shift:            in.Shift,
		Status:           models.StatusPending,
	}
	if in.Shift != "" && in.Date != "" {
		if w, err := in.Shift.Window(in.Date); err == nil {
			placeholder.StartUTC, placeholder.EndUTC = w.Start, w.End
		}
	}

	cmd := &Command{surface: s, placeholder: placeholder, pending: true}
	s.addLocal(placeholder)

	confirmed, err := s.backend.Create(ctx, in)
	if err != nil {
		cmd.rollback()
		s.notify.Failure(fmt.Sprintf("assignment failed: %v", err))
		return models.Assignment{}, err
	}
	cmd.confirm(confirmed)
	s.notify.Success(fmt.Sprintf("technician %s assigned", confirmed.TechnicianID))
	return confirmed, nil
}

// localDuplicate finds a non-terminal local assignment occupying the same
// (technician, date, shift).
func (s *Surface) localDuplicate(technicianID, date string, shift models.Shift) (models.Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.TechnicianID == technicianID && a.Date() == date && a.Shift == shift && !a.Status.IsTerminal() {
			return a, true
		}
	}
	return models.Assignment{}, false
}

func (s *Surface) addLocal(a models.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, a)
}

func (s *Surface) replaceLocal(id string, replacement models.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.ID == id {
			s.assignments[i] = replacement
			return
		}
	}
	s.assignments = append(s.assignments, replacement)
}

func (s *Surface) removeLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.ID == id {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return
		}
	}
}
