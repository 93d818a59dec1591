// Package queue maintains the priority-ordered walk-in line of each
// (center, date). Ordering is explicit: ticket priority is advisory display
// metadata and never reorders the queue on its own.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"center-scheduler/errors"
	"center-scheduler/metrics"
	"center-scheduler/models"
	"center-scheduler/scheduler"
	"center-scheduler/store"
)

// AssignmentCreator is the slice of the scheduler the queue needs for
// converting tickets. Cancel is the compensating action when the ticket
// update loses a race after the assignment was already created.
type AssignmentCreator interface {
	Create(ctx context.Context, in scheduler.CreateInput) (models.Assignment, error)
	Cancel(ctx context.Context, id string, byCustomer bool) (models.Assignment, error)
}

// Manager maintains walk-in queues.
type Manager struct {
	store      store.Store
	creator    AssignmentCreator
	clock      scheduler.Clock
	avgService time.Duration
}

// NewManager constructs a Manager. avgService drives the estimated start of
// newly registered tickets.
func NewManager(st store.Store, creator AssignmentCreator, clock scheduler.Clock, avgService time.Duration) *Manager {
	if clock == nil {
		clock = scheduler.SystemClock()
	}
	if avgService <= 0 {
		avgService = 30 * time.Minute
	}
	return &Manager{store: st, creator: creator, clock: clock, avgService: avgService}
}

// AddInput carries walk-in registration fields.
type AddInput struct {
	CenterID         string
	Date             string
	ServiceRequestID string
	Priority         int
}

// Add registers a walk-in at the back of the queue: its queue number is one
// past the highest active number, and its estimated start is projected from
// the queue position and the average service duration.
func (m *Manager) Add(ctx context.Context, in AddInput) (models.QueueTicket, error) {
	if strings.TrimSpace(in.CenterID) == "" {
		return models.QueueTicket{}, &errors.ValidationError{Field: "centerId", Err: errors.ErrMissingCenter}
	}
	if _, err := time.ParseInLocation(models.DateLayout, in.Date, time.UTC); err != nil {
		return models.QueueTicket{}, &errors.ValidationError{Field: "date", Err: err}
	}
	if in.Priority < models.PriorityHigh || in.Priority > models.PriorityLow {
		in.Priority = models.PriorityMedium
	}

	active, err := m.Active(ctx, in.CenterID, in.Date)
	if err != nil {
		return models.QueueTicket{}, err
	}
	maxNo := 0
	for _, t := range active {
		if t.QueueNo > maxNo {
			maxNo = t.QueueNo
		}
	}

	now := m.clock.Now()
	t := models.QueueTicket{
		ID:                uuid.NewString(),
		CenterID:          in.CenterID,
		Date:              in.Date,
		ServiceRequestID:  in.ServiceRequestID,
		QueueNo:           maxNo + 1,
		Priority:          in.Priority,
		Status:            models.TicketWaiting,
		EstimatedStartUTC: now.Add(time.Duration(len(active)) * m.avgService),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err := m.store.CreateTicket(ctx, t)
	if err != nil {
		return models.QueueTicket{}, err
	}
	metrics.QueueTicketsTotal.WithLabelValues("added").Inc()
	metrics.QueueDepth.WithLabelValues(in.CenterID).Set(float64(len(active) + 1))
	return created, nil
}

// List returns every ticket of the (center, date) queue, including NoShow
// and Converted ones, ordered by queue number.
func (m *Manager) List(ctx context.Context, centerID, date string) ([]models.QueueTicket, error) {
	return m.store.ListTickets(ctx, centerID, date)
}

// Active returns only Waiting and Ready tickets, ordered by queue number.
func (m *Manager) Active(ctx context.Context, centerID, date string) ([]models.QueueTicket, error) {
	all, err := m.store.ListTickets(ctx, centerID, date)
	if err != nil {
		return nil, err
	}
	active := make([]models.QueueTicket, 0, len(all))
	for _, t := range all {
		if t.Status.ActiveTicket() {
			active = append(active, t)
		}
	}
	return active, nil
}

// Reorder renumbers the whole active queue to match orderedIDs: every ticket
// receives its 1-based index, so queue numbers stay dense after removals and
// insertions. The submitted ids must be exactly the current active id set;
// anything else means the caller reordered a stale snapshot and the whole
// operation is rejected.
func (m *Manager) Reorder(ctx context.Context, centerID, date string, orderedIDs []string) ([]models.QueueTicket, error) {
	active, err := m.Active(ctx, centerID, date)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.QueueTicket, len(active))
	for _, t := range active {
		byID[t.ID] = t
	}
	if len(orderedIDs) != len(active) {
		metrics.StaleReordersTotal.Inc()
		return nil, &errors.ValidationError{Field: "orderedIds", Err: errors.ErrStaleQueueSnapshot}
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok || seen[id] {
			metrics.StaleReordersTotal.Inc()
			return nil, &errors.ValidationError{Field: "orderedIds", Err: errors.ErrStaleQueueSnapshot}
		}
		seen[id] = true
	}

	// Renumbering is applied one CAS at a time. A mid-apply failure means a
	// concurrent session mutated a ticket after the id-set check passed; the
	// already-committed numbers are rewound to the prior order so the persisted
	// queueNo set stays dense, the same compensating pattern Convert uses.
	now := m.clock.Now()
	result := make([]models.QueueTicket, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		t := byID[id]
		t.QueueNo = i + 1
		t.UpdatedAt = now
		updated, err := m.store.UpdateTicket(ctx, t)
		if err != nil {
			metrics.StaleReordersTotal.Inc()
			m.rewindReorder(ctx, result, byID)
			return nil, err
		}
		result = append(result, updated)
	}
	metrics.QueueTicketsTotal.WithLabelValues("reordered").Inc()
	return result, nil
}

// rewindReorder restores the pre-reorder queue numbers of the tickets a failed
// Reorder already renumbered. Best effort: a ticket whose rewind CAS also
// fails was taken over by yet another session and keeps that session's state.
func (m *Manager) rewindReorder(ctx context.Context, committed []models.QueueTicket, prior map[string]models.QueueTicket) {
	for _, t := range committed {
		t.QueueNo = prior[t.ID].QueueNo
		t.UpdatedAt = m.clock.Now()
		_, _ = m.store.UpdateTicket(ctx, t)
	}
}

// MarkNoShow takes the ticket out of the active queue. The ticket remains in
// the full list for history.
func (m *Manager) MarkNoShow(ctx context.Context, id string) (models.QueueTicket, error) {
	t, err := m.store.GetTicket(ctx, id)
	if err != nil {
		return models.QueueTicket{}, err
	}
	if !t.Status.ActiveTicket() {
		return models.QueueTicket{}, &errors.ValidationError{Err: errors.ErrTicketInactive}
	}
	t.Status = models.TicketNoShow
	t.UpdatedAt = m.clock.Now()
	updated, err := m.store.UpdateTicket(ctx, t)
	if err != nil {
		return models.QueueTicket{}, err
	}
	metrics.QueueTicketsTotal.WithLabelValues("no_show").Inc()
	m.publishDepth(ctx, t.CenterID, t.Date)
	return updated, nil
}

// ConvertInput names the slot the staff scheduled the walk-in into.
type ConvertInput struct {
	TechnicianID string
	Date         string
	Shift        models.Shift
	Note         string
	Force        bool
}

// Convert turns a waiting ticket into a scheduled assignment. The assignment
// is created first; if transitioning the ticket to Converted then loses a
// concurrent race, the fresh assignment is cancelled again so neither side is
// left half-committed.
func (m *Manager) Convert(ctx context.Context, id string, in ConvertInput) (models.QueueTicket, models.Assignment, error) {
	t, err := m.store.GetTicket(ctx, id)
	if err != nil {
		return models.QueueTicket{}, models.Assignment{}, err
	}
	if !t.Status.ActiveTicket() {
		return models.QueueTicket{}, models.Assignment{}, &errors.ValidationError{Err: errors.ErrTicketInactive}
	}
	date := in.Date
	if date == "" {
		date = t.Date
	}

	a, err := m.creator.Create(ctx, scheduler.CreateInput{
		CenterID:         t.CenterID,
		TechnicianID:     in.TechnicianID,
		ServiceRequestID: t.ServiceRequestID,
		Date:             date,
		Shift:            in.Shift,
		Note:             in.Note,
		Force:            in.Force,
	})
	if err != nil {
		return models.QueueTicket{}, models.Assignment{}, err
	}

	t.Status = models.TicketConverted
	t.UpdatedAt = m.clock.Now()
	updated, err := m.store.UpdateTicket(ctx, t)
	if err != nil {
		if _, cerr := m.creator.Cancel(ctx, a.ID, false); cerr != nil {
			return models.QueueTicket{}, models.Assignment{}, cerr
		}
		return models.QueueTicket{}, models.Assignment{}, err
	}
	metrics.QueueTicketsTotal.WithLabelValues("converted").Inc()
	m.publishDepth(ctx, t.CenterID, t.Date)
	return updated, a, nil
}

func (m *Manager) publishDepth(ctx context.Context, centerID, date string) {
	active, err := m.Active(ctx, centerID, date)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(centerID).Set(float64(len(active)))
}
