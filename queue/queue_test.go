package queue_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"center-scheduler/capacity"
	"center-scheduler/errors"
	"center-scheduler/models"
	"center-scheduler/queue"
	"center-scheduler/scheduler"
	"center-scheduler/store"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
}

func newManager(st store.Store) (*queue.Manager, *scheduler.Scheduler) {
	tracker := capacity.NewTracker(st, func(string, models.Shift) int { return 20 })
	sched := scheduler.New(st, tracker, nil, fixedClock{}, nil)
	return queue.NewManager(st, sched, fixedClock{}, 30*time.Minute), sched
}

func addTickets(t *testing.T, m *queue.Manager, n int) []models.QueueTicket {
	t.Helper()
	tickets := make([]models.QueueTicket, 0, n)
	for i := range n {
		ticket, err := m.Add(context.Background(), queue.AddInput{
			CenterID:         "c1",
			Date:             "2024-01-15",
			ServiceRequestID: fmt.Sprintf("sr%d", i+1),
			Priority:         models.PriorityMedium,
		})
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}
	return tickets
}

func queueNos(tickets []models.QueueTicket) []int {
	nos := make([]int, len(tickets))
	for i, t := range tickets {
		nos[i] = t.QueueNo
	}
	return nos
}

func TestAddAppendsAtBack(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())

	tickets := addTickets(t, m, 3)
	assert.Equal(t, []int{1, 2, 3}, queueNos(tickets))
	assert.Equal(t, models.TicketWaiting, tickets[0].Status)

	// Estimated start projects the queue position.
	assert.Equal(t, fixedClock{}.Now(), tickets[0].EstimatedStartUTC)
	assert.Equal(t, fixedClock{}.Now().Add(time.Hour), tickets[2].EstimatedStartUTC)

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, queueNos(active))
}

func TestAddValidation(t *testing.T) {
	m, _ := newManager(store.NewMemoryStore())

	_, err := m.Add(context.Background(), queue.AddInput{Date: "2024-01-15"})
	var validation *errors.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = m.Add(context.Background(), queue.AddInput{CenterID: "c1", Date: "yesterday"})
	assert.ErrorAs(t, err, &validation)
}

func TestReorderRenumbersDensely(t *testing.T) {
	// Scenario: queue [A(1), B(2), C(3)]; staff moves C above A; expected
	// [C(1), A(2), B(3)].
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())
	tickets := addTickets(t, m, 3)
	a, b, c := tickets[0], tickets[1], tickets[2]

	reordered, err := m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, a.ID, b.ID})
	require.NoError(t, err)

	require.Len(t, reordered, 3)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{reordered[0].ID, reordered[1].ID, reordered[2].ID})
	assert.Equal(t, []int{1, 2, 3}, queueNos(reordered))
}

func TestReorderAnyPermutationStaysDense(t *testing.T) {
	// Property: after any reorder of N tickets the queueNo set is exactly
	// {1..N}, no gaps or duplicates.
	ctx := context.Background()

	permutations := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}
	for _, perm := range permutations {
		m, _ := newManager(store.NewMemoryStore())
		tickets := addTickets(t, m, 4)

		ids := make([]string, len(perm))
		for i, p := range perm {
			ids[i] = tickets[p].ID
		}
		reordered, err := m.Reorder(ctx, "c1", "2024-01-15", ids)
		require.NoError(t, err)

		seen := make(map[int]bool)
		for i, ticket := range reordered {
			assert.Equal(t, i+1, ticket.QueueNo)
			assert.False(t, seen[ticket.QueueNo], "duplicate queueNo %d", ticket.QueueNo)
			seen[ticket.QueueNo] = true
		}
		assert.Len(t, seen, 4)
	}
}

func TestReorderStaleSnapshotRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())
	tickets := addTickets(t, m, 3)
	a, b, c := tickets[0], tickets[1], tickets[2]

	// Ticket b went no-show after the staff member loaded the queue; their
	// reorder still contains it and must be rejected wholesale.
	_, err := m.MarkNoShow(ctx, b.ID)
	require.NoError(t, err)

	_, err = m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, a.ID, b.ID})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStaleQueueSnapshot))

	// Missing, unknown, and duplicated ids are equally stale.
	_, err = m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID})
	assert.True(t, stderrors.Is(err, errors.ErrStaleQueueSnapshot))

	_, err = m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, "ghost"})
	assert.True(t, stderrors.Is(err, errors.ErrStaleQueueSnapshot))

	_, err = m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, c.ID})
	assert.True(t, stderrors.Is(err, errors.ErrStaleQueueSnapshot))

	// The queue survives unchanged.
	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID}, []string{active[0].ID, active[1].ID})
}

// nthFailTicketStore fails exactly one UpdateTicket call with a stale
// version, simulating a concurrent session winning a write on that ticket
// between the reorder's id-set check and its renumbering.
type nthFailTicketStore struct {
	store.Store
	failOn int
	calls  int
}

func (f *nthFailTicketStore) UpdateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	f.calls++
	if f.calls == f.failOn {
		return models.QueueTicket{}, &errors.StaleVersionError{Kind: "ticket", ID: t.ID, Version: t.Version}
	}
	return f.Store.UpdateTicket(ctx, t)
}

func TestReorderMidApplyFailureRewindsCommittedNumbers(t *testing.T) {
	// Queue [A(1), B(2), C(3)], reorder to [C, A, B]. The third update (B)
	// loses its compare-and-swap after C and A were already renumbered; the
	// committed numbers must be rewound so the persisted set stays {1,2,3}
	// in the original order, never C=1, A=2, B=2.
	ctx := context.Background()
	inner := store.NewMemoryStore()
	st := &nthFailTicketStore{Store: inner}
	m, _ := newManager(st)
	tickets := addTickets(t, m, 3)
	a, b, c := tickets[0], tickets[1], tickets[2]

	st.failOn = st.calls + 3
	_, err := m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, a.ID, b.ID})
	var stale *errors.StaleVersionError
	require.ErrorAs(t, err, &stale)

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{active[0].ID, active[1].ID, active[2].ID})
	assert.Equal(t, []int{1, 2, 3}, queueNos(active))
}

func TestReorderFirstUpdateFailureLeavesQueueUntouched(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemoryStore()
	st := &nthFailTicketStore{Store: inner}
	m, _ := newManager(st)
	tickets := addTickets(t, m, 3)
	a, b, c := tickets[0], tickets[1], tickets[2]

	st.failOn = st.calls + 1
	_, err := m.Reorder(ctx, "c1", "2024-01-15", []string{c.ID, a.ID, b.ID})
	var stale *errors.StaleVersionError
	require.ErrorAs(t, err, &stale)

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{active[0].ID, active[1].ID, active[2].ID})
	assert.Equal(t, []int{1, 2, 3}, queueNos(active))
}

func TestPriorityNeverReorders(t *testing.T) {
	// Priority is advisory badge metadata; only explicit reorder calls
	// change ordering.
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())

	low, err := m.Add(ctx, queue.AddInput{
		CenterID: "c1", Date: "2024-01-15", ServiceRequestID: "sr1", Priority: models.PriorityLow,
	})
	require.NoError(t, err)
	high, err := m.Add(ctx, queue.AddInput{
		CenterID: "c1", Date: "2024-01-15", ServiceRequestID: "sr2", Priority: models.PriorityHigh,
	})
	require.NoError(t, err)

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, low.ID, active[0].ID, "high priority must not jump the line")
	assert.Equal(t, high.ID, active[1].ID)
	assert.Equal(t, models.PriorityHigh, active[1].Priority)
}

func TestMarkNoShowExcludedFromActiveView(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())
	tickets := addTickets(t, m, 2)

	updated, err := m.MarkNoShow(ctx, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketNoShow, updated.Status)

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, tickets[1].ID, active[0].ID)

	// Still present in the unfiltered list.
	all, err := m.List(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// A ticket already out of the queue cannot no-show again.
	_, err = m.MarkNoShow(ctx, tickets[0].ID)
	assert.True(t, stderrors.Is(err, errors.ErrTicketInactive))
}

func TestConvertCreatesAssignment(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m, _ := newManager(st)
	tickets := addTickets(t, m, 1)

	ticket, assignment, err := m.Convert(ctx, tickets[0].ID, queue.ConvertInput{
		TechnicianID: "t1",
		Shift:        models.ShiftEvening,
	})
	require.NoError(t, err)

	assert.Equal(t, models.TicketConverted, ticket.Status)
	assert.Equal(t, models.StatusAssigned, assignment.Status)
	assert.Equal(t, "c1", assignment.CenterID)
	assert.Equal(t, "sr1", assignment.ServiceRequestID)
	assert.Equal(t, models.ShiftEvening, assignment.Shift)
	assert.Equal(t, "2024-01-15", assignment.Date())

	active, err := m.Active(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	assert.Empty(t, active, "converted ticket leaves the active queue")
}

func TestConvertConflictLeavesTicketWaiting(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m, sched := newManager(st)
	tickets := addTickets(t, m, 1)

	// t1 already occupies the target slot.
	_, err := sched.Create(ctx, scheduler.CreateInput{
		CenterID: "c1", TechnicianID: "t1", BookingID: "b1",
		Date: "2024-01-15", Shift: models.ShiftEvening,
	})
	require.NoError(t, err)

	_, _, err = m.Convert(ctx, tickets[0].ID, queue.ConvertInput{
		TechnicianID: "t1",
		Shift:        models.ShiftEvening,
	})
	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)

	unchanged, err := m.List(ctx, "c1", "2024-01-15")
	require.NoError(t, err)
	require.Len(t, unchanged, 1)
	assert.Equal(t, models.TicketWaiting, unchanged[0].Status)
}

// failingTicketStore makes the ticket update after a conversion lose its
// compare-and-swap, to exercise the compensating cancel.
type failingTicketStore struct {
	store.Store
	failUpdates bool
}

func (f *failingTicketStore) UpdateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	if f.failUpdates {
		return models.QueueTicket{}, &errors.StaleVersionError{Kind: "ticket", ID: t.ID, Version: t.Version}
	}
	return f.Store.UpdateTicket(ctx, t)
}

func TestConvertCompensatesWhenTicketUpdateFails(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemoryStore()
	st := &failingTicketStore{Store: inner}
	m, _ := newManager(st)
	tickets := addTickets(t, m, 1)

	st.failUpdates = true
	_, _, err := m.Convert(ctx, tickets[0].ID, queue.ConvertInput{
		TechnicianID: "t1",
		Shift:        models.ShiftEvening,
	})
	var stale *errors.StaleVersionError
	require.ErrorAs(t, err, &stale)

	// The assignment created before the failed ticket update was rolled
	// back by the compensating cancel.
	assignments, err := inner.ListAssignments(ctx, store.AssignmentFilter{TechnicianID: "t1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestConvertInactiveTicketRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(store.NewMemoryStore())
	tickets := addTickets(t, m, 1)

	_, err := m.MarkNoShow(ctx, tickets[0].ID)
	require.NoError(t, err)

	_, _, err = m.Convert(ctx, tickets[0].ID, queue.ConvertInput{
		TechnicianID: "t1",
		Shift:        models.ShiftMorning,
	})
	assert.True(t, stderrors.Is(err, errors.ErrTicketInactive))
}
