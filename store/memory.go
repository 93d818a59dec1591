package store

import (
	"context"
	"sort"
	"sync"

	"center-scheduler/errors"
	"center-scheduler/models"
)

// MemoryStore provides an in-memory implementation of the Store interface.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]models.Assignment
	tickets     map[string]models.QueueTicket
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]models.Assignment),
		tickets:     make(map[string]models.QueueTicket),
	}
}

// CreateAssignment inserts a new assignment record at version 1.
func (m *MemoryStore) CreateAssignment(_ context.Context, a models.Assignment) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Version = 1
	m.assignments[a.ID] = a
	return a, nil
}

// GetAssignment returns the assignment with the given id.
func (m *MemoryStore) GetAssignment(_ context.Context, id string) (models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, &errors.NotFoundError{Kind: "assignment", ID: id}
	}
	return a, nil
}

// UpdateAssignment applies a compare-and-swap update keyed on Version.
func (m *MemoryStore) UpdateAssignment(_ context.Context, a models.Assignment) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assignments[a.ID]
	if !ok {
		return models.Assignment{}, &errors.NotFoundError{Kind: "assignment", ID: a.ID}
	}
	if existing.Version != a.Version {
		return models.Assignment{}, &errors.StaleVersionError{Kind: "assignment", ID: a.ID, Version: a.Version}
	}
	a.Version = existing.Version + 1
	a.CreatedAt = existing.CreatedAt
	m.assignments[a.ID] = a
	return a, nil
}

// ListAssignments returns assignments matching the provided filter, ordered
// by start time.
func (m *MemoryStore) ListAssignments(_ context.Context, filter AssignmentFilter) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []models.Assignment
	for _, a := range m.assignments {
		if filter.Matches(a) {
			results = append(results, a)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].StartUTC.Equal(results[j].StartUTC) {
			return results[i].ID < results[j].ID
		}
		return results[i].StartUTC.Before(results[j].StartUTC)
	})
	return results, nil
}

// CreateTicket inserts a new queue ticket at version 1.
func (m *MemoryStore) CreateTicket(_ context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Version = 1
	m.tickets[t.ID] = t
	return t, nil
}

// GetTicket returns the ticket with the given id.
func (m *MemoryStore) GetTicket(_ context.Context, id string) (models.QueueTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.QueueTicket{}, &errors.NotFoundError{Kind: "ticket", ID: id}
	}
	return t, nil
}

// UpdateTicket applies a compare-and-swap update keyed on Version.
func (m *MemoryStore) UpdateTicket(_ context.Context, t models.QueueTicket) (models.QueueTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tickets[t.ID]
	if !ok {
		return models.QueueTicket{}, &errors.NotFoundError{Kind: "ticket", ID: t.ID}
	}
	if existing.Version != t.Version {
		return models.QueueTicket{}, &errors.StaleVersionError{Kind: "ticket", ID: t.ID, Version: t.Version}
	}
	t.Version = existing.Version + 1
	t.CreatedAt = existing.CreatedAt
	m.tickets[t.ID] = t
	return t, nil
}

// ListTickets returns all tickets of a (center, date) queue ordered by
// queue number, then creation time for tickets no longer holding one.
func (m *MemoryStore) ListTickets(_ context.Context, centerID, date string) ([]models.QueueTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []models.QueueTicket
	for _, t := range m.tickets {
		if t.CenterID == centerID && t.Date == date {
			results = append(results, t)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].QueueNo != results[j].QueueNo {
			return results[i].QueueNo < results[j].QueueNo
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}
