// Package store provides persistence for assignments and queue tickets.
// Two implementations exist: an in-memory store for tests and single-node
// development, and a postgres store for deployments. They are never
// substituted for one another implicitly; selection is configuration-driven.
package store

import (
	"context"

	"center-scheduler/models"
)

// AssignmentFilter narrows ListAssignments results. Zero-valued fields match
// everything.
type AssignmentFilter struct {
	CenterID     string
	TechnicianID string
	Date         string
	Shift        models.Shift
	ActiveOnly   bool // exclude terminal statuses
}

// Matches reports whether the assignment passes the filter.
func (f AssignmentFilter) Matches(a models.Assignment) bool {
	if f.CenterID != "" && a.CenterID != f.CenterID {
		return false
	}
	if f.TechnicianID != "" && a.TechnicianID != f.TechnicianID {
		return false
	}
	if f.Date != "" && a.Date() != f.Date {
		return false
	}
	if f.Shift != "" && a.Shift != f.Shift {
		return false
	}
	if f.ActiveOnly && a.Status.IsTerminal() {
		return false
	}
	return true
}

// Store encapsulates persistence for assignments and queue tickets.
//
// UpdateAssignment and UpdateTicket are compare-and-swap: the update applies
// only if the stored version equals the version carried by the argument, and
// the stored version is incremented on success. A mismatch returns
// *errors.StaleVersionError so two sessions racing on a stale read cannot
// both commit.
type Store interface {
	CreateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	UpdateAssignment(ctx context.Context, a models.Assignment) (models.Assignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error)

	CreateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error)
	GetTicket(ctx context.Context, id string) (models.QueueTicket, error)
	UpdateTicket(ctx context.Context, t models.QueueTicket) (models.QueueTicket, error)
	ListTickets(ctx context.Context, centerID, date string) ([]models.QueueTicket, error)
}
