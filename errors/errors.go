package errors

import (
	"fmt"

	"center-scheduler/models"
)

// ValidationError reports a request rejected before any store or network
// interaction.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: field %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError reports an overlapping assignment detected for a technician.
// Conflicts carries the colliding records for disclosure to the caller.
type ConflictError struct {
	TechnicianID string
	Conflicts    []models.Assignment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: technician %s has %d overlapping assignment(s)", e.TechnicianID, len(e.Conflicts))
}

// NotFoundError reports an unknown assignment or ticket id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// StaleVersionError reports a compare-and-swap update that lost to a
// concurrent writer. The caller should refetch and retry.
type StaleVersionError struct {
	Kind    string
	ID      string
	Version int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale %s %s: version %d no longer current", e.Kind, e.ID, e.Version)
}

// AuthorizationError reports a missing or expired session.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s", e.Reason)
}

// NetworkError wraps a transient transport failure; the triggering action is
// safe to re-invoke.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Define specific error values for matching with errors.Is.
var (
	ErrMissingTechnician  = fmt.Errorf("technicianId is required")
	ErrMissingCenter      = fmt.Errorf("centerId is required")
	ErrWorkItemRequired   = fmt.Errorf("exactly one of bookingId or serviceRequestId is required")
	ErrInvalidWindow      = fmt.Errorf("startUtc must be before endUtc")
	ErrInvalidStatusMove  = fmt.Errorf("status transition not permitted")
	ErrAlreadyTerminal    = fmt.Errorf("assignment is already in a terminal state")
	ErrTicketInactive     = fmt.Errorf("ticket is no longer active")
	ErrStaleQueueSnapshot = fmt.Errorf("reorder does not match the current active queue")
	ErrSlotLocked         = fmt.Errorf("slot is locked by another operation")
)
