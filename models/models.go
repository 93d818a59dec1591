package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for slot dates. Dates are always UTC.
const DateLayout = "2006-01-02"

// Center represents a service center. Immutable reference data.
type Center struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Technician is reference data owned by the technician directory.
type Technician struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Specialties []string `json:"specialties"`
	Active      bool     `json:"active"`
}

// Shift is one of the three fixed working windows of a center day.
type Shift string

const (
	ShiftMorning Shift = "morning" // 07:00-12:00
	ShiftEvening Shift = "evening" // 13:00-19:00
	ShiftNight   Shift = "night"   // 20:00-06:00 next day
)

// Shifts lists all shifts in day order.
var Shifts = []Shift{ShiftMorning, ShiftEvening, ShiftNight}

var shiftHours = map[Shift][2]int{
	ShiftMorning: {7, 12},
	ShiftEvening: {13, 19},
	ShiftNight:   {20, 6},
}

// ParseShift folds a string into a Shift value.
func ParseShift(s string) (Shift, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ShiftMorning):
		return ShiftMorning, nil
	case string(ShiftEvening):
		return ShiftEvening, nil
	case string(ShiftNight):
		return ShiftNight, nil
	default:
		return "", fmt.Errorf("unknown shift %q", s)
	}
}

// Window is a half-open UTC time interval [Start, End).
type Window struct {
	Start time.Time `json:"startUtc"`
	End   time.Time `json:"endUtc"`
}

// Overlaps reports whether two half-open intervals intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

// Window returns the concrete UTC window of the shift on the given date.
// The night shift crosses midnight, so its end lands on the following day.
func (s Shift) Window(date string) (Window, error) {
	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	hours, ok := shiftHours[s]
	if !ok {
		return Window{}, fmt.Errorf("unknown shift %q", s)
	}
	start := day.Add(time.Duration(hours[0]) * time.Hour)
	end := day.Add(time.Duration(hours[1]) * time.Hour)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return Window{Start: start, End: end}, nil
}

// ShiftForWindow maps an exact shift window back to its shift. The second
// return is false when the window does not coincide with any shift.
func ShiftForWindow(w Window) (Shift, bool) {
	date := w.Start.UTC().Format(DateLayout)
	for _, s := range Shifts {
		sw, err := s.Window(date)
		if err != nil {
			continue
		}
		if sw.Start.Equal(w.Start) && sw.End.Equal(w.End) {
			return s, true
		}
	}
	return "", false
}

// AssignmentStatus tracks an assignment through its lifecycle.
type AssignmentStatus string

const (
	StatusPending             AssignmentStatus = "pending"
	StatusAssigned            AssignmentStatus = "assigned"
	StatusInQueue             AssignmentStatus = "in_queue"
	StatusActive              AssignmentStatus = "active"
	StatusCompleted           AssignmentStatus = "completed"
	StatusReassigned          AssignmentStatus = "reassigned"
	StatusCancelled           AssignmentStatus = "cancelled"
	StatusCancelledByCustomer AssignmentStatus = "cancelled_by_customer"
)

// transitions is the forward-only assignment state machine. A status absent
// from the map is terminal.
var transitions = map[AssignmentStatus][]AssignmentStatus{
	StatusPending:  {StatusAssigned, StatusCancelled, StatusCancelledByCustomer},
	StatusInQueue:  {StatusAssigned, StatusCancelled, StatusCancelledByCustomer},
	StatusAssigned: {StatusActive, StatusReassigned, StatusCancelled, StatusCancelledByCustomer},
	StatusActive:   {StatusCompleted, StatusCancelled, StatusCancelledByCustomer},
	// Reassigned keeps the record alive under the new technician.
	StatusReassigned: {StatusActive, StatusReassigned, StatusCancelled, StatusCancelledByCustomer},
}

// IsTerminal reports whether the status ends the assignment's lifecycle.
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCancelledByCustomer:
		return true
	}
	return false
}

// CanTransitionTo reports whether the forward-only state machine permits
// moving from s to next.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus parses a string into an AssignmentStatus.
func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusAssigned):
		return StatusAssigned, nil
	case string(StatusInQueue), "inqueue":
		return StatusInQueue, nil
	case string(StatusActive):
		return StatusActive, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusReassigned):
		return StatusReassigned, nil
	case string(StatusCancelled), "canceled":
		return StatusCancelled, nil
	case string(StatusCancelledByCustomer), "cancelled-by-customer":
		return StatusCancelledByCustomer, nil
	default:
		return "", fmt.Errorf("unknown assignment status %q", s)
	}
}

// Assignment binds a technician to a unit of work within a time window.
// Records are never physically deleted; terminal states are kept for history.
type Assignment struct {
	ID               string           `json:"id"`
	CenterID         string           `json:"centerId"`
	TechnicianID     string           `json:"technicianId"`
	BookingID        string           `json:"bookingId,omitempty"`
	ServiceRequestID string           `json:"serviceRequestId,omitempty"`
	StartUTC         time.Time        `json:"startUtc"`
	EndUTC           time.Time        `json:"endUtc"`
	Shift            Shift            `json:"shift,omitempty"`
	Status           AssignmentStatus `json:"status"`
	Note             string           `json:"note,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Window returns the assignment's planned interval.
func (a Assignment) Window() Window {
	return Window{Start: a.StartUTC, End: a.EndUTC}
}

// Date returns the UTC date the assignment starts on.
func (a Assignment) Date() string {
	return a.StartUTC.UTC().Format(DateLayout)
}

// SlotCapacity is the derived occupancy of one (center, date, shift) slot.
// It is never stored; Occupied is always recounted from live assignments so
// Capacity == Occupied + Available holds by construction.
type SlotCapacity struct {
	CenterID  string `json:"centerId"`
	Date      string `json:"date"`
	Shift     Shift  `json:"shift"`
	Capacity  int    `json:"capacity"`
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`
}

// TicketStatus tracks a walk-in ticket through the queue.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "waiting"
	TicketReady     TicketStatus = "ready"
	TicketNoShow    TicketStatus = "no_show"
	TicketConverted TicketStatus = "converted"
)

// ActiveTicket reports whether the status keeps a ticket in the active queue
// view. NoShow and Converted tickets stay retrievable but drop out of it.
func (s TicketStatus) ActiveTicket() bool {
	return s == TicketWaiting || s == TicketReady
}

// Ticket priority levels. Priority is advisory display metadata only and must
// never reorder a queue on its own.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// QueueTicket is a walk-in customer's position in a center's waiting line.
// QueueNo values of the active tickets of a (center, date) queue are dense:
// exactly {1..N} after every reorder.
type QueueTicket struct {
	ID                string       `json:"id"`
	CenterID          string       `json:"centerId"`
	Date              string       `json:"date"`
	ServiceRequestID  string       `json:"serviceRequestId"`
	QueueNo           int          `json:"queueNo"`
	Priority          int          `json:"priority"`
	Status            TicketStatus `json:"status"`
	EstimatedStartUTC time.Time    `json:"estimatedStartUtc"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}
