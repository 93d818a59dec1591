package api

import (
	"fmt"
	"time"

	"center-scheduler/errors"
	"center-scheduler/models"
	"center-scheduler/queue"
	"center-scheduler/scheduler"
)

// The console's collaborators have shipped several generations of payload
// shapes with diverging field names for the same concepts. All known aliases
// collapse here, in one versioned boundary adapter, instead of per-field
// fallbacks at every call site. Alias precedence is declaration order:
// the canonical name wins when several aliases are populated.

// assignmentPayloadV1 accepts every known shape of a create-assignment body.
type assignmentPayloadV1 struct {
	CenterID        string `json:"centerId"`
	CenterIDSnake   string `json:"center_id"`
	ServiceCenterID string `json:"serviceCenterId"`

	TechnicianID      string `json:"technicianId"`
	TechnicianIDSnake string `json:"technician_id"`
	TechID            string `json:"techId"`

	BookingID      string `json:"bookingId"`
	BookingIDSnake string `json:"booking_id"`

	ServiceRequestID      string `json:"serviceRequestId"`
	ServiceRequestIDSnake string `json:"service_request_id"`
	RequestID             string `json:"requestId"`

	PlannedStartUTC string `json:"plannedStartUtc"`
	StartUTC        string `json:"startUtc"`
	StartTime       string `json:"start_time"`

	PlannedEndUTC string `json:"plannedEndUtc"`
	EndUTC        string `json:"endUtc"`
	EndTime       string `json:"end_time"`

	Date  string `json:"date"`
	Shift string `json:"shift"`

	Note   string `json:"note"`
	Notes  string `json:"notes"`
	Remark string `json:"remark"`
	Force  bool   `json:"force"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseTimestamp(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &errors.ValidationError{Field: field, Err: fmt.Errorf("not an ISO-8601 UTC timestamp: %q", value)}
	}
	return ts.UTC(), nil
}

// normalize folds the payload into the canonical scheduler input.
func (p assignmentPayloadV1) normalize() (scheduler.CreateInput, error) {
	in := scheduler.CreateInput{
		CenterID:         firstNonEmpty(p.CenterID, p.CenterIDSnake, p.ServiceCenterID),
		TechnicianID:     firstNonEmpty(p.TechnicianID, p.TechnicianIDSnake, p.TechID),
		BookingID:        firstNonEmpty(p.BookingID, p.BookingIDSnake),
		ServiceRequestID: firstNonEmpty(p.ServiceRequestID, p.ServiceRequestIDSnake, p.RequestID),
		Date:             p.Date,
		Note:             firstNonEmpty(p.Note, p.Notes, p.Remark),
		Force:            p.Force,
	}
	var err error
	if in.Start, err = parseTimestamp("plannedStartUtc", firstNonEmpty(p.PlannedStartUTC, p.StartUTC, p.StartTime)); err != nil {
		return scheduler.CreateInput{}, err
	}
	if in.End, err = parseTimestamp("plannedEndUtc", firstNonEmpty(p.PlannedEndUTC, p.EndUTC, p.EndTime)); err != nil {
		return scheduler.CreateInput{}, err
	}
	if p.Shift != "" {
		shift, err := models.ParseShift(p.Shift)
		if err != nil {
			return scheduler.CreateInput{}, &errors.ValidationError{Field: "shift", Err: err}
		}
		in.Shift = shift
	}
	return in, nil
}

// reschedulePayloadV1 accepts every known shape of a reschedule body.
type reschedulePayloadV1 struct {
	NewPlannedStartUTC string `json:"newPlannedStartUtc"`
	NewStartUTC        string `json:"newStartUtc"`
	StartUTC           string `json:"startUtc"`

	NewPlannedEndUTC string `json:"newPlannedEndUtc"`
	NewEndUTC        string `json:"newEndUtc"`
	EndUTC           string `json:"endUtc"`

	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (p reschedulePayloadV1) normalize() (models.Window, string, error) {
	var w models.Window
	var err error
	if w.Start, err = parseTimestamp("newPlannedStartUtc", firstNonEmpty(p.NewPlannedStartUTC, p.NewStartUTC, p.StartUTC)); err != nil {
		return models.Window{}, "", err
	}
	if w.End, err = parseTimestamp("newPlannedEndUtc", firstNonEmpty(p.NewPlannedEndUTC, p.NewEndUTC, p.EndUTC)); err != nil {
		return models.Window{}, "", err
	}
	return w, firstNonEmpty(p.Reason, p.Note), nil
}

// reassignPayloadV1 accepts every known shape of a reassign body.
type reassignPayloadV1 struct {
	NewTechnicianID      string `json:"newTechnicianId"`
	NewTechnicianIDSnake string `json:"new_technician_id"`
	TechnicianID         string `json:"technicianId"`
	TechID               string `json:"techId"`

	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (p reassignPayloadV1) normalize() (string, string) {
	tech := firstNonEmpty(p.NewTechnicianID, p.NewTechnicianIDSnake, p.TechnicianID, p.TechID)
	return tech, firstNonEmpty(p.Reason, p.Note)
}

// queueAddPayloadV1 accepts every known shape of a walk-in registration body.
type queueAddPayloadV1 struct {
	CenterID      string `json:"centerId"`
	CenterIDSnake string `json:"center_id"`

	Date string `json:"date"`

	ServiceRequestID      string `json:"serviceRequestId"`
	ServiceRequestIDSnake string `json:"service_request_id"`
	RequestID             string `json:"requestId"`

	Priority int `json:"priority"`
}

func (p queueAddPayloadV1) normalize() queue.AddInput {
	return queue.AddInput{
		CenterID:         firstNonEmpty(p.CenterID, p.CenterIDSnake),
		Date:             p.Date,
		ServiceRequestID: firstNonEmpty(p.ServiceRequestID, p.ServiceRequestIDSnake, p.RequestID),
		Priority:         p.Priority,
	}
}

// reorderPayloadV1 accepts every known shape of a queue reorder body.
type reorderPayloadV1 struct {
	CenterID      string `json:"centerId"`
	CenterIDSnake string `json:"center_id"`

	Date string `json:"date"`

	OrderedIDs      []string `json:"orderedIds"`
	OrderedIDsSnake []string `json:"ordered_ids"`
	TicketIDs       []string `json:"ticketIds"`
}

func (p reorderPayloadV1) normalize() (centerID, date string, orderedIDs []string) {
	ids := p.OrderedIDs
	if ids == nil {
		ids = p.OrderedIDsSnake
	}
	if ids == nil {
		ids = p.TicketIDs
	}
	return firstNonEmpty(p.CenterID, p.CenterIDSnake), p.Date, ids
}

// convertPayloadV1 accepts every known shape of a ticket conversion body.
type convertPayloadV1 struct {
	TechnicianID      string `json:"technicianId"`
	TechnicianIDSnake string `json:"technician_id"`
	TechID            string `json:"techId"`

	Date  string `json:"date"`
	Shift string `json:"shift"`

	Note  string `json:"note"`
	Force bool   `json:"force"`
}

func (p convertPayloadV1) normalize() (queue.ConvertInput, error) {
	in := queue.ConvertInput{
		TechnicianID: firstNonEmpty(p.TechnicianID, p.TechnicianIDSnake, p.TechID),
		Date:         p.Date,
		Note:         p.Note,
		Force:        p.Force,
	}
	if p.Shift != "" {
		shift, err := models.ParseShift(p.Shift)
		if err != nil {
			return queue.ConvertInput{}, &errors.ValidationError{Field: "shift", Err: err}
		}
		in.Shift = shift
	}
	return in, nil
}
