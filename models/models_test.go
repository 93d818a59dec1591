package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"center-scheduler/models"
)

func TestShiftWindow(t *testing.T) {
	tests := map[string]struct {
		shift     models.Shift
		date      string
		wantStart string
		wantEnd   string
	}{
		"Morning": {
			shift:     models.ShiftMorning,
			date:      "2024-01-15",
			wantStart: "2024-01-15T07:00:00Z",
			wantEnd:   "2024-01-15T12:00:00Z",
		},
		"Evening": {
			shift:     models.ShiftEvening,
			date:      "2024-01-15",
			wantStart: "2024-01-15T13:00:00Z",
			wantEnd:   "2024-01-15T19:00:00Z",
		},
		"Night_CrossesMidnight": {
			shift:     models.ShiftNight,
			date:      "2024-01-15",
			wantStart: "2024-01-15T20:00:00Z",
			wantEnd:   "2024-01-16T06:00:00Z",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			w, err := tc.shift.Window(tc.date)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, w.Start.Format(time.RFC3339))
			assert.Equal(t, tc.wantEnd, w.End.Format(time.RFC3339))
		})
	}

	t.Run("InvalidDate", func(t *testing.T) {
		_, err := models.ShiftMorning.Window("15-01-2024")
		assert.Error(t, err)
	})
}

func TestShiftForWindow(t *testing.T) {
	w, err := models.ShiftNight.Window("2024-01-15")
	require.NoError(t, err)

	shift, ok := models.ShiftForWindow(w)
	require.True(t, ok)
	assert.Equal(t, models.ShiftNight, shift)

	// An arbitrary window maps to no shift.
	_, ok = models.ShiftForWindow(models.Window{
		Start: w.Start.Add(30 * time.Minute),
		End:   w.End,
	})
	assert.False(t, ok)
}

func TestWindowOverlaps(t *testing.T) {
	base := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	window := func(startHour, endHour int) models.Window {
		return models.Window{
			Start: base.Add(time.Duration(startHour) * time.Hour),
			End:   base.Add(time.Duration(endHour) * time.Hour),
		}
	}

	tests := map[string]struct {
		a, b models.Window
		want bool
	}{
		"Identical":         {window(0, 5), window(0, 5), true},
		"PartialOverlap":    {window(0, 5), window(3, 8), true},
		"Contained":         {window(0, 8), window(2, 4), true},
		"Adjacent_HalfOpen": {window(0, 5), window(5, 10), false},
		"Disjoint":          {window(0, 5), window(6, 10), false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	allowed := map[models.AssignmentStatus][]models.AssignmentStatus{
		models.StatusPending:  {models.StatusAssigned, models.StatusCancelled},
		models.StatusAssigned: {models.StatusActive, models.StatusReassigned, models.StatusCancelled, models.StatusCancelledByCustomer},
		models.StatusActive:   {models.StatusCompleted, models.StatusCancelled},
	}
	for from, targets := range allowed {
		for _, to := range targets {
			assert.True(t, from.CanTransitionTo(to), "%s -> %s should be permitted", from, to)
		}
	}

	backward := [][2]models.AssignmentStatus{
		{models.StatusAssigned, models.StatusPending},
		{models.StatusActive, models.StatusAssigned},
		{models.StatusCompleted, models.StatusActive},
		{models.StatusCancelled, models.StatusAssigned},
		{models.StatusCompleted, models.StatusPending},
	}
	for _, pair := range backward {
		assert.False(t, pair[0].CanTransitionTo(pair[1]), "%s -> %s must be rejected", pair[0], pair[1])
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []models.AssignmentStatus{models.StatusCompleted, models.StatusCancelled, models.StatusCancelledByCustomer}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal())
		for _, next := range []models.AssignmentStatus{models.StatusPending, models.StatusAssigned, models.StatusActive} {
			assert.False(t, s.CanTransitionTo(next))
		}
	}
	assert.False(t, models.StatusAssigned.IsTerminal())
}

func TestTicketActiveFilter(t *testing.T) {
	assert.True(t, models.TicketWaiting.ActiveTicket())
	assert.True(t, models.TicketReady.ActiveTicket())
	assert.False(t, models.TicketNoShow.ActiveTicket())
	assert.False(t, models.TicketConverted.ActiveTicket())
}
