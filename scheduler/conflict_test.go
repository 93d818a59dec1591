package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"center-scheduler/models"
	"center-scheduler/scheduler"
	"center-scheduler/store"
)

func seedAssignment(t *testing.T, st store.Store, technicianID, date string, shift models.Shift, status models.AssignmentStatus) models.Assignment {
	t.Helper()
	w, err := shift.Window(date)
	require.NoError(t, err)
	a, err := st.CreateAssignment(context.Background(), models.Assignment{
		ID:           "a-" + technicianID + "-" + date + "-" + string(shift),
		CenterID:     "c1",
		TechnicianID: technicianID,
		BookingID:    "b1",
		StartUTC:     w.Start,
		EndUTC:       w.End,
		Shift:        shift,
		Status:       status,
		CreatedAt:    w.Start.Add(-24 * time.Hour),
		UpdatedAt:    w.Start.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	return a
}

func TestDetectorCheck(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		seedShift     models.Shift
		seedStatus    models.AssignmentStatus
		checkShift    models.Shift
		checkDate     string
		wantConflict  bool
		wantConflicts int
	}{
		"SameSlot_Conflicts": {
			seedShift:     models.ShiftMorning,
			seedStatus:    models.StatusAssigned,
			checkShift:    models.ShiftMorning,
			checkDate:     "2024-01-15",
			wantConflict:  true,
			wantConflicts: 1,
		},
		"DifferentShift_NoConflict": {
			seedShift:    models.ShiftMorning,
			seedStatus:   models.StatusAssigned,
			checkShift:   models.ShiftEvening,
			checkDate:    "2024-01-15",
			wantConflict: false,
		},
		"DifferentDate_NoConflict": {
			seedShift:    models.ShiftMorning,
			seedStatus:   models.StatusAssigned,
			checkShift:   models.ShiftMorning,
			checkDate:    "2024-01-16",
			wantConflict: false,
		},
		"TerminalAssignment_Ignored": {
			seedShift:    models.ShiftMorning,
			seedStatus:   models.StatusCancelled,
			checkShift:   models.ShiftMorning,
			checkDate:    "2024-01-15",
			wantConflict: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore()
			seedAssignment(t, st, "t1", "2024-01-15", tc.seedShift, tc.seedStatus)

			w, err := tc.checkShift.Window(tc.checkDate)
			require.NoError(t, err)

			result, err := scheduler.NewDetector(st).Check(ctx, "t1", w, "")
			require.NoError(t, err)
			assert.Equal(t, tc.wantConflict, result.HasConflict)
			assert.Len(t, result.Conflicts, tc.wantConflicts)
		})
	}
}

func TestDetectorContinuousWindows(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	_, err := st.CreateAssignment(ctx, models.Assignment{
		ID:           "a1",
		CenterID:     "c1",
		TechnicianID: "t1",
		BookingID:    "b1",
		StartUTC:     base,
		EndUTC:       base.Add(2 * time.Hour),
		Status:       models.StatusAssigned,
	})
	require.NoError(t, err)

	detector := scheduler.NewDetector(st)

	// Overlapping by one hour.
	result, err := detector.Check(ctx, "t1", models.Window{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)}, "")
	require.NoError(t, err)
	assert.True(t, result.HasConflict)

	// Back-to-back windows do not overlap under half-open semantics.
	result, err = detector.Check(ctx, "t1", models.Window{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)}, "")
	require.NoError(t, err)
	assert.False(t, result.HasConflict)

	// Another technician is unaffected.
	result, err = detector.Check(ctx, "t2", models.Window{Start: base, End: base.Add(time.Hour)}, "")
	require.NoError(t, err)
	assert.False(t, result.HasConflict)
}

func TestDetectorExcludeID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := seedAssignment(t, st, "t1", "2024-01-15", models.ShiftMorning, models.StatusAssigned)

	detector := scheduler.NewDetector(st)
	w, err := models.ShiftMorning.Window("2024-01-15")
	require.NoError(t, err)

	// Checking an assignment's own slot against itself must pass when its id
	// is excluded, and fail when it is not.
	result, err := detector.Check(ctx, "t1", w, a.ID)
	require.NoError(t, err)
	assert.False(t, result.HasConflict)

	result, err = detector.Check(ctx, "t1", w, "")
	require.NoError(t, err)
	assert.True(t, result.HasConflict)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, a.ID, result.Conflicts[0].ID)
}

func TestAssignmentsPairwiseDisjoint(t *testing.T) {
	// Property: after a mix of accepted creates, no technician holds two
	// overlapping windows.
	ctx := context.Background()
	st := store.NewMemoryStore()
	tracker := newTestTracker(st)
	sched := scheduler.New(st, tracker, nil, fixedClock{}, nil)

	dates := []string{"2024-01-15", "2024-01-16"}
	for _, date := range dates {
		for _, shift := range models.Shifts {
			// Attempt each slot twice; the duplicate must be rejected.
			for range 2 {
				_, _ = sched.Create(ctx, scheduler.CreateInput{
					CenterID:     "c1",
					TechnicianID: "t1",
					BookingID:    "b1",
					Date:         date,
					Shift:        shift,
				})
			}
		}
	}

	all, err := st.ListAssignments(ctx, store.AssignmentFilter{TechnicianID: "t1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, all, len(dates)*len(models.Shifts))
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			assert.False(t, all[i].Window().Overlaps(all[j].Window()),
				"assignments %s and %s overlap", all[i].ID, all[j].ID)
		}
	}
}
