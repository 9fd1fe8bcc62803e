package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

func slotStates(slots []types.SlotView) []types.SlotState {
	states := make([]types.SlotState, len(slots))
	for i, s := range slots {
		states[i] = s.State
	}
	return states
}

func slotStarts(slots []types.SlotView) []string {
	starts := make([]string, len(slots))
	for i, s := range slots {
		starts[i] = s.StartTime
	}
	return starts
}

// seedCalendar: 09:00 accepted (p1), 10:00 pending (p2), 11:00 rejected (p3),
// 13:00 cancelled (p4).
func seedCalendar(t *testing.T, engine *Engine) map[string]*types.Booking {
	t.Helper()
	ctx := context.Background()

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)
	_, err = engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "13:00", "14:00")
	require.NoError(t, err)

	booked := make(map[string]*types.Booking)
	for pid, start := range map[string]string{"p1": "09:00", "p2": "10:00", "p3": "11:00", "p4": "13:00"} {
		b, err := engine.CreateBooking(ctx, patient(pid), bookingReq(pid, start, 60))
		require.NoError(t, err)
		booked[pid] = b
	}
	_, err = engine.AcceptBooking(ctx, doctorActor, booked["p1"].ID)
	require.NoError(t, err)
	_, err = engine.RejectBooking(ctx, doctorActor, booked["p3"].ID)
	require.NoError(t, err)
	_, err = engine.CancelBooking(ctx, patient("p4"), booked["p4"].ID)
	require.NoError(t, err)
	return booked
}

func TestCalendar_StatePrecedencePerViewer(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)
	booked := seedCalendar(t, engine)

	tests := []struct {
		name   string
		viewer types.Actor
		want   []types.SlotState
	}{
		{
			name:   "accepted patient",
			viewer: patient("p1"),
			want:   []types.SlotState{types.SlotMineAccepted, types.SlotReserved, types.SlotReserved, types.SlotAvailable},
		},
		{
			name:   "pending patient",
			viewer: patient("p2"),
			want:   []types.SlotState{types.SlotReserved, types.SlotMinePending, types.SlotReserved, types.SlotAvailable},
		},
		{
			name:   "rejected patient sees reserved",
			viewer: patient("p3"),
			want:   []types.SlotState{types.SlotReserved, types.SlotReserved, types.SlotReserved, types.SlotAvailable},
		},
		{
			name:   "owning doctor",
			viewer: doctorActor,
			want:   []types.SlotState{types.SlotMineAccepted, types.SlotMinePending, types.SlotReserved, types.SlotAvailable},
		},
		{
			name:   "anonymous",
			viewer: types.Actor{},
			want:   []types.SlotState{types.SlotReserved, types.SlotReserved, types.SlotReserved, types.SlotAvailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := engine.GetCalendar(ctx, tt.viewer, testDoctor, testDate, testDate, types.CalendarOptions{})
			require.NoError(t, err)
			slots := cal[testDate]
			assert.Equal(t, []string{"09:00", "10:00", "11:00", "13:00"}, slotStarts(slots))
			assert.Equal(t, tt.want, slotStates(slots))
		})
	}

	cal, err := engine.GetCalendar(ctx, patient("p1"), testDoctor, testDate, testDate, types.CalendarOptions{})
	require.NoError(t, err)
	assert.Equal(t, booked["p1"].ID, cal[testDate][0].BookingID)
	assert.Empty(t, cal[testDate][1].BookingID, "other patients' bookings stay anonymous")
	assert.Equal(t, "10:00", cal[testDate][0].EndTime)
}

func TestCalendar_EveryDayPresent(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, "2025-06-11", "09:00", "10:00")
	require.NoError(t, err)

	cal, err := engine.GetCalendar(ctx, patient("p1"), testDoctor, testDate, "2025-06-12", types.CalendarOptions{})
	require.NoError(t, err)
	require.Len(t, cal, 3)

	assert.NotNil(t, cal[testDate])
	assert.Empty(t, cal[testDate])
	assert.Len(t, cal["2025-06-11"], 1)
	assert.Empty(t, cal["2025-06-12"])
}

func TestCalendar_GranularityClipsLastSlot(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)

	cal, err := engine.GetCalendar(ctx, patient("p1"), testDoctor, testDate, testDate, types.CalendarOptions{Granularity: 120})
	require.NoError(t, err)
	slots := cal[testDate]
	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "11:00", slots[0].EndTime)
	assert.Equal(t, "11:00", slots[1].StartTime)
	assert.Equal(t, "12:00", slots[1].EndTime)

	cal, err = engine.GetCalendar(ctx, patient("p1"), testDoctor, testDate, testDate, types.CalendarOptions{Granularity: 30})
	require.NoError(t, err)
	assert.Len(t, cal[testDate], 6)
}

func TestCalendar_IncludeUnavailable(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)

	cal, err := engine.GetCalendar(ctx, patient("p1"), testDoctor, testDate, testDate, types.CalendarOptions{IncludeUnavailable: true})
	require.NoError(t, err)
	slots := cal[testDate]
	require.Len(t, slots, 12)

	assert.Equal(t, "08:00", slots[0].StartTime)
	assert.Equal(t, types.SlotUnavailable, slots[0].State)
	assert.Equal(t, types.SlotAvailable, slots[1].State)
	assert.Equal(t, types.SlotAvailable, slots[3].State)
	assert.Equal(t, "12:00", slots[4].StartTime)
	assert.Equal(t, types.SlotUnavailable, slots[4].State)
	assert.Equal(t, "19:00", slots[11].StartTime)
	assert.Equal(t, "20:00", slots[11].EndTime)
}

func TestCalendar_Validation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	tests := []struct {
		name     string
		from, to string
		opts     types.CalendarOptions
		want     error
	}{
		{"from after to", "2025-06-12", testDate, types.CalendarOptions{}, types.ErrInvalidRange},
		{"range too long", "2025-06-01", "2025-08-15", types.CalendarOptions{}, types.ErrInvalidRange},
		{"bad date", "June 10", testDate, types.CalendarOptions{}, types.ErrInvalidDateFormat},
		{"granularity too small", testDate, testDate, types.CalendarOptions{Granularity: 10}, types.ErrInvalidInput},
		{"granularity too large", testDate, testDate, types.CalendarOptions{Granularity: 300}, types.ErrInvalidInput},
		{"granularity does not split business hours", testDate, testDate, types.CalendarOptions{Granularity: 50}, types.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.GetCalendar(ctx, patient("p1"), testDoctor, tt.from, tt.to, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUncovered(t *testing.T) {
	hours := DefaultRules().BusinessHours

	gaps := uncovered(hours, nil)
	require.Len(t, gaps, 1)
	assert.Equal(t, hours, gaps[0])

	gaps = uncovered(hours, []timerange.TimeRange{
		timerange.MustNew(900, 1200),
		timerange.MustNew(480, 540),
		timerange.MustNew(600, 660),
	})
	assert.Equal(t, []timerange.TimeRange{
		timerange.MustNew(540, 600),
		timerange.MustNew(660, 900),
	}, gaps)

	assert.Empty(t, uncovered(hours, []timerange.TimeRange{hours}))
}
