package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

func TestMemoryStore_ConcurrentBookingsForSameSlot(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)

	const racers = 20
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := fmt.Sprintf("racer-%d", i)
			_, errs[i] = engine.CreateBooking(ctx, patient(pid), bookingReq(pid, "10:00", 60))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, types.ErrSlotConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestMemoryStore_ConcurrentDuplicatePatient(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "08:00", "20:00")
	require.NoError(t, err)

	starts := []string{"08:00", "10:00", "12:00", "14:00", "16:00"}
	var wg sync.WaitGroup
	for _, start := range starts {
		wg.Add(1)
		go func(start string) {
			defer wg.Done()
			_, _ = engine.CreateBooking(ctx, patient("p1"), bookingReq("p1", start, 60))
		}(start)
	}
	wg.Wait()

	bookings, err := store.ListBookings(ctx, types.BookingFilter{PatientID: "p1"})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestMemoryStore_InScopeRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newMemoryFixture(t)

	window := &types.AvailabilityWindow{ID: "w-1", DoctorID: testDoctor, Date: testDate, Range: timerange.MustNew(540, 720)}
	require.NoError(t, store.InsertWindow(ctx, window))
	booking := &types.Booking{ID: "b-1", DoctorID: testDoctor, PatientID: "p1", Date: testDate, Range: timerange.MustNew(540, 600), Duration: 60, Status: types.BookingPending}
	require.NoError(t, store.InsertBooking(ctx, booking))

	boom := errors.New("boom")
	err := store.InScope(ctx, testDoctor, testDate, func(repo interfaces.SchedulingRepository) error {
		require.NoError(t, repo.InsertBooking(ctx, &types.Booking{ID: "b-2", DoctorID: testDoctor, PatientID: "p2", Date: testDate, Range: timerange.MustNew(600, 660), Duration: 60, Status: types.BookingPending}))
		_, err := repo.UpdateBookingStatus(ctx, "b-1", types.BookingAccepted, testNow)
		require.NoError(t, err)
		require.NoError(t, repo.DeleteWindow(ctx, "w-1"))
		require.NoError(t, repo.InsertWindow(ctx, &types.AvailabilityWindow{ID: "w-2", DoctorID: testDoctor, Date: testDate, Range: timerange.MustNew(780, 840)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetBooking(ctx, "b-2")
	assert.ErrorIs(t, err, types.ErrNotFound)

	b1, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, types.BookingPending, b1.Status)

	_, err = store.GetWindow(ctx, "w-1")
	assert.NoError(t, err)
	_, err = store.GetWindow(ctx, "w-2")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStore_InScopeHonorsCancelledContext(t *testing.T) {
	store := newMemoryFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.InScope(ctx, testDoctor, testDate, func(interfaces.SchedulingRepository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newMemoryFixture(t)

	b := &types.Booking{ID: "b-1", DoctorID: testDoctor, PatientID: "p1", Date: testDate, Range: timerange.MustNew(540, 600), Duration: 60, Status: types.BookingPending}
	require.NoError(t, store.InsertBooking(ctx, b))
	b.Status = types.BookingAccepted

	got, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, types.BookingPending, got.Status)

	got.Status = types.BookingCancelled
	again, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, types.BookingPending, again.Status)
}

func TestMemoryStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := newMemoryFixture(t)

	seed := []*types.Booking{
		{ID: "b-3", DoctorID: testDoctor, PatientID: "p1", Date: "2025-06-12", Range: timerange.MustNew(540, 600), Status: types.BookingPending},
		{ID: "b-1", DoctorID: testDoctor, PatientID: "p2", Date: testDate, Range: timerange.MustNew(600, 660), Status: types.BookingAccepted},
		{ID: "b-2", DoctorID: testDoctor, PatientID: "p3", Date: testDate, Range: timerange.MustNew(540, 600), Status: types.BookingCancelled},
		{ID: "b-4", DoctorID: "doctor-2", PatientID: "p1", Date: testDate, Range: timerange.MustNew(540, 600), Status: types.BookingPending},
	}
	for _, b := range seed {
		require.NoError(t, store.InsertBooking(ctx, b))
	}

	all, err := store.ListBookings(ctx, types.BookingFilter{DoctorID: testDoctor})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b-2", all[0].ID)
	assert.Equal(t, "b-1", all[1].ID)
	assert.Equal(t, "b-3", all[2].ID)

	active, err := store.ListBookings(ctx, types.BookingFilter{DoctorID: testDoctor, ExcludeStatuses: DefaultExcludedStatuses})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ranged, err := store.ListBookings(ctx, types.BookingFilter{PatientID: "p1", FromDate: "2025-06-11", ToDate: "2025-06-30"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "b-3", ranged[0].ID)

	accepted, err := store.ListBookings(ctx, types.BookingFilter{Statuses: []types.BookingStatus{types.BookingAccepted}})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "b-1", accepted[0].ID)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetDoctor(ctx, "nobody")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = store.UpdateBookingStatus(ctx, "nothing", types.BookingAccepted, testNow)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, store.DeleteWindow(ctx, "nothing"), types.ErrNotFound)
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Close())
}
