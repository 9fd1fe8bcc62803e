//go:build integration

package scheduling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/database"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// startPostgres runs a throwaway PostgreSQL container with the booking schema
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "booking_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := logger.Discard()
	db, err := database.NewConnection(&config.DatabaseConfig{
		URL:             fmt.Sprintf("postgres://test:testpass@%s:%s/booking_test?sslmode=disable", host, port.Port()),
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 60,
	}, log)
	require.NoError(t, err)
	require.NoError(t, db.CreateSchema(ctx))

	_, err = db.ExecContext(ctx, `
		INSERT INTO doctors (id, name, role, is_active, is_verified) VALUES
			('doctor-1', 'Dr. Dana', 'DOCTOR', TRUE, TRUE),
			('doctor-unverified', 'Dr. New', 'DOCTOR', TRUE, FALSE)`)
	require.NoError(t, err)
	return db
}

func newPostgresEngine(t *testing.T) (*Engine, *Repository) {
	t.Helper()
	db := startPostgres(t)
	log := logger.Discard()
	repo := NewRepository(db, log, monitoring.NewMetricsCollector("booking"))
	t.Cleanup(func() { _ = repo.Close() })

	engine := NewEngine(repo, &recordingNotifier{}, DefaultRules(), log, WithClock(fixedClock))
	return engine, repo
}

func TestPostgres_BookingLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, _ := newPostgresEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)
	_, err = engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "11:00", "13:00")
	assert.ErrorIs(t, err, types.ErrOverlap)

	b, err := engine.CreateBooking(ctx, patient("p1"), bookingReq("p1", "09:00", 60))
	require.NoError(t, err)

	_, err = engine.CreateBooking(ctx, patient("p2"), bookingReq("p2", "09:30", 60))
	assert.ErrorIs(t, err, types.ErrSlotConflict)
	_, err = engine.CreateBooking(ctx, patient("p1"), bookingReq("p1", "11:00", 60))
	assert.ErrorIs(t, err, types.ErrDuplicateBooking)
	_, err = engine.CreateBooking(ctx, patient("p2"), types.BookingRequest{DoctorID: "doctor-unverified", Date: testDate, StartTime: "09:00", Duration: 60})
	assert.ErrorIs(t, err, types.ErrDoctorUnavailable)

	accepted, err := engine.AcceptBooking(ctx, doctorActor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BookingAccepted, accepted.Status)

	_, err = engine.CancelBooking(ctx, patient("p1"), b.ID)
	require.NoError(t, err)

	_, err = engine.CreateBooking(ctx, patient("p4"), bookingReq("p4", "09:00", 60))
	assert.NoError(t, err, "cancelled bookings free their slot")

	cal, err := engine.GetCalendar(ctx, patient("p4"), testDoctor, testDate, testDate, types.CalendarOptions{})
	require.NoError(t, err)
	require.Len(t, cal[testDate], 3)
	assert.Equal(t, types.SlotMinePending, cal[testDate][0].State)
}

func TestPostgres_ConcurrentBookingsForSameSlot(t *testing.T) {
	ctx := context.Background()
	engine, _ := newPostgresEngine(t)

	_, err := engine.CreateAvailability(ctx, doctorActor, testDoctor, testDate, "09:00", "12:00")
	require.NoError(t, err)

	const racers = 10
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

func TestPostgres_ExclusionConstraintBacksTheLock(t *testing.T) {
	ctx := context.Background()
	_, repo := newPostgresEngine(t)

	insert := func(id, patientID string, rng timerange.TimeRange) error {
		return repo.InsertBooking(ctx, &types.Booking{
			ID: id, DoctorID: testDoctor, PatientID: patientID, Date: testDate,
			Range: rng, Duration: rng.Duration(), Status: types.BookingPending,
			CreatedAt: testNow, UpdatedAt: testNow,
		})
	}

	require.NoError(t, insert("b-1", "p1", timerange.MustNew(540, 600)))
	assert.ErrorIs(t, insert("b-2", "p2", timerange.MustNew(570, 630)), types.ErrSlotConflict)
	assert.ErrorIs(t, insert("b-3", "p1", timerange.MustNew(700, 760)), types.ErrDuplicateBooking)
	assert.NoError(t, insert("b-4", "p3", timerange.MustNew(600, 660)), "adjacent ranges do not collide")
}
