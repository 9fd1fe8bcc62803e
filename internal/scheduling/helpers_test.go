package scheduling

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/types"
)

var testNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

const (
	testDate   = "2025-06-10"
	testDoctor = "doctor-1"
)

var (
	doctorActor = types.Actor{ID: testDoctor, Role: types.RoleDoctor}
	adminActor  = types.Actor{ID: "admin-1", Role: types.RoleAdmin}
)

func patient(id string) types.Actor {
	return types.Actor{ID: id, Role: types.RolePatient}
}

func fixedClock() time.Time { return testNow }

type recordingNotifier struct {
	mu    sync.Mutex
	items []*types.Notification
}

func (r *recordingNotifier) Notify(n *types.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) all() []*types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Notification(nil), r.items...)
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

func sequentialIDs() func() string {
	var seq atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", seq.Add(1))
	}
}

func newMemoryFixture(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	store.PutDoctor(&types.Doctor{ID: testDoctor, Name: "Dr. Dana", Role: types.RoleDoctor, IsActive: true, IsVerified: true})
	store.PutDoctor(&types.Doctor{ID: "doctor-2", Name: "Dr. Eli", Role: types.RoleDoctor, IsActive: true, IsVerified: true})
	store.PutDoctor(&types.Doctor{ID: "doctor-unverified", Role: types.RoleDoctor, IsActive: true, IsVerified: false})
	store.PutDoctor(&types.Doctor{ID: "doctor-inactive", Role: types.RoleDoctor, IsActive: false, IsVerified: true})
	store.PutDoctor(&types.Doctor{ID: "not-a-doctor", Role: types.RolePatient, IsActive: true, IsVerified: true})
	return store
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *recordingNotifier) {
	t.Helper()
	store := newMemoryFixture(t)
	notifier := &recordingNotifier{}
	engine := NewEngine(store, notifier, DefaultRules(), logger.Discard(),
		WithClock(fixedClock),
		WithIDGenerator(sequentialIDs()),
	)
	return engine, store, notifier
}

func bookingReq(patientID, start string, duration int) types.BookingRequest {
	return types.BookingRequest{
		DoctorID:  testDoctor,
		PatientID: patientID,
		Date:      testDate,
		StartTime: start,
		Duration:  duration,
	}
}
