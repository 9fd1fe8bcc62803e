package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/types"
)

type scopeKey struct {
	doctorID string
	date     string
}

// MemoryStore is an in-process Store. Mutations of one (doctor, date) scope
// are serialized by a per-scope mutex; every value crossing the API is copied.
type MemoryStore struct {
	mu       sync.RWMutex
	windows  map[string]*types.AvailabilityWindow
	bookings map[string]*types.Booking
	doctors  map[string]*types.Doctor

	scopeMu sync.Mutex
	scopes  map[scopeKey]*sync.Mutex

}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:  make(map[string]*types.AvailabilityWindow),
		bookings: make(map[string]*types.Booking),
		doctors:  make(map[string]*types.Doctor),
		scopes:   make(map[scopeKey]*sync.Mutex),
	}
}

// PutDoctor seeds or replaces a doctor directory record
func (s *MemoryStore) PutDoctor(d *types.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.doctors[d.ID] = &c
}

// GetDoctor returns a doctor directory record
func (s *MemoryStore) GetDoctor(ctx context.Context, id string) (*types.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "doctor %s not found", id)
	}
	c := *d
	return &c, nil
}

// InsertWindow stores a new availability window
func (s *MemoryStore) InsertWindow(ctx context.Context, w *types.AvailabilityWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.windows[w.ID]; exists {
		return types.NewInternalError("duplicate window id", nil)
	}
	c := *w
	s.windows[w.ID] = &c
	return nil
}

// GetWindow returns a window by id
func (s *MemoryStore) GetWindow(ctx context.Context, id string) (*types.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "availability window %s not found", id)
	}
	c := *w
	return &c, nil
}

// ListWindows returns matching windows sorted by (date, start)
func (s *MemoryStore) ListWindows(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.AvailabilityWindow, 0)
	for _, w := range s.windows {
		if filter.DoctorID != "" && w.DoctorID != filter.DoctorID {
			continue
		}
		if !dateMatches(w.Date, filter.Date, filter.FromDate, filter.ToDate) {
			continue
		}
		c := *w
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		return a.ID < b.ID
	})
	return result, nil
}

// DeleteWindow removes a window
func (s *MemoryStore) DeleteWindow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return types.NewError(types.ErrNotFound, "availability window %s not found", id)
	}
	delete(s.windows, id)
	return nil
}

// InsertBooking stores a new booking
func (s *MemoryStore) InsertBooking(ctx context.Context, b *types.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return types.NewInternalError("duplicate booking id", nil)
	}
	c := *b
	s.bookings[b.ID] = &c
	return nil
}

// GetBooking returns a booking by id
func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*types.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "booking %s not found", id)
	}
	c := *b
	return &c, nil
}

// ListBookings returns matching bookings sorted by (date, start)
func (s *MemoryStore) ListBookings(ctx context.Context, filter types.BookingFilter) ([]*types.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.Booking, 0)
	for _, b := range s.bookings {
		if filter.DoctorID != "" && b.DoctorID != filter.DoctorID {
			continue
		}
		if filter.PatientID != "" && b.PatientID != filter.PatientID {
			continue
		}
		if !dateMatches(b.Date, filter.Date, filter.FromDate, filter.ToDate) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, b.Status) {
			continue
		}
		if containsStatus(filter.ExcludeStatuses, b.Status) {
			continue
		}
		c := *b
		result = append(result, &c)
	}
	sortBookings(result)
	return result, nil
}

// UpdateBookingStatus sets the status of a booking and returns the result
func (s *MemoryStore) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, updatedAt time.Time) (*types.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "booking %s not found", id)
	}
	b.Status = status
	b.UpdatedAt = updatedAt
	c := *b
	return &c, nil
}

// InScope serializes fn against other scope holders. Writes fn made are
// reverted when it returns an error.
func (s *MemoryStore) InScope(ctx context.Context, doctorID, date string, fn func(repo interfaces.SchedulingRepository) error) error {
	lock := s.scopeLock(doctorID, date)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryScope{MemoryStore: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// Ping reports the store as reachable
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) scopeLock(doctorID, date string) *sync.Mutex {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	key := scopeKey{doctorID: doctorID, date: date}
	lock, ok := s.scopes[key]
	if !ok {
		lock = &sync.Mutex{}
		s.scopes[key] = lock
	}
	return lock
}

// memoryScope records an undo log for the writes made inside InScope
type memoryScope struct {
	*MemoryStore
	undo []func()
}

func (t *memoryScope) InsertWindow(ctx context.Context, w *types.AvailabilityWindow) error {
	if err := t.MemoryStore.InsertWindow(ctx, w); err != nil {
		return err
	}
	id := w.ID
	t.undo = append(t.undo, func() { delete(t.windows, id) })
	return nil
}

func (t *memoryScope) DeleteWindow(ctx context.Context, id string) error {
	prev, err := t.MemoryStore.GetWindow(ctx, id)
	if err != nil {
		return err
	}
	if err := t.MemoryStore.DeleteWindow(ctx, id); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { t.windows[id] = prev })
	return nil
}

func (t *memoryScope) InsertBooking(ctx context.Context, b *types.Booking) error {
	if err := t.MemoryStore.InsertBooking(ctx, b); err != nil {
		return err
	}
	id := b.ID
	t.undo = append(t.undo, func() { delete(t.bookings, id) })
	return nil
}

func (t *memoryScope) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, updatedAt time.Time) (*types.Booking, error) {
	prev, err := t.MemoryStore.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := t.MemoryStore.UpdateBookingStatus(ctx, id, status, updatedAt)
	if err != nil {
		return nil, err
	}
	t.undo = append(t.undo, func() { t.bookings[id] = prev })
	return updated, nil
}

func (t *memoryScope) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func dateMatches(date, exact, from, to string) bool {
	if exact != "" && date != exact {
		return false
	}
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

func containsStatus(list []types.BookingStatus, status types.BookingStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func sortBookings(bookings []*types.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		return a.ID < b.ID
	})
}
