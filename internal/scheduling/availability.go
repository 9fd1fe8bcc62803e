package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// AvailabilityStore keeps, per doctor and date, a set of disjoint windows
type AvailabilityStore struct {
	store interfaces.Store
	rules Rules
	now   func() time.Time
	newID func() string
}

// NewAvailabilityStore creates an availability store over store
func NewAvailabilityStore(store interfaces.Store, rules Rules, now func() time.Time) *AvailabilityStore {
	return &AvailabilityStore{
		store: store,
		rules: rules,
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Insert validates and persists a new window. Checks run in order: past
// date, horizon, business hours, then overlap with existing windows.
func (a *AvailabilityStore) Insert(ctx context.Context, doctorID, date string, rng timerange.TimeRange) (*types.AvailabilityWindow, error) {
	if doctorID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "doctor id is required")
	}
	now := a.now()
	if err := a.rules.CheckDateWindow(date, now); err != nil {
		return nil, err
	}
	if err := a.rules.CheckBusinessHours(rng); err != nil {
		return nil, err
	}

	window := &types.AvailabilityWindow{
		ID:        a.newID(),
		DoctorID:  doctorID,
		Date:      date,
		Range:     rng,
		CreatedAt: now.UTC(),
	}

	err := a.store.InScope(ctx, doctorID, date, func(repo interfaces.SchedulingRepository) error {
		existing, err := repo.ListWindows(ctx, types.AvailabilityFilter{DoctorID: doctorID, Date: date})
		if err != nil {
			return err
		}
		for _, w := range existing {
			if w.Range.Overlaps(rng) {
				return types.NewError(types.ErrOverlap, "%s overlaps existing window %s", rng, w.Range).
					WithDetails(map[string]interface{}{"window_id": w.ID})
			}
		}
		return repo.InsertWindow(ctx, window)
	})
	if err != nil {
		return nil, err
	}
	return window, nil
}

// Query returns matching windows sorted by (date, start)
func (a *AvailabilityStore) Query(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error) {
	for _, d := range []string{filter.Date, filter.FromDate, filter.ToDate} {
		if d == "" {
			continue
		}
		if err := types.ValidateDate(d); err != nil {
			return nil, err
		}
	}
	if filter.FromDate != "" && filter.ToDate != "" && filter.FromDate > filter.ToDate {
		return nil, types.NewError(types.ErrInvalidRange, "from %s is after to %s", filter.FromDate, filter.ToDate)
	}
	return a.store.ListWindows(ctx, filter)
}

// Remove deletes a window owned by actor. Bookings placed inside the window
// are kept; coverage is only checked when a booking is created.
func (a *AvailabilityStore) Remove(ctx context.Context, actor types.Actor, windowID string) (*types.AvailabilityWindow, error) {
	window, err := a.store.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsDoctor() && actor.ID == window.DoctorID) {
		return nil, types.NewError(types.ErrForbidden, "availability window %s belongs to another doctor", windowID)
	}

	err = a.store.InScope(ctx, window.DoctorID, window.Date, func(repo interfaces.SchedulingRepository) error {
		return repo.DeleteWindow(ctx, windowID)
	})
	if err != nil {
		return nil, err
	}
	return window, nil
}
