package scheduling

import (
	"context"
	"time"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// DefaultExcludedStatuses are ignored by conflict queries
var DefaultExcludedStatuses = []types.BookingStatus{types.BookingCancelled}

// BookingStore answers conflict queries and owns the status state machine
type BookingStore struct {
	store interfaces.Store
	now   func() time.Time
}

// NewBookingStore creates a booking store over store. Status changes are
// stamped with now.
func NewBookingStore(store interfaces.Store, now func() time.Time) *BookingStore {
	return &BookingStore{store: store, now: now}
}

// FindOverlapping returns bookings of the doctor on date whose range overlaps
// rng. With no exclude argument cancelled bookings are skipped.
func FindOverlapping(ctx context.Context, repo interfaces.SchedulingRepository, doctorID, date string, rng timerange.TimeRange, exclude ...types.BookingStatus) ([]*types.Booking, error) {
	if len(exclude) == 0 {
		exclude = DefaultExcludedStatuses
	}
	bookings, err := repo.ListBookings(ctx, types.BookingFilter{
		DoctorID:        doctorID,
		Date:            date,
		ExcludeStatuses: exclude,
	})
	if err != nil {
		return nil, err
	}
	overlapping := make([]*types.Booking, 0)
	for _, b := range bookings {
		if b.Range.Overlaps(rng) {
			overlapping = append(overlapping, b)
		}
	}
	return overlapping, nil
}

// FindByDoctorPatientDate returns the pair's bookings on date. With no
// exclude argument cancelled bookings are skipped.
func FindByDoctorPatientDate(ctx context.Context, repo interfaces.SchedulingRepository, doctorID, patientID, date string, exclude ...types.BookingStatus) ([]*types.Booking, error) {
	if len(exclude) == 0 {
		exclude = DefaultExcludedStatuses
	}
	return repo.ListBookings(ctx, types.BookingFilter{
		DoctorID:        doctorID,
		PatientID:       patientID,
		Date:            date,
		ExcludeStatuses: exclude,
	})
}

// FindOverlapping runs the overlap query outside any scope
func (s *BookingStore) FindOverlapping(ctx context.Context, doctorID, date string, rng timerange.TimeRange, exclude ...types.BookingStatus) ([]*types.Booking, error) {
	return FindOverlapping(ctx, s.store, doctorID, date, rng, exclude...)
}

// FindByDoctorPatientDate runs the pair query outside any scope
func (s *BookingStore) FindByDoctorPatientDate(ctx context.Context, doctorID, patientID, date string, exclude ...types.BookingStatus) ([]*types.Booking, error) {
	return FindByDoctorPatientDate(ctx, s.store, doctorID, patientID, date, exclude...)
}

// Get returns a booking visible to actor
func (s *BookingStore) Get(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !b.IsParticipant(actor.ID) {
		return nil, types.NewError(types.ErrForbidden, "booking %s belongs to other users", bookingID)
	}
	return b, nil
}

// Transition moves a booking to the status implied by action. It is the only
// mutation path for status. It returns the booking before and after the
// change. Failures in order: not found, forbidden, invalid transition.
func (s *BookingStore) Transition(ctx context.Context, actor types.Actor, bookingID string, action types.BookingAction) (before, after *types.Booking, err error) {
	target := action.TargetStatus()
	if target == "" {
		return nil, nil, types.NewError(types.ErrInvalidInput, "unknown booking action %q", action)
	}

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	err = s.store.InScope(ctx, current.DoctorID, current.Date, func(repo interfaces.SchedulingRepository) error {
		b, err := repo.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeTransition(actor, b, action); err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(target) {
			return types.NewError(types.ErrInvalidStateTransition, "cannot %s a %s booking", action, b.Status).
				WithDetails(map[string]interface{}{"from": b.Status, "to": target})
		}
		updated, err := repo.UpdateBookingStatus(ctx, bookingID, target, s.now().UTC())
		if err != nil {
			return err
		}
		before, after = b, updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// authorizeTransition: accept and reject belong to the booking's doctor;
// cancel belongs to either participant or an administrator.
func authorizeTransition(actor types.Actor, b *types.Booking, action types.BookingAction) error {
	switch action {
	case types.ActionAccept, types.ActionReject:
		if actor.IsDoctor() && actor.ID == b.DoctorID {
			return nil
		}
		return types.NewError(types.ErrForbidden, "only the booking's doctor may %s it", action)
	case types.ActionCancel:
		if actor.IsAdmin() || b.IsParticipant(actor.ID) {
			return nil
		}
		return types.NewError(types.ErrForbidden, "only a participant may cancel booking %s", b.ID)
	}
	return types.NewError(types.ErrForbidden, "action %q not permitted", action)
}
