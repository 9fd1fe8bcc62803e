package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/logger"
	"github.com/medrex/booking/pkg/monitoring"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// Operation names used for audit and metrics
const (
	opCreateAvailability = "create_availability"
	opRemoveAvailability = "remove_availability"
	opCreateBooking      = "create_booking"
	opAcceptBooking      = "accept_booking"
	opRejectBooking      = "reject_booking"
	opCancelBooking      = "cancel_booking"
)

// Engine orchestrates availability, bookings and the calendar projection
type Engine struct {
	store        interfaces.Store
	availability *AvailabilityStore
	bookings     *BookingStore
	calendar     *CalendarProjector
	notifier     Notifier
	rules        Rules
	logger       *logger.Logger
	metrics      *monitoring.MetricsCollector
	now          func() time.Time
	newID        func() string
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides id generation
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

// WithMetrics records operation metrics
func WithMetrics(m *monitoring.MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates the scheduling engine
func NewEngine(store interfaces.Store, notifier Notifier, rules Rules, log *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		rules:    rules,
		logger:   log,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.availability = NewAvailabilityStore(store, rules, e.now)
	e.availability.newID = e.newID
	e.bookings = NewBookingStore(store, e.now)
	e.calendar = NewCalendarProjector(store, rules)
	return e
}

var _ interfaces.SchedulingEngine = (*Engine)(nil)

// CreateAvailability publishes a window for doctorID. Only the doctor
// themselves or an administrator may do so.
func (e *Engine) CreateAvailability(ctx context.Context, actor types.Actor, doctorID, date, startTime, endTime string) (window *types.AvailabilityWindow, err error) {
	defer e.observe(ctx, actor, opCreateAvailability, time.Now(), func() map[string]interface{} {
		details := map[string]interface{}{"doctor_id": doctorID, "date": date, "start": startTime, "end": endTime}
		if window != nil {
			details["window_id"] = window.ID
		}
		return details
	}, &err)

	if !actor.IsAdmin() && !(actor.IsDoctor() && actor.ID == doctorID) {
		return nil, types.NewError(types.ErrForbidden, "only doctor %s may publish this availability", doctorID)
	}
	if err := types.ValidateDate(date); err != nil {
		return nil, err
	}
	rng, err := timerange.FromClock(startTime, endTime)
	if err != nil {
		return nil, types.FromRangeError(err)
	}
	return e.availability.Insert(ctx, doctorID, date, rng)
}

// ListAvailability returns windows matching filter
func (e *Engine) ListAvailability(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error) {
	return e.availability.Query(ctx, filter)
}

// RemoveAvailability deletes a window. Existing bookings are kept.
func (e *Engine) RemoveAvailability(ctx context.Context, actor types.Actor, windowID string) (err error) {
	defer e.observe(ctx, actor, opRemoveAvailability, time.Now(), func() map[string]interface{} {
		return map[string]interface{}{"window_id": windowID}
	}, &err)

	_, err = e.availability.Remove(ctx, actor, windowID)
	return err
}

// GetCalendar projects doctorID's calendar for viewer
func (e *Engine) GetCalendar(ctx context.Context, viewer types.Actor, doctorID, from, to string, opts types.CalendarOptions) (types.Calendar, error) {
	return e.calendar.Project(ctx, doctorID, from, to, viewer, opts)
}

// GetPublicBookedSlots lists occupied intervals without patient data. An
// empty date lists every date.
func (e *Engine) GetPublicBookedSlots(ctx context.Context, doctorID, date string) ([]types.PublicBookedSlot, error) {
	if doctorID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "doctor id is required")
	}
	if date != "" {
		if err := types.ValidateDate(date); err != nil {
			return nil, err
		}
	}
	bookings, err := e.store.ListBookings(ctx, types.BookingFilter{
		DoctorID:        doctorID,
		Date:            date,
		ExcludeStatuses: DefaultExcludedStatuses,
	})
	if err != nil {
		return nil, err
	}
	slots := make([]types.PublicBookedSlot, 0, len(bookings))
	for _, b := range bookings {
		slots = append(slots, types.PublicBookedSlot{
			Date:      b.Date,
			StartTime: b.Range.StartClock(),
			EndTime:   b.Range.EndClock(),
			Duration:  b.Duration,
			Status:    b.Status,
		})
	}
	return slots, nil
}

// CreateBooking validates and stores a PENDING booking. Checks run in a
// fixed order so the first applicable error is the one reported:
// time format, past date, duration, range, doctor, duplicate, availability,
// coverage, conflict.
func (e *Engine) CreateBooking(ctx context.Context, actor types.Actor, req types.BookingRequest) (booking *types.Booking, err error) {
	defer e.observe(ctx, actor, opCreateBooking, time.Now(), func() map[string]interface{} {
		details := map[string]interface{}{"doctor_id": req.DoctorID, "date": req.Date, "start": req.StartTime, "duration": req.Duration}
		if booking != nil {
			details["booking_id"] = booking.ID
		}
		return details
	}, &err)

	if req.PatientID == "" {
		req.PatientID = actor.ID
	}
	if req.DoctorID == "" || req.PatientID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "doctor id and patient id are required")
	}
	if !actor.IsAdmin() && !(actor.Role == types.RolePatient && actor.ID == req.PatientID) {
		return nil, types.NewError(types.ErrForbidden, "bookings can only be made by the patient")
	}

	// 1. resolve start
	start, err := timerange.ParseClock(req.StartTime)
	if err != nil {
		return nil, types.FromRangeError(err)
	}
	if _, err := types.ParseDate(req.Date); err != nil {
		return nil, err
	}

	// 2. past date
	now := e.now()
	if today := types.Today(now); req.Date < today {
		return nil, types.NewError(types.ErrPastDate, "date %s is before today (%s)", req.Date, today)
	}

	// 3. duration
	if !e.rules.DurationAllowed(req.Duration) {
		return nil, types.NewError(types.ErrInvalidDuration, "duration %d is not one of %v", req.Duration, e.rules.AllowedDurations).
			WithDetails(map[string]interface{}{"allowed": e.rules.AllowedDurations})
	}
	// A range running past midnight fits no window. It is reported by the
	// coverage step so the doctor and duplicate checks still come first.
	rng, rangeErr := timerange.FromStart(start, req.Duration)

	// 4. doctor
	doctor, err := e.store.GetDoctor(ctx, req.DoctorID)
	if err != nil && !isCode(err, types.ErrCodeNotFound) {
		return nil, err
	}
	if !doctor.Bookable() {
		return nil, types.NewError(types.ErrDoctorUnavailable, "doctor %s is not available for booking", req.DoctorID)
	}

	candidate := &types.Booking{
		ID:        e.newID(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		Range:     rng,
		Duration:  req.Duration,
		Status:    types.BookingPending,
		Reason:    req.Reason,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	err = e.store.InScope(ctx, req.DoctorID, req.Date, func(repo interfaces.SchedulingRepository) error {
		// 5. one booking per doctor, patient and day
		existing, err := FindByDoctorPatientDate(ctx, repo, req.DoctorID, req.PatientID, req.Date)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return types.NewError(types.ErrDuplicateBooking, "patient already has booking %s with this doctor on %s", existing[0].ID, req.Date)
		}

		// 6. availability on the date
		windows, err := repo.ListWindows(ctx, types.AvailabilityFilter{DoctorID: req.DoctorID, Date: req.Date})
		if err != nil {
			return err
		}
		if len(windows) == 0 {
			return types.NewError(types.ErrNoAvailability, "doctor %s has no availability on %s", req.DoctorID, req.Date)
		}

		// 7. coverage
		if rangeErr != nil {
			return types.NewError(types.ErrOutsideAvailability, "%s plus %d minutes runs past midnight", req.StartTime, req.Duration)
		}
		covered := false
		for _, w := range windows {
			if w.Range.Contains(rng) {
				covered = true
				break
			}
		}
		if !covered {
			return types.NewError(types.ErrOutsideAvailability, "%s is not inside any availability window", rng)
		}

		// 8. conflicts
		conflicts, err := FindOverlapping(ctx, repo, req.DoctorID, req.Date, rng)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return types.NewError(types.ErrSlotConflict, "%s conflicts with an existing booking", rng)
		}

		// 9. persist
		return repo.InsertBooking(ctx, candidate)
	})
	if err != nil {
		return nil, err
	}

	e.notifyCreated(candidate)
	return candidate, nil
}

// GetBooking returns a booking to one of its participants
func (e *Engine) GetBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error) {
	return e.bookings.Get(ctx, actor, bookingID)
}

// AcceptBooking moves a PENDING booking to ACCEPTED
func (e *Engine) AcceptBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error) {
	return e.transition(ctx, actor, bookingID, types.ActionAccept, opAcceptBooking)
}

// RejectBooking moves a PENDING booking to REJECTED
func (e *Engine) RejectBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error) {
	return e.transition(ctx, actor, bookingID, types.ActionReject, opRejectBooking)
}

// CancelBooking moves a PENDING or ACCEPTED booking to CANCELLED
func (e *Engine) CancelBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error) {
	return e.transition(ctx, actor, bookingID, types.ActionCancel, opCancelBooking)
}

// ListBookingsForDoctor lists a doctor's bookings; visible to that doctor
// and administrators.
func (e *Engine) ListBookingsForDoctor(ctx context.Context, actor types.Actor, doctorID string, filter types.BookingFilter) ([]*types.Booking, error) {
	if !actor.IsAdmin() && !(actor.IsDoctor() && actor.ID == doctorID) {
		return nil, types.NewError(types.ErrForbidden, "bookings of doctor %s are not visible to this user", doctorID)
	}
	filter.DoctorID = doctorID
	return e.listBookings(ctx, filter)
}

// ListBookingsForPatient lists a patient's bookings; visible to that patient
// and administrators.
func (e *Engine) ListBookingsForPatient(ctx context.Context, actor types.Actor, patientID string, filter types.BookingFilter) ([]*types.Booking, error) {
	if !actor.IsAdmin() && actor.ID != patientID {
		return nil, types.NewError(types.ErrForbidden, "bookings of patient %s are not visible to this user", patientID)
	}
	filter.PatientID = patientID
	return e.listBookings(ctx, filter)
}

func (e *Engine) listBookings(ctx context.Context, filter types.BookingFilter) ([]*types.Booking, error) {
	for _, d := range []string{filter.Date, filter.FromDate, filter.ToDate} {
		if d == "" {
			continue
		}
		if err := types.ValidateDate(d); err != nil {
			return nil, err
		}
	}
	for _, s := range append(append([]types.BookingStatus(nil), filter.Statuses...), filter.ExcludeStatuses...) {
		if !s.Valid() {
			return nil, types.NewError(types.ErrInvalidInput, "unknown booking status %q", s)
		}
	}
	return e.store.ListBookings(ctx, filter)
}

func (e *Engine) transition(ctx context.Context, actor types.Actor, bookingID string, action types.BookingAction, op string) (after *types.Booking, err error) {
	defer e.observe(ctx, actor, op, time.Now(), func() map[string]interface{} {
		details := map[string]interface{}{"booking_id": bookingID}
		if after != nil {
			details["status"] = after.Status
		}
		return details
	}, &err)

	before, after, err := e.bookings.Transition(ctx, actor, bookingID, action)
	if err != nil {
		return nil, err
	}
	e.notifyTransition(actor, before, after)
	return after, nil
}

func (e *Engine) notifyCreated(b *types.Booking) {
	e.notify(b.DoctorID, types.NotificationBookingRequested, "New booking request",
		fmt.Sprintf("A patient requested %s on %s.", b.Range, b.Date), b.ID)
	e.notify(b.PatientID, types.NotificationBookingCreated, "Booking submitted",
		fmt.Sprintf("Your booking for %s on %s is awaiting confirmation.", b.Range, b.Date), b.ID)
}

func (e *Engine) notifyTransition(actor types.Actor, before, after *types.Booking) {
	switch after.Status {
	case types.BookingAccepted:
		e.notify(after.PatientID, types.NotificationBookingAccepted, "Booking accepted",
			fmt.Sprintf("Your booking for %s on %s was accepted.", after.Range, after.Date), after.ID)
	case types.BookingRejected:
		e.notify(after.PatientID, types.NotificationBookingRejected, "Booking rejected",
			fmt.Sprintf("Your booking for %s on %s was rejected.", after.Range, after.Date), after.ID)
	case types.BookingCancelled:
		msg := fmt.Sprintf("The booking for %s on %s was cancelled.", after.Range, after.Date)
		if actor.ID != after.DoctorID {
			e.notify(after.DoctorID, types.NotificationBookingCancelled, "Booking cancelled", msg, after.ID)
		}
		if actor.ID != after.PatientID {
			e.notify(after.PatientID, types.NotificationBookingCancelled, "Booking cancelled", msg, after.ID)
		}
	}
	e.logger.WithComponent("engine").WithFields(logrus.Fields{
		"booking_id": after.ID,
		"from":       before.Status,
		"to":         after.Status,
	}).Debug("Booking status changed")
}

func (e *Engine) notify(userID string, typ types.NotificationType, title, message, bookingID string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(&types.Notification{
		ID:               e.newID(),
		UserID:           userID,
		Type:             typ,
		Title:            title,
		Message:          message,
		RelatedBookingID: bookingID,
		CreatedAt:        e.now().UTC(),
	})
}

// observe emits the audit entry and operation metrics for a mutation
func (e *Engine) observe(ctx context.Context, actor types.Actor, op string, start time.Time, details func() map[string]interface{}, errp *error) {
	err := *errp
	d := details()

	outcome, code := monitoring.OutcomeSuccess, ""
	if err != nil {
		outcome, code = monitoring.OutcomeError, types.ErrCodeInternalError
		if se, ok := types.AsSchedulingError(err); ok {
			code = se.Code
			if se.Type != types.ErrorTypeInternal {
				outcome = monitoring.OutcomeRejected
			}
		}
		d["error"] = code
	}

	e.logger.Audit(ctx, actor.ID, op, resourceFor(op), err == nil, d)
	if outcome == monitoring.OutcomeError {
		e.logger.WithContext(ctx).WithError(err).WithField("operation", op).Error("Scheduling operation failed")
	}
	if e.metrics != nil {
		e.metrics.RecordOperation(op, outcome, code, time.Since(start))
	}
}

func resourceFor(op string) string {
	switch op {
	case opCreateAvailability, opRemoveAvailability:
		return "availability_window"
	}
	return "booking"
}

func isCode(err error, code string) bool {
	se, ok := types.AsSchedulingError(err)
	return ok && se.Code == code
}
