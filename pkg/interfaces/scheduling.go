package interfaces

import (
	"context"
	"time"

	"github.com/medrex/booking/pkg/types"
)

// SchedulingEngine defines the booking core consumed by transports
type SchedulingEngine interface {
	// Availability management
	CreateAvailability(ctx context.Context, actor types.Actor, doctorID, date, startTime, endTime string) (*types.AvailabilityWindow, error)
	ListAvailability(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error)
	RemoveAvailability(ctx context.Context, actor types.Actor, windowID string) error

	// Calendar projection
	GetCalendar(ctx context.Context, viewer types.Actor, doctorID, from, to string, opts types.CalendarOptions) (types.Calendar, error)
	GetPublicBookedSlots(ctx context.Context, doctorID, date string) ([]types.PublicBookedSlot, error)

	// Booking lifecycle
	CreateBooking(ctx context.Context, actor types.Actor, req types.BookingRequest) (*types.Booking, error)
	GetBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error)
	AcceptBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error)
	RejectBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error)
	CancelBooking(ctx context.Context, actor types.Actor, bookingID string) (*types.Booking, error)

	// Booking queries
	ListBookingsForDoctor(ctx context.Context, actor types.Actor, doctorID string, filter types.BookingFilter) ([]*types.Booking, error)
	ListBookingsForPatient(ctx context.Context, actor types.Actor, patientID string, filter types.BookingFilter) ([]*types.Booking, error)
}

// SchedulingRepository defines the persistence contract for windows, bookings
// and the doctor directory. Implementations return types.ErrNotFound for
// missing rows and sort list results by (date, start minute).
type SchedulingRepository interface {
	// Availability windows
	InsertWindow(ctx context.Context, w *types.AvailabilityWindow) error
	GetWindow(ctx context.Context, id string) (*types.AvailabilityWindow, error)
	ListWindows(ctx context.Context, filter types.AvailabilityFilter) ([]*types.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id string) error

	// Bookings
	InsertBooking(ctx context.Context, b *types.Booking) error
	GetBooking(ctx context.Context, id string) (*types.Booking, error)
	ListBookings(ctx context.Context, filter types.BookingFilter) ([]*types.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, updatedAt time.Time) (*types.Booking, error)

	// Doctor directory
	DoctorDirectory
}

// DoctorDirectory resolves doctor records owned by the identity service
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id string) (*types.Doctor, error)
}

// Store adds the serialization boundary required for check-then-write
// sequences on a (doctorID, date) scope.
type Store interface {
	SchedulingRepository

	// InScope runs fn with exclusive access to the scope. Every read and
	// write fn performs through repo is part of one atomic unit; an error
	// returned by fn discards its writes.
	InScope(ctx context.Context, doctorID, date string, fn func(repo SchedulingRepository) error) error

	Close() error
}

// NotificationSink delivers a notification to a user. Failures are reported
// to the dispatcher, never to the booking caller.
type NotificationSink interface {
	Send(ctx context.Context, n *types.Notification) error
}
