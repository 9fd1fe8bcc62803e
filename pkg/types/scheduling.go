package types

import (
	"time"

	"github.com/medrex/booking/pkg/timerange"
)

// AvailabilityWindow is a doctor-declared open interval on a calendar date.
// Windows are never mutated after creation.
type AvailabilityWindow struct {
	ID        string              `json:"id" db:"id"`
	DoctorID  string              `json:"doctor_id" db:"doctor_id"`
	Date      string              `json:"date" db:"date"`
	Range     timerange.TimeRange `json:"range"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// BookingStatus is the canonical booking state. Display aliases belong in clients.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingAccepted  BookingStatus = "ACCEPTED"
	BookingRejected  BookingStatus = "REJECTED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Valid reports whether s is one of the canonical statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingRejected, BookingCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingRejected || s == BookingCancelled
}

// CanTransitionTo encodes the booking state machine:
// PENDING -> ACCEPTED | REJECTED | CANCELLED, ACCEPTED -> CANCELLED.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingAccepted || next == BookingRejected || next == BookingCancelled
	case BookingAccepted:
		return next == BookingCancelled
	}
	return false
}

// BookingAction is a requested lifecycle transition.
type BookingAction string

const (
	ActionAccept BookingAction = "accept"
	ActionReject BookingAction = "reject"
	ActionCancel BookingAction = "cancel"
)

// TargetStatus returns the status an action moves a booking to.
func (a BookingAction) TargetStatus() BookingStatus {
	switch a {
	case ActionAccept:
		return BookingAccepted
	case ActionReject:
		return BookingRejected
	case ActionCancel:
		return BookingCancelled
	}
	return ""
}

// Booking is a reservation of doctor time by a patient.
type Booking struct {
	ID        string              `json:"id" db:"id"`
	DoctorID  string              `json:"doctor_id" db:"doctor_id"`
	PatientID string              `json:"patient_id" db:"patient_id"`
	Date      string              `json:"date" db:"date"`
	Range     timerange.TimeRange `json:"range"`
	Duration  int                 `json:"duration" db:"duration"`
	Status    BookingStatus       `json:"status" db:"status"`
	Reason    string              `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}

// IsParticipant reports whether userID is the booking's doctor or patient.
func (b *Booking) IsParticipant(userID string) bool {
	return userID != "" && (b.DoctorID == userID || b.PatientID == userID)
}

// Doctor is the directory record consulted before accepting bookings.
type Doctor struct {
	ID         string   `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	Role       UserRole `json:"role" db:"role"`
	Specialty  string   `json:"specialty,omitempty" db:"specialty"`
	IsActive   bool     `json:"is_active" db:"is_active"`
	IsVerified bool     `json:"is_verified" db:"is_verified"`
}

// Bookable reports whether patients may book this doctor.
func (d *Doctor) Bookable() bool {
	return d != nil && d.Role == RoleDoctor && d.IsActive && d.IsVerified
}

// AvailabilityFilter selects windows. Empty fields do not filter.
type AvailabilityFilter struct {
	DoctorID string `json:"doctor_id,omitempty"`
	Date     string `json:"date,omitempty"`
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
}

// BookingFilter selects bookings. Empty fields do not filter.
type BookingFilter struct {
	DoctorID        string          `json:"doctor_id,omitempty"`
	PatientID       string          `json:"patient_id,omitempty"`
	Date            string          `json:"date,omitempty"`
	FromDate        string          `json:"from_date,omitempty"`
	ToDate          string          `json:"to_date,omitempty"`
	Statuses        []BookingStatus `json:"statuses,omitempty"`
	ExcludeStatuses []BookingStatus `json:"exclude_statuses,omitempty"`
}

// SlotState classifies a projected calendar slot.
type SlotState string

const (
	SlotUnavailable  SlotState = "unavailable"
	SlotAvailable    SlotState = "available"
	SlotReserved     SlotState = "reserved"
	SlotMinePending  SlotState = "mine-pending"
	SlotMineAccepted SlotState = "mine-accepted"
)

// SlotView is one UI-facing calendar slot.
type SlotView struct {
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	State     SlotState `json:"state"`
	BookingID string    `json:"booking_id,omitempty"`

	Range timerange.TimeRange `json:"-"`
}

// Calendar maps ISO dates to their ordered slots.
type Calendar map[string][]SlotView

// PublicBookedSlot exposes an occupied interval without patient data.
type PublicBookedSlot struct {
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Duration  int           `json:"duration"`
	Status    BookingStatus `json:"status"`
}

// NotificationType identifies a booking notification.
type NotificationType string

const (
	NotificationBookingRequested NotificationType = "BOOKING_REQUESTED"
	NotificationBookingCreated   NotificationType = "BOOKING_CREATED"
	NotificationBookingAccepted  NotificationType = "BOOKING_ACCEPTED"
	NotificationBookingRejected  NotificationType = "BOOKING_REJECTED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
)

// Notification is the payload handed to the notification sink.
type Notification struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Type             NotificationType `json:"type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	RelatedBookingID string           `json:"related_booking_id"`
	CreatedAt        time.Time        `json:"created_at"`
}

// BookingRequest carries the inputs of a booking creation.
type BookingRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
	Reason    string `json:"reason,omitempty"`
}

// CalendarOptions tunes calendar projection.
type CalendarOptions struct {
	// Granularity is the slot length in minutes; zero selects the configured default.
	Granularity int `json:"granularity,omitempty"`
	// IncludeUnavailable adds business-hour slots not covered by any window.
	IncludeUnavailable bool `json:"include_unavailable,omitempty"`
}
