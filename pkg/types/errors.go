package types

import (
	"errors"
	"fmt"

	"github.com/medrex/booking/pkg/timerange"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeBusinessRule   ErrorType = "business_rule"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeState          ErrorType = "state"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeInternal       ErrorType = "internal"
)

// Error codes surfaced to callers
const (
	ErrCodeInvalidTimeFormat      = "INVALID_TIME_FORMAT"
	ErrCodeInvalidDateFormat      = "INVALID_DATE_FORMAT"
	ErrCodeInvalidRange           = "INVALID_RANGE"
	ErrCodeInvalidDuration        = "INVALID_DURATION"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodePastDate               = "PAST_DATE"
	ErrCodeDateTooFar             = "DATE_TOO_FAR"
	ErrCodeOutOfBusinessHours     = "OUT_OF_BUSINESS_HOURS"
	ErrCodeOverlap                = "OVERLAP"
	ErrCodeNoAvailability         = "NO_AVAILABILITY"
	ErrCodeOutsideAvailability    = "OUTSIDE_AVAILABILITY"
	ErrCodeSlotConflict           = "SLOT_CONFLICT"
	ErrCodeDuplicateBooking       = "DUPLICATE_BOOKING"
	ErrCodeDoctorUnavailable      = "DOCTOR_UNAVAILABLE"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeInternalError          = "INTERNAL_ERROR"
)

// SchedulingError represents a structured error in the booking core.
// Two SchedulingErrors match under errors.Is when their codes are equal.
type SchedulingError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SchedulingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *SchedulingError) Unwrap() error {
	return e.Cause
}

// Is matches on error code.
func (e *SchedulingError) Is(target error) bool {
	t, ok := target.(*SchedulingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e carrying details.
func (e *SchedulingError) WithDetails(details map[string]interface{}) *SchedulingError {
	clone := *e
	clone.Details = details
	return &clone
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidTimeFormat      = &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidTimeFormat, Message: "invalid time format"}
	ErrInvalidDateFormat      = &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidDateFormat, Message: "invalid date format"}
	ErrInvalidRange           = &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidRange, Message: "invalid range"}
	ErrInvalidDuration        = &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidDuration, Message: "invalid duration"}
	ErrInvalidInput           = &SchedulingError{Type: ErrorTypeValidation, Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrPastDate               = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodePastDate, Message: "date is in the past"}
	ErrDateTooFar             = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodeDateTooFar, Message: "date is too far in the future"}
	ErrOutOfBusinessHours     = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodeOutOfBusinessHours, Message: "outside business hours"}
	ErrOverlap                = &SchedulingError{Type: ErrorTypeConflict, Code: ErrCodeOverlap, Message: "overlaps an existing availability window"}
	ErrNoAvailability         = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodeNoAvailability, Message: "doctor has no availability on this date"}
	ErrOutsideAvailability    = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodeOutsideAvailability, Message: "requested time is outside the doctor's availability"}
	ErrSlotConflict           = &SchedulingError{Type: ErrorTypeConflict, Code: ErrCodeSlotConflict, Message: "requested time conflicts with an existing booking"}
	ErrDuplicateBooking       = &SchedulingError{Type: ErrorTypeConflict, Code: ErrCodeDuplicateBooking, Message: "patient already has a booking with this doctor on this date"}
	ErrDoctorUnavailable      = &SchedulingError{Type: ErrorTypeBusinessRule, Code: ErrCodeDoctorUnavailable, Message: "doctor is not available for booking"}
	ErrForbidden              = &SchedulingError{Type: ErrorTypeAuthorization, Code: ErrCodeForbidden, Message: "forbidden"}
	ErrUnauthenticated        = &SchedulingError{Type: ErrorTypeAuthentication, Code: ErrCodeUnauthenticated, Message: "authentication required"}
	ErrNotFound               = &SchedulingError{Type: ErrorTypeNotFound, Code: ErrCodeNotFound, Message: "not found"}
	ErrInvalidStateTransition = &SchedulingError{Type: ErrorTypeState, Code: ErrCodeInvalidStateTransition, Message: "invalid state transition"}
	ErrRateLimited            = &SchedulingError{Type: ErrorTypeRateLimit, Code: ErrCodeRateLimited, Message: "rate limit exceeded"}
)

// NewError derives an error from a sentinel with a specific message.
func NewError(base *SchedulingError, format string, args ...interface{}) *SchedulingError {
	return &SchedulingError{
		Type:    base.Type,
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *SchedulingError {
	return &SchedulingError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// AsSchedulingError extracts a SchedulingError from an error chain.
func AsSchedulingError(err error) (*SchedulingError, bool) {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// FromRangeError translates timerange parse/construction failures into the taxonomy.
// Other errors are returned unchanged.
func FromRangeError(err error) error {
	if err == nil {
		return nil
	}
	var formatErr *timerange.InvalidTimeFormatError
	if errors.As(err, &formatErr) {
		return &SchedulingError{
			Type:    ErrorTypeValidation,
			Code:    ErrCodeInvalidTimeFormat,
			Message: formatErr.Error(),
			Details: map[string]interface{}{"value": formatErr.Value},
		}
	}
	var rangeErr *timerange.InvalidRangeError
	if errors.As(err, &rangeErr) {
		return &SchedulingError{
			Type:    ErrorTypeValidation,
			Code:    ErrCodeInvalidRange,
			Message: rangeErr.Error(),
		}
	}
	return err
}
