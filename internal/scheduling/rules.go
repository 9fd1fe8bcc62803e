package scheduling

import (
	"fmt"
	"time"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// Granularity bounds accepted by the calendar projector
const (
	MinSlotGranularity = 15
	MaxSlotGranularity = 240
)

// Rules holds the booking policy shared by the stores, the engine and the
// calendar projector.
type Rules struct {
	BusinessHours    timerange.TimeRange
	MaxDaysAhead     int
	AllowedDurations []int
	SlotGranularity  int
	MaxCalendarDays  int
}

// DefaultRules returns the standard clinic policy: 08:00-20:00, 30 days
// ahead, 60 or 120 minute bookings, hourly slots.
func DefaultRules() Rules {
	return Rules{
		BusinessHours:    timerange.MustNew(8*60, 20*60),
		MaxDaysAhead:     30,
		AllowedDurations: []int{60, 120},
		SlotGranularity:  60,
		MaxCalendarDays:  62,
	}
}

// RulesFromConfig builds Rules from the scheduling configuration section
func RulesFromConfig(cfg config.SchedulingConfig) (Rules, error) {
	hours, err := cfg.BusinessHours()
	if err != nil {
		return Rules{}, fmt.Errorf("invalid business hours: %w", err)
	}
	rules := Rules{
		BusinessHours:    hours,
		MaxDaysAhead:     cfg.MaxDaysAhead,
		AllowedDurations: append([]int(nil), cfg.AllowedDurations...),
		SlotGranularity:  cfg.SlotGranularity,
		MaxCalendarDays:  cfg.MaxCalendarDays,
	}
	if err := rules.CheckGranularity(rules.SlotGranularity); err != nil {
		return Rules{}, fmt.Errorf("invalid slot granularity: %w", err)
	}
	return rules, nil
}

// CheckGranularity accepts slot lengths of 15 to 240 minutes that split
// business hours evenly.
func (r Rules) CheckGranularity(minutes int) error {
	if minutes < MinSlotGranularity || minutes > MaxSlotGranularity {
		return types.NewError(types.ErrInvalidInput, "granularity must be between %d and %d minutes", MinSlotGranularity, MaxSlotGranularity)
	}
	if r.BusinessHours.Duration()%minutes != 0 {
		return types.NewError(types.ErrInvalidInput, "granularity of %d minutes does not divide business hours %s", minutes, r.BusinessHours).
			WithDetails(map[string]interface{}{"business_minutes": r.BusinessHours.Duration()})
	}
	return nil
}

// DurationAllowed reports whether minutes is a bookable duration
func (r Rules) DurationAllowed(minutes int) bool {
	for _, d := range r.AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// CheckDateWindow enforces the booking horizon: date must be today or later,
// and at most MaxDaysAhead days after today.
func (r Rules) CheckDateWindow(date string, now time.Time) error {
	if _, err := types.ParseDate(date); err != nil {
		return err
	}
	today := types.Today(now)
	if date < today {
		return types.NewError(types.ErrPastDate, "date %s is before today (%s)", date, today)
	}
	limit, err := types.AddDays(today, r.MaxDaysAhead)
	if err != nil {
		return types.NewInternalError("failed to compute booking horizon", err)
	}
	if date > limit {
		return types.NewError(types.ErrDateTooFar, "date %s is more than %d days ahead (latest %s)", date, r.MaxDaysAhead, limit)
	}
	return nil
}

// CheckBusinessHours rejects ranges not fully inside business hours
func (r Rules) CheckBusinessHours(rng timerange.TimeRange) error {
	if !r.BusinessHours.Contains(rng) {
		return types.NewError(types.ErrOutOfBusinessHours, "%s is outside business hours %s", rng, r.BusinessHours)
	}
	return nil
}
