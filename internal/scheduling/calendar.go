package scheduling

import (
	"context"
	"sort"

	"github.com/medrex/booking/pkg/interfaces"
	"github.com/medrex/booking/pkg/timerange"
	"github.com/medrex/booking/pkg/types"
)

// CalendarProjector merges windows and bookings into per-day slot views.
// Nothing is cached: every call reads the store.
type CalendarProjector struct {
	repo  interfaces.SchedulingRepository
	rules Rules
}

// NewCalendarProjector creates a projector reading from repo
func NewCalendarProjector(repo interfaces.SchedulingRepository, rules Rules) *CalendarProjector {
	return &CalendarProjector{repo: repo, rules: rules}
}

// Project builds the calendar of doctorID for the inclusive range from..to as
// seen by viewer. Every day in the range has an entry, possibly empty.
func (p *CalendarProjector) Project(ctx context.Context, doctorID, from, to string, viewer types.Actor, opts types.CalendarOptions) (types.Calendar, error) {
	if doctorID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "doctor id is required")
	}
	days, err := p.days(from, to)
	if err != nil {
		return nil, err
	}

	granularity := opts.Granularity
	if granularity == 0 {
		granularity = p.rules.SlotGranularity
	}
	if err := p.rules.CheckGranularity(granularity); err != nil {
		return nil, err
	}

	windows, err := p.repo.ListWindows(ctx, types.AvailabilityFilter{DoctorID: doctorID, FromDate: from, ToDate: to})
	if err != nil {
		return nil, err
	}
	bookings, err := p.repo.ListBookings(ctx, types.BookingFilter{
		DoctorID:        doctorID,
		FromDate:        from,
		ToDate:          to,
		ExcludeStatuses: DefaultExcludedStatuses,
	})
	if err != nil {
		return nil, err
	}

	windowsByDay := make(map[string][]timerange.TimeRange)
	for _, w := range windows {
		windowsByDay[w.Date] = append(windowsByDay[w.Date], w.Range)
	}
	bookingsByDay := make(map[string][]*types.Booking)
	for _, b := range bookings {
		bookingsByDay[b.Date] = append(bookingsByDay[b.Date], b)
	}

	calendar := make(types.Calendar, len(days))
	for _, day := range days {
		slots := make([]types.SlotView, 0)
		for _, w := range windowsByDay[day] {
			for _, rng := range split(w, granularity) {
				slots = append(slots, classify(day, rng, bookingsByDay[day], viewer))
			}
		}
		if opts.IncludeUnavailable {
			for _, gap := range uncovered(p.rules.BusinessHours, windowsByDay[day]) {
				for _, rng := range split(gap, granularity) {
					slots = append(slots, slotView(day, rng, types.SlotUnavailable, ""))
				}
			}
		}
		sort.Slice(slots, func(i, j int) bool {
			return slots[i].Range.Start < slots[j].Range.Start
		})
		calendar[day] = slots
	}
	return calendar, nil
}

func (p *CalendarProjector) days(from, to string) ([]string, error) {
	if err := types.ValidateDate(from); err != nil {
		return nil, err
	}
	if err := types.ValidateDate(to); err != nil {
		return nil, err
	}
	if from > to {
		return nil, types.NewError(types.ErrInvalidRange, "from %s is after to %s", from, to)
	}
	days, err := types.DaysBetween(from, to)
	if err != nil {
		return nil, err
	}
	if p.rules.MaxCalendarDays > 0 && len(days) > p.rules.MaxCalendarDays {
		return nil, types.NewError(types.ErrInvalidRange, "calendar range spans %d days, limit is %d", len(days), p.rules.MaxCalendarDays)
	}
	return days, nil
}

// split cuts rng into consecutive slots of the given length starting at
// rng.Start. The last slot is clipped to rng.End.
func split(rng timerange.TimeRange, granularity int) []timerange.TimeRange {
	var slots []timerange.TimeRange
	for start := rng.Start; start < rng.End; start += granularity {
		end := start + granularity
		if end > rng.End {
			end = rng.End
		}
		slots = append(slots, timerange.TimeRange{Start: start, End: end})
	}
	return slots
}

// uncovered returns the parts of hours not covered by any window
func uncovered(hours timerange.TimeRange, windows []timerange.TimeRange) []timerange.TimeRange {
	sorted := append([]timerange.TimeRange(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var gaps []timerange.TimeRange
	cursor := hours.Start
	for _, w := range sorted {
		if w.Start > cursor {
			end := w.Start
			if end > hours.End {
				end = hours.End
			}
			if end > cursor {
				gaps = append(gaps, timerange.TimeRange{Start: cursor, End: end})
			}
		}
		if w.End > cursor {
			cursor = w.End
		}
	}
	if cursor < hours.End {
		gaps = append(gaps, timerange.TimeRange{Start: cursor, End: hours.End})
	}
	return gaps
}

// classify applies the slot precedence: the viewer's accepted booking, the
// viewer's pending booking, anyone else's booking, then available.
func classify(day string, rng timerange.TimeRange, bookings []*types.Booking, viewer types.Actor) types.SlotView {
	var pending, reserved bool
	var pendingID string
	for _, b := range bookings {
		if !b.Range.Overlaps(rng) {
			continue
		}
		if ownsBooking(viewer, b) {
			switch b.Status {
			case types.BookingAccepted:
				return slotView(day, rng, types.SlotMineAccepted, b.ID)
			case types.BookingPending:
				if !pending {
					pending, pendingID = true, b.ID
				}
				continue
			}
		}
		reserved = true
	}
	switch {
	case pending:
		return slotView(day, rng, types.SlotMinePending, pendingID)
	case reserved:
		return slotView(day, rng, types.SlotReserved, "")
	}
	return slotView(day, rng, types.SlotAvailable, "")
}

// ownsBooking: patients own their bookings, doctors own bookings made with them
func ownsBooking(viewer types.Actor, b *types.Booking) bool {
	if viewer.ID == "" {
		return false
	}
	if viewer.IsDoctor() {
		return b.DoctorID == viewer.ID
	}
	return b.PatientID == viewer.ID
}

func slotView(day string, rng timerange.TimeRange, state types.SlotState, bookingID string) types.SlotView {
	return types.SlotView{
		Date:      day,
		StartTime: rng.StartClock(),
		EndTime:   rng.EndClock(),
		State:     state,
		BookingID: bookingID,
		Range:     rng,
	}
}
