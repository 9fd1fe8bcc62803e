// Package timerange implements half-open intervals of minutes since midnight.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
)

// MinutesPerDay is the exclusive upper bound for any minute value.
const MinutesPerDay = 24 * 60

var clockPattern = regexp.MustCompile(`^([0-1]\d|2[0-3]):([0-5]\d)$`)

// TimeRange is the half-open interval [Start, End) in minutes since midnight.
type TimeRange struct {
	Start int `json:"start_minute"`
	End   int `json:"end_minute"`
}

// InvalidRangeError is returned when a range cannot be constructed.
type InvalidRangeError struct {
	Start int
	End   int
}

func (e *InvalidRangeError) Error() string {
	if e.Start >= e.End {
		return fmt.Sprintf("invalid time range: start %s must be before end %s", FormatClock(e.Start), FormatClock(e.End))
	}
	return fmt.Sprintf("invalid time range: [%d, %d) outside [0, %d)", e.Start, e.End, MinutesPerDay)
}

// InvalidTimeFormatError is returned for clock strings not matching HH:MM.
type InvalidTimeFormatError struct {
	Value string
}

func (e *InvalidTimeFormatError) Error() string {
	return fmt.Sprintf("invalid time format %q: expected HH:MM (24-hour)", e.Value)
}

// New builds a range, rejecting empty or inverted ranges and bounds outside the day.
func New(start, end int) (TimeRange, error) {
	if start < 0 || start >= MinutesPerDay || end < 0 || end >= MinutesPerDay || start >= end {
		return TimeRange{}, &InvalidRangeError{Start: start, End: end}
	}
	return TimeRange{Start: start, End: end}, nil
}

// MustNew is New for constants; it panics on invalid input.
func MustNew(start, end int) TimeRange {
	r, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// FromClock builds a range from two HH:MM strings.
func FromClock(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return New(s, e)
}

// FromStart builds [start, start+duration).
func FromStart(start, duration int) (TimeRange, error) {
	return New(start, start+duration)
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(value string) (int, error) {
	m := clockPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, &InvalidTimeFormatError{Value: value}
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return hours*60 + minutes, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Overlaps reports whether a and b share any minute. Adjacent ranges do not overlap.
func Overlaps(a, b TimeRange) bool {
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether inner lies entirely inside outer.
func Contains(outer, inner TimeRange) bool {
	return inner.Start >= outer.Start && inner.End <= outer.End
}

// Overlaps is the method form of Overlaps.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return Overlaps(r, other)
}

// Contains is the method form of Contains.
func (r TimeRange) Contains(inner TimeRange) bool {
	return Contains(r, inner)
}

// Duration returns the length of the range in minutes.
func (r TimeRange) Duration() int {
	return r.End - r.Start
}

// StartClock returns the start as HH:MM.
func (r TimeRange) StartClock() string {
	return FormatClock(r.Start)
}

// EndClock returns the end as HH:MM.
func (r TimeRange) EndClock() string {
	return FormatClock(r.End)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s,%s)", r.StartClock(), r.EndClock())
}
