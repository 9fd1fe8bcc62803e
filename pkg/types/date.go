package types

import "time"

// DateLayout is the ISO calendar date format used at every boundary.
const DateLayout = "2006-01-02"

// ParseDate parses a naive YYYY-MM-DD date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, NewError(ErrInvalidDateFormat, "invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

// ValidateDate checks the date format without returning the parsed value.
func ValidateDate(value string) error {
	_, err := ParseDate(value)
	return err
}

// Today returns the local calendar date of now.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// AddDays shifts a valid ISO date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween returns the inclusive list of dates from..to.
func DaysBetween(from, to string) ([]string, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days, nil
}
