package inventory

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for every stored date
const DateLayout = "01/02/2006"

// FormatDate renders the calendar date of t as MM/DD/YYYY
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a MM/DD/YYYY date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// AddDays advances a MM/DD/YYYY date by a number of calendar days.
// Dates are handled in UTC so no daylight saving shift can move the day.
func AddDays(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, days)), nil
}
