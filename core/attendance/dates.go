package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
)

// Day returns the calendar day of t in loc, as midnight UTC.
// Days are compared and stored in that form, whatever the school's time zone is.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a calendar day by n days (n may be negative).
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// FormatDate formats a calendar day as YYYY-MM-DD.
func FormatDate(day time.Time) string {
	return day.Format(core.DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	return parseDateField("date", s)
}

func parseDateField(field, s string) (time.Time, error) {
	day, err := time.Parse(core.DateLayout, core.CleanString(s))
	if err != nil {
		return time.Time{}, core.NewValidationError(
			errors.Errorf("invalid %s %q: expected YYYY-MM-DD", field, s),
			core.FieldError{Field: field, Error: "must be a date formatted as YYYY-MM-DD"},
		)
	}
	return day, nil
}

// ParseRange parses and validates an inclusive [start, end] range of calendar days.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseDateField("start_date", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDateField("end_date", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err = ValidateRange(from, to); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// ValidateRange rejects inverted ranges and ranges longer than MaxRangeDays.
func ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return core.NewValidationError(errors.New("start and end dates are required"))
	}
	if end.Before(start) {
		return core.NewValidationError(
			errors.Errorf("end date %s is before start date %s", FormatDate(end), FormatDate(start)),
			core.FieldError{Field: "end_date", Error: "must not be before start_date"},
		)
	}
	if n := DaysBetween(start, end) + 1; n > MaxRangeDays {
		return core.NewValidationError(
			errors.Errorf("range of %d days exceeds %d days", n, MaxRangeDays),
			core.FieldError{Field: "end_date", Error: "range is too long"},
		)
	}
	return nil
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// DaysInRange lists every day of the inclusive range in ascending order.
func DaysInRange(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}

// DayIterator walks calendar days backward, starting at a given day, for at most a fixed number of days.
//
//	it := NewDayIterator(yesterday, StreakSearchWindow)
//	for day, ok := it.Next(); ok; day, ok = it.Next() { ... }
type DayIterator struct {
	next      time.Time
	remaining int
}

func NewDayIterator(from time.Time, limit int) *DayIterator {
	if limit < 0 {
		limit = 0
	}
	return &DayIterator{next: from, remaining: limit}
}

// Next returns the next (older) day, or false once the limit is reached.
func (it *DayIterator) Next() (time.Time, bool) {
	if it.remaining <= 0 {
		return time.Time{}, false
	}
	day := it.next
	it.next = AddDays(it.next, -1)
	it.remaining--
	return day, true
}

// Remaining returns how many days are left to visit.
func (it *DayIterator) Remaining() int {
	return it.remaining
}
