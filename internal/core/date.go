package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the zero-padded ISO form records are stored in. Dates in
// this form sort chronologically under plain string comparison.
const DateLayout = "2006-01-02"

const (
	displayLayout = "02 Jan 2006"
	monthLayout   = "Jan 2006"
)

// Date is a calendar day in YYYY-MM-DD form.
type Date string

// Month identifies a calendar month bucket.
type Month struct {
	Year  int
	Month time.Month
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format(DateLayout))
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time parses the date. Full RFC 3339 timestamps are accepted too, since
// some feeds deliver them; only the calendar day is kept.
func (d Date) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Validate requires a parseable day that is not after now's calendar day.
func (d Date) Validate(now time.Time) error {
	if strings.TrimSpace(string(d)) == "" {
		return ErrEmptyDate
	}
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return ErrInvalidDate
	}
	if string(d) > now.Format(DateLayout) {
		return fmt.Errorf("%w: %s", ErrFutureDate, t.Format(DateLayout))
	}
	return nil
}

// Month returns the month bucket for d, or false when d does not parse.
func (d Date) Month() (Month, bool) {
	t, ok := d.Time()
	if !ok {
		return Month{}, false
	}
	return Month{Year: t.Year(), Month: t.Month()}, true
}

// Before orders months chronologically.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Label renders the month as "Jan 2024".
func (m Month) Label() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format(monthLayout)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// FormatDate renders a stored date as "10 Jan 2024". Unparseable input is
// returned as-is; empty input yields "".
func FormatDate(d Date) string {
	if d == "" {
		return ""
	}
	t, ok := d.Time()
	if !ok {
		return string(d)
	}
	return t.Format(displayLayout)
}

// FormatDateInput normalizes to the YYYY-MM-DD input form, or "" when invalid.
func FormatDateInput(d Date) string {
	t, ok := d.Time()
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}

// MonthLabel returns "Jan 2024" for a stored date, or "" when invalid.
func MonthLabel(d Date) string {
	m, ok := d.Month()
	if !ok {
		return ""
	}
	return m.Label()
}
