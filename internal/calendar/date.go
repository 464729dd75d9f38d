package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used on the wire and in storage.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a value is not an ISO "YYYY-MM-DD" calendar date.
var ErrInvalidDate = errors.New("calendar: date must use YYYY-MM-DD format")

// Date is a civil calendar date without a time-of-day or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses an ISO "YYYY-MM-DD" date.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on malformed input.
func MustParseDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the date of now after converting it to loc. A nil loc uses time.Local.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Midnight returns the instant at which d starts in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At combines d with a wall-clock time in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

// AddDays returns the date n days after d. Negative n moves backwards.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// String renders d as "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekStart returns the first day of the week containing d, where weeks begin on first.
func WeekStart(d Date, first time.Weekday) Date {
	offset := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDays(-offset)
}

// NextOnOrAfter returns the first date on or after d that falls on weekday.
func NextOnOrAfter(d Date, weekday time.Weekday) Date {
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDays(offset)
}

// Window returns the n consecutive dates starting at start.
func Window(start Date, n int) []Date {
	if n <= 0 {
		return nil
	}
	out := make([]Date, n)
	for i := range out {
		out[i] = start.AddDays(i)
	}
	return out
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
