// Package calendar provides the wall-clock and calendar-date primitives shared by
// the schedule service, the week expander and the client cache.
package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes in a civil day.
const MinutesPerDay = 24 * 60

var timeOfDayPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

var (
	// ErrInvalidTimeOfDay is returned when a value does not match the 24-hour "HH:MM" format.
	ErrInvalidTimeOfDay = errors.New("calendar: time must use 24-hour HH:MM format")
	// ErrEmptyRange is returned when a range does not end strictly after it starts.
	ErrEmptyRange = errors.New("calendar: end time must be after start time")
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses a 24-hour "HH:MM" value. A single digit hour ("9:30") is accepted.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	if !timeOfDayPattern.MatchString(value) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hourPart, minutePart, _ := strings.Cut(value, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustParseTimeOfDay is like ParseTimeOfDay but panics on malformed input.
func MustParseTimeOfDay(value string) TimeOfDay {
	t, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return t
}

// Hour returns the hour component in [0, 23].
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component in [0, 59].
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < MinutesPerDay }

// String renders t as zero padded "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// TimeRange is a same-day wall-clock interval with End strictly after Start.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewTimeRange validates that end is strictly after start.
func NewTimeRange(start, end TimeOfDay) (TimeRange, error) {
	if !start.Valid() || !end.Valid() {
		return TimeRange{}, ErrInvalidTimeOfDay
	}
	if end <= start {
		return TimeRange{}, ErrEmptyRange
	}
	return TimeRange{Start: start, End: end}, nil
}

// ParseTimeRange parses both bounds and validates their ordering.
func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return TimeRange{}, err
	}
	return NewTimeRange(s, e)
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return time.Duration(r.End-r.Start) * time.Minute
}

// Overlaps reports whether the half-open ranges [Start, End) intersect.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// String renders the range as "HH:MM-HH:MM".
func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}
