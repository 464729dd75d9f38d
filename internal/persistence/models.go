package persistence

import (
	"time"

	"github.com/example/weekwise/internal/calendar"
)

// RecurrenceRule is a weekly repeating time-of-day slot owned by one account.
type RecurrenceRule struct {
	ID        string
	OwnerID   string
	DayOfWeek time.Weekday
	Start     calendar.TimeOfDay
	End       calendar.TimeOfDay
	Active    bool
	// Sequence is assigned by the store on insert and orders rules created
	// within the same instant.
	Sequence  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Range returns the rule's time-of-day interval.
func (r RecurrenceRule) Range() calendar.TimeRange {
	return calendar.TimeRange{Start: r.Start, End: r.End}
}

// Exception overrides or cancels a single dated occurrence of a rule.
type Exception struct {
	ID     string
	RuleID string
	Date   calendar.Date
	// Override replaces the rule's times on Date. A nil Override cancels the occurrence.
	Override  *calendar.TimeRange
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cancelled reports whether the exception suppresses the occurrence.
func (e Exception) Cancelled() bool {
	return e.Override == nil
}

// ExceptionKey identifies the single exception slot of a rule on a date.
type ExceptionKey struct {
	RuleID string
	Date   calendar.Date
}

// Key returns the upsert key of the exception.
func (e Exception) Key() ExceptionKey {
	return ExceptionKey{RuleID: e.RuleID, Date: e.Date}
}

func cloneRange(r *calendar.TimeRange) *calendar.TimeRange {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// Clone returns a deep copy of the exception.
func (e Exception) Clone() Exception {
	e.Override = cloneRange(e.Override)
	return e
}
