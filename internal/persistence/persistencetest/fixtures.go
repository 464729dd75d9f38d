package persistencetest

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

var ruleCounter uint64

// referenceTime is Monday 2024-03-04 09:00 UTC.
var referenceTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate is the calendar date of ReferenceTime.
func ReferenceDate() calendar.Date {
	return calendar.DateOf(referenceTime)
}

// RuleFixture represents a deterministic recurrence rule.
type RuleFixture struct {
	ID        string
	OwnerID   string
	DayOfWeek time.Weekday
	Start     string
	End       string
	Active    bool
	CreatedAt time.Time
}

// RuleOption configures the generated rule fixture.
type RuleOption func(*RuleFixture)

// NewRuleFixture returns alice's active Monday 09:00-10:00 rule created at
// ReferenceTime, with optional overrides.
func NewRuleFixture(opts ...RuleOption) RuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	fixture := RuleFixture{
		ID:        fmt.Sprintf("rule-%03d", idx),
		OwnerID:   "alice",
		DayOfWeek: time.Monday,
		Start:     "09:00",
		End:       "10:00",
		Active:    true,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRuleID overrides the generated rule ID.
func WithRuleID(id string) RuleOption {
	return func(f *RuleFixture) { f.ID = id }
}

// WithRuleOwner overrides the owner.
func WithRuleOwner(owner string) RuleOption {
	return func(f *RuleFixture) { f.OwnerID = owner }
}

// WithRuleDay overrides the weekday.
func WithRuleDay(day time.Weekday) RuleOption {
	return func(f *RuleFixture) { f.DayOfWeek = day }
}

// WithRuleTimes overrides the HH:MM range.
func WithRuleTimes(start, end string) RuleOption {
	return func(f *RuleFixture) {
		f.Start = start
		f.End = end
	}
}

// WithRuleInactive marks the rule as soft deleted.
func WithRuleInactive() RuleOption {
	return func(f *RuleFixture) { f.Active = false }
}

// WithRuleCreatedAt overrides the creation time.
func WithRuleCreatedAt(t time.Time) RuleOption {
	return func(f *RuleFixture) { f.CreatedAt = t }
}

// Persistence converts the fixture into a storage record.
func (f RuleFixture) Persistence() persistence.RecurrenceRule {
	return persistence.RecurrenceRule{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		DayOfWeek: f.DayOfWeek,
		Start:     calendar.MustParseTimeOfDay(f.Start),
		End:       calendar.MustParseTimeOfDay(f.End),
		Active:    f.Active,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Override builds an exception replacing ruleID's times on date.
func Override(id, ruleID, date, start, end string) persistence.Exception {
	r, err := calendar.ParseTimeRange(start, end)
	if err != nil {
		panic(err)
	}
	return persistence.Exception{
		ID:        id,
		RuleID:    ruleID,
		Date:      calendar.MustParseDate(date),
		Override:  &r,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// Cancellation builds an exception cancelling ruleID on date.
func Cancellation(id, ruleID, date string) persistence.Exception {
	return persistence.Exception{
		ID:        id,
		RuleID:    ruleID,
		Date:      calendar.MustParseDate(date),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}
