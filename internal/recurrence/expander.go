// Package recurrence projects weekly recurrence rules onto concrete dates.
package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

// DaysPerWeek is the size of the expansion window.
const DaysPerWeek = 7

// Slot is one materialised occurrence of a rule on a date.
type Slot struct {
	// ID is "<ruleID>-<YYYY-MM-DD>" and stays stable across refetches.
	ID          string
	ScheduleID  string
	Date        calendar.Date
	Start       calendar.TimeOfDay
	End         calendar.TimeOfDay
	IsException bool
	ExceptionID string
}

// Range returns the slot's time-of-day interval.
func (s Slot) Range() calendar.TimeRange {
	return calendar.TimeRange{Start: s.Start, End: s.End}
}

// SlotID builds the deterministic identity of a rule's occurrence on date.
func SlotID(ruleID string, date calendar.Date) string {
	return ruleID + "-" + date.String()
}

// Day buckets the slots of a single date.
type Day struct {
	Date  calendar.Date
	Slots []Slot
}

// Expander turns rules and exceptions into per-date slots.
type Expander struct{}

// NewExpander constructs an Expander.
func NewExpander() *Expander {
	return &Expander{}
}

// ExpandWeek materialises the seven dates starting at weekStart, omitting
// dates before today. Within a date, slots follow rule creation order;
// inactive rules are ignored.
func (e *Expander) ExpandWeek(rules []persistence.RecurrenceRule, exceptions []persistence.Exception, weekStart, today calendar.Date) []Day {
	window := calendar.Window(weekStart, DaysPerWeek)

	days := make([]Day, 0, DaysPerWeek)
	index := make(map[calendar.Date]int, DaysPerWeek)
	for _, date := range window {
		if date.Before(today) {
			continue
		}
		index[date] = len(days)
		days = append(days, Day{Date: date})
	}
	if len(days) == 0 {
		return days
	}

	byKey := make(map[persistence.ExceptionKey]persistence.Exception, len(exceptions))
	for _, exception := range exceptions {
		byKey[exception.Key()] = exception
	}

	ordered := make([]persistence.RecurrenceRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active {
			ordered = append(ordered, rule)
		}
	}
	persistence.SortRules(ordered)

	first, last := days[0].Date, days[len(days)-1].Date
	for _, rule := range ordered {
		for _, date := range Occurrences(rule.DayOfWeek, first, last) {
			i, ok := index[date]
			if !ok {
				continue
			}

			slot := Slot{
				ID:         SlotID(rule.ID, date),
				ScheduleID: rule.ID,
				Date:       date,
				Start:      rule.Start,
				End:        rule.End,
			}
			if exception, found := byKey[persistence.ExceptionKey{RuleID: rule.ID, Date: date}]; found {
				if exception.Cancelled() {
					continue
				}
				slot.Start = exception.Override.Start
				slot.End = exception.Override.End
				slot.IsException = true
				slot.ExceptionID = exception.ID
			}
			days[i].Slots = append(days[i].Slots, slot)
		}
	}
	return days
}

// Flatten concatenates the buckets in date order.
func Flatten(days []Day) []Slot {
	var out []Slot
	for _, day := range days {
		out = append(out, day.Slots...)
	}
	return out
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Occurrences lists the dates in [from, to] falling on weekday, using a
// FREQ=WEEKLY;BYDAY rule anchored at from.
func Occurrences(weekday time.Weekday, from, to calendar.Date) []calendar.Date {
	if weekday < time.Sunday || weekday > time.Saturday || to.Before(from) {
		return nil
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[weekday]},
		Dtstart:   from.Midnight(time.UTC),
		Until:     to.Midnight(time.UTC),
	})
	if err != nil {
		return nil
	}

	var dates []calendar.Date
	for _, t := range rule.All() {
		dates = append(dates, calendar.DateOf(t))
	}
	return dates
}
