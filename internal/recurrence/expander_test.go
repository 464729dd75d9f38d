package recurrence

import (
	"strings"
	"testing"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

var created = time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

func rule(id string, day time.Weekday, start, end string, createdAt time.Time) persistence.RecurrenceRule {
	return persistence.RecurrenceRule{
		ID:        id,
		OwnerID:   "alice",
		DayOfWeek: day,
		Start:     calendar.MustParseTimeOfDay(start),
		End:       calendar.MustParseTimeOfDay(end),
		Active:    true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func overrideOn(id, ruleID, date, start, end string) persistence.Exception {
	r, err := calendar.ParseTimeRange(start, end)
	if err != nil {
		panic(err)
	}
	return persistence.Exception{ID: id, RuleID: ruleID, Date: calendar.MustParseDate(date), Override: &r}
}

func cancelOn(id, ruleID, date string) persistence.Exception {
	return persistence.Exception{ID: id, RuleID: ruleID, Date: calendar.MustParseDate(date)}
}

func describe(slots []Slot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		desc := s.ID + "@" + s.Start.String() + "-" + s.End.String()
		if s.IsException {
			desc += "*" + s.ExceptionID
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, ",")
}

func TestExpandWeek(t *testing.T) {
	t.Parallel()

	// 2024-03-04 is a Monday.
	weekStart := calendar.MustParseDate("2024-03-04")

	cases := []struct {
		name       string
		rules      []persistence.RecurrenceRule
		exceptions []persistence.Exception
		today      string
		wantDays   int
		want       string
	}{
		{
			name:     "rule projects onto its weekday",
			rules:    []persistence.RecurrenceRule{rule("r1", time.Wednesday, "09:00", "10:00", created)},
			today:    "2024-03-01",
			wantDays: 7,
			want:     "r1-2024-03-06@09:00-10:00",
		},
		{
			name:     "past dates are omitted",
			rules:    []persistence.RecurrenceRule{rule("mon", time.Monday, "09:00", "10:00", created), rule("sun", time.Sunday, "12:00", "13:00", created)},
			today:    "2024-03-06",
			wantDays: 5,
			want:     "sun-2024-03-10@12:00-13:00",
		},
		{
			name:     "today itself is kept",
			rules:    []persistence.RecurrenceRule{rule("wed", time.Wednesday, "09:00", "10:00", created)},
			today:    "2024-03-06",
			wantDays: 5,
			want:     "wed-2024-03-06@09:00-10:00",
		},
		{
			name:     "whole window in the past",
			rules:    []persistence.RecurrenceRule{rule("r1", time.Monday, "09:00", "10:00", created)},
			today:    "2024-03-11",
			wantDays: 0,
			want:     "",
		},
		{
			name:       "override replaces times",
			rules:      []persistence.RecurrenceRule{rule("r1", time.Monday, "09:00", "11:00", created)},
			exceptions: []persistence.Exception{overrideOn("e1", "r1", "2024-03-04", "10:00", "12:00")},
			today:      "2024-03-04",
			wantDays:   7,
			want:       "r1-2024-03-04@10:00-12:00*e1",
		},
		{
			name:       "cancellation removes only that occurrence",
			rules:      []persistence.RecurrenceRule{rule("r1", time.Monday, "09:00", "11:00", created), rule("r2", time.Monday, "13:00", "14:00", created.Add(time.Minute))},
			exceptions: []persistence.Exception{cancelOn("e1", "r1", "2024-03-04")},
			today:      "2024-03-04",
			wantDays:   7,
			want:       "r2-2024-03-04@13:00-14:00",
		},
		{
			name:       "exceptions outside the window or for other rules are ignored",
			rules:      []persistence.RecurrenceRule{rule("r1", time.Monday, "09:00", "11:00", created)},
			exceptions: []persistence.Exception{cancelOn("e1", "r1", "2024-03-11"), cancelOn("e2", "other", "2024-03-04")},
			today:      "2024-03-04",
			wantDays:   7,
			want:       "r1-2024-03-04@09:00-11:00",
		},
		{
			name: "inactive rules are skipped",
			rules: func() []persistence.RecurrenceRule {
				r := rule("r1", time.Monday, "09:00", "11:00", created)
				r.Active = false
				return []persistence.RecurrenceRule{r}
			}(),
			today:    "2024-03-04",
			wantDays: 7,
			want:     "",
		},
		{
			name: "within a date slots follow creation order",
			rules: []persistence.RecurrenceRule{
				rule("late", time.Tuesday, "08:00", "09:00", created.Add(time.Hour)),
				rule("early", time.Tuesday, "15:00", "16:00", created),
				rule("mon", time.Monday, "20:00", "21:00", created.Add(2*time.Hour)),
			},
			today:    "2024-03-04",
			wantDays: 7,
			want:     "mon-2024-03-04@20:00-21:00,early-2024-03-05@15:00-16:00,late-2024-03-05@08:00-09:00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			days := NewExpander().ExpandWeek(tc.rules, tc.exceptions, weekStart, calendar.MustParseDate(tc.today))
			if len(days) != tc.wantDays {
				t.Fatalf("expected %d day buckets, got %d", tc.wantDays, len(days))
			}
			for i := 1; i < len(days); i++ {
				if !days[i-1].Date.Before(days[i].Date) {
					t.Fatalf("days out of order: %v then %v", days[i-1].Date, days[i].Date)
				}
			}
			if got := describe(Flatten(days)); got != tc.want {
				t.Fatalf("unexpected slots\n got: %s\nwant: %s", got, tc.want)
			}
		})
	}
}

func TestExpandWeekBucketsByDate(t *testing.T) {
	t.Parallel()

	rules := []persistence.RecurrenceRule{
		rule("a", time.Friday, "09:00", "10:00", created),
		rule("b", time.Friday, "11:00", "12:00", created.Add(time.Second)),
	}
	days := NewExpander().ExpandWeek(rules, nil, calendar.MustParseDate("2024-03-04"), calendar.MustParseDate("2024-03-04"))

	for _, day := range days {
		switch day.Date.Weekday() {
		case time.Friday:
			if len(day.Slots) != 2 {
				t.Fatalf("expected two slots on Friday, got %d", len(day.Slots))
			}
			for _, slot := range day.Slots {
				if slot.Date != day.Date {
					t.Fatalf("slot %s filed under %s", slot.ID, day.Date)
				}
			}
		default:
			if len(day.Slots) != 0 {
				t.Fatalf("unexpected slots on %s: %v", day.Date, day.Slots)
			}
		}
	}
}

func TestOccurrences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		weekday  time.Weekday
		from, to string
		want     []string
	}{
		{name: "single week", weekday: time.Thursday, from: "2024-03-04", to: "2024-03-10", want: []string{"2024-03-07"}},
		{name: "inclusive bounds", weekday: time.Monday, from: "2024-03-04", to: "2024-03-11", want: []string{"2024-03-04", "2024-03-11"}},
		{name: "across year end", weekday: time.Wednesday, from: "2024-12-30", to: "2025-01-12", want: []string{"2025-01-01", "2025-01-08"}},
		{name: "empty range", weekday: time.Monday, from: "2024-03-05", to: "2024-03-04"},
		{name: "invalid weekday", weekday: time.Weekday(9), from: "2024-03-04", to: "2024-03-10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Occurrences(tc.weekday, calendar.MustParseDate(tc.from), calendar.MustParseDate(tc.to))
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i].String() != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}
