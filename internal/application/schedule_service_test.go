package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/weekwise/internal/application"
	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/recurrence"
	"github.com/example/weekwise/internal/testfixtures"
)

const owner = "owner-1"

// The reference clock reads Monday 2024-03-04 09:00 UTC.
const (
	thisMonday = "2024-03-04"
	nextMonday = "2024-03-11"
)

func newService(t *testing.T) (*application.ScheduleService, *testfixtures.ServiceFactory, persistence.Store) {
	t.Helper()
	factory := testfixtures.NewServiceFactory()
	service, store := factory.NewMemoryScheduleService()
	return service, factory, store
}

func createRule(t *testing.T, service *application.ScheduleService, day time.Weekday, start, end string) persistence.RecurrenceRule {
	t.Helper()
	rule, _, err := service.CreateRule(context.Background(), application.CreateRuleParams{
		OwnerID: owner, DayOfWeek: int(day), StartTime: start, EndTime: end,
	})
	if err != nil {
		t.Fatalf("CreateRule(%v %s-%s) failed: %v", day, start, end, err)
	}
	return rule
}

func week(t *testing.T, service *application.ScheduleService, start string) []recurrence.Slot {
	t.Helper()
	slots, err := service.GetWeek(context.Background(), owner, start)
	if err != nil {
		t.Fatalf("GetWeek(%s) failed: %v", start, err)
	}
	return slots
}

func slotOn(slots []recurrence.Slot, ruleID, date string) (recurrence.Slot, bool) {
	for _, slot := range slots {
		if slot.ScheduleID == ruleID && slot.Date.String() == date {
			return slot, true
		}
	}
	return recurrence.Slot{}, false
}

func TestCreateRuleValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		params     application.CreateRuleParams
		wantFields []string
	}{
		{
			name:       "equal times rejected",
			params:     application.CreateRuleParams{OwnerID: owner, DayOfWeek: 1, StartTime: "09:00", EndTime: "09:00"},
			wantFields: []string{"endTime"},
		},
		{
			name:       "end before start",
			params:     application.CreateRuleParams{OwnerID: owner, DayOfWeek: 1, StartTime: "11:00", EndTime: "09:00"},
			wantFields: []string{"endTime"},
		},
		{
			name:       "day out of range",
			params:     application.CreateRuleParams{OwnerID: owner, DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00"},
			wantFields: []string{"dayOfWeek"},
		},
		{
			name:       "negative day",
			params:     application.CreateRuleParams{OwnerID: owner, DayOfWeek: -1, StartTime: "09:00", EndTime: "10:00"},
			wantFields: []string{"dayOfWeek"},
		},
		{
			name:       "malformed times reported before ordering",
			params:     application.CreateRuleParams{OwnerID: owner, DayOfWeek: 1, StartTime: "24:00", EndTime: "9:5"},
			wantFields: []string{"startTime", "endTime"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			service, _, _ := newService(t)

			_, _, err := service.CreateRule(context.Background(), tc.params)
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(vErr.FieldErrors) != len(tc.wantFields) {
				t.Fatalf("expected fields %v, got %v", tc.wantFields, vErr.FieldErrors)
			}
			for _, field := range tc.wantFields {
				if _, ok := vErr.FieldErrors[field]; !ok {
					t.Fatalf("expected field %q in %v", field, vErr.FieldErrors)
				}
			}
		})
	}
}

func TestCreateRuleAcceptsSingleDigitHour(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	rule := createRule(t, service, time.Monday, "9:00", "17:30")
	if rule.Start.String() != "09:00" || rule.End.String() != "17:30" {
		t.Fatalf("unexpected normalised times %s-%s", rule.Start, rule.End)
	}
}

func TestCreateRuleRequiresOwner(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	_, _, err := service.CreateRule(context.Background(), application.CreateRuleParams{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"})
	if !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateRuleVisibleOnEveryMatchingDate(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	rule := createRule(t, service, time.Wednesday, "13:00", "14:00")
	for _, start := range []string{thisMonday, nextMonday, "2024-03-18"} {
		slots := week(t, service, start)
		if len(slots) != 1 {
			t.Fatalf("week %s: expected one slot, got %+v", start, slots)
		}
		slot := slots[0]
		if slot.ScheduleID != rule.ID || slot.Date.Weekday() != time.Wednesday || slot.IsException {
			t.Fatalf("week %s: unexpected slot %+v", start, slot)
		}
		if slot.ID != rule.ID+"-"+slot.Date.String() {
			t.Fatalf("unexpected slot id %q", slot.ID)
		}
	}
}

func TestCreateRuleCapacity(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)
	ctx := context.Background()

	first := createRule(t, service, time.Tuesday, "09:00", "10:00")
	createRule(t, service, time.Tuesday, "11:00", "12:00")

	_, _, err := service.CreateRule(ctx, application.CreateRuleParams{OwnerID: owner, DayOfWeek: 2, StartTime: "13:00", EndTime: "14:00"})
	var cErr *application.CapacityError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if cErr.DayOfWeek != time.Tuesday || cErr.Limit != application.MaxActiveRulesPerDay {
		t.Fatalf("unexpected capacity error %+v", cErr)
	}
	if application.ErrorKind(err) != "capacity" {
		t.Fatalf("unexpected error kind %q", application.ErrorKind(err))
	}

	// A full day reports capacity before a reversed range.
	_, _, err = service.CreateRule(ctx, application.CreateRuleParams{OwnerID: owner, DayOfWeek: 2, StartTime: "15:00", EndTime: "14:00"})
	if !errors.As(err, &cErr) {
		t.Fatalf("expected CapacityError ahead of ordering, got %v", err)
	}

	createRule(t, service, time.Wednesday, "13:00", "14:00")
	if _, _, err := service.CreateRule(ctx, application.CreateRuleParams{OwnerID: "owner-2", DayOfWeek: 2, StartTime: "13:00", EndTime: "14:00"}); err != nil {
		t.Fatalf("other owners must not share capacity: %v", err)
	}

	if err := service.DeleteRule(ctx, owner, first.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	createRule(t, service, time.Tuesday, "13:00", "14:00")
}

func TestCreateRuleErrorOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   application.CreateRuleParams
		wantKind string
		field    string
	}{
		{name: "format before capacity", params: application.CreateRuleParams{DayOfWeek: 1, StartTime: "9am", EndTime: "08:00"}, wantKind: "validation", field: "startTime"},
		{name: "capacity before ordering", params: application.CreateRuleParams{DayOfWeek: 1, StartTime: "15:00", EndTime: "14:00"}, wantKind: "capacity"},
		{name: "capacity before equal times", params: application.CreateRuleParams{DayOfWeek: 1, StartTime: "15:00", EndTime: "15:00"}, wantKind: "capacity"},
		{name: "ordering on a free day", params: application.CreateRuleParams{DayOfWeek: 2, StartTime: "15:00", EndTime: "14:00"}, wantKind: "validation", field: "endTime"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			service, _, _ := newService(t)
			createRule(t, service, time.Monday, "09:00", "10:00")
			createRule(t, service, time.Monday, "11:00", "12:00")

			params := tt.params
			params.OwnerID = owner
			_, _, err := service.CreateRule(context.Background(), params)
			if kind := application.ErrorKind(err); kind != tt.wantKind {
				t.Fatalf("expected %s error, got %q (%v)", tt.wantKind, kind, err)
			}
			if tt.field != "" {
				var vErr *application.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if _, ok := vErr.FieldErrors[tt.field]; !ok {
					t.Fatalf("expected %s field error, got %+v", tt.field, vErr.FieldErrors)
				}
			}
		})
	}
}

func TestCreateRuleReportsOverlapWarnings(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	existing := createRule(t, service, time.Thursday, "09:00", "11:00")
	_, warnings, err := service.CreateRule(context.Background(), application.CreateRuleParams{
		OwnerID: owner, DayOfWeek: int(time.Thursday), StartTime: "10:00", EndTime: "12:00",
	})
	if err != nil {
		t.Fatalf("overlapping rules are allowed: %v", err)
	}
	if len(warnings) != 1 || warnings[0].RuleID != existing.ID || warnings[0].Type != "overlap" {
		t.Fatalf("unexpected warnings %+v", warnings)
	}
	if warnings[0].StartTime != "09:00" || warnings[0].EndTime != "11:00" {
		t.Fatalf("warning must describe the existing rule, got %+v", warnings[0])
	}
}

func TestListRules(t *testing.T) {
	t.Parallel()
	service, factory, _ := newService(t)
	ctx := context.Background()

	a := createRule(t, service, time.Friday, "09:00", "10:00")
	factory.Clock.Advance(time.Minute)
	b := createRule(t, service, time.Monday, "09:00", "10:00")
	factory.Clock.Advance(time.Minute)
	c := createRule(t, service, time.Sunday, "09:00", "10:00")
	if err := service.DeleteRule(ctx, owner, b.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}

	rules, err := service.ListRules(ctx, owner)
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != a.ID || rules[1].ID != c.ID {
		t.Fatalf("expected active rules in creation order, got %+v", rules)
	}

	others, err := service.ListRules(ctx, "owner-2")
	if err != nil || len(others) != 0 {
		t.Fatalf("expected no rules for another owner, got %v %v", others, err)
	}
}

func TestGetWeekOmitsPastDates(t *testing.T) {
	t.Parallel()
	service, factory, _ := newService(t)

	for day := time.Sunday; day <= time.Saturday; day++ {
		createRule(t, service, day, "09:00", "10:00")
	}

	// Thursday 2024-03-07, late evening.
	factory.Clock.Set(time.Date(2024, time.March, 7, 23, 59, 0, 0, time.UTC))
	today := calendar.MustParseDate("2024-03-07")

	slots := week(t, service, thisMonday)
	if len(slots) != 4 {
		t.Fatalf("expected Thursday through Sunday, got %d slots", len(slots))
	}
	for _, slot := range slots {
		if slot.Date.Before(today) {
			t.Fatalf("past date %s returned", slot.Date)
		}
	}

	if slots := week(t, service, "2024-02-26"); len(slots) != 0 {
		t.Fatalf("expected a fully past week to be empty, got %+v", slots)
	}
}

func TestGetWeekUsesServiceLocation(t *testing.T) {
	t.Parallel()

	// 20:00 UTC on Sunday is already Monday in Tokyo.
	clock := testfixtures.NewClock(time.Date(2024, time.March, 3, 20, 0, 0, 0, time.UTC))
	tokyo := time.FixedZone("JST", 9*60*60)
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithLocation(tokyo))
	service, _ := factory.NewMemoryScheduleService()

	createRule(t, service, time.Sunday, "09:00", "10:00")
	if slots := week(t, service, "2024-03-03"); len(slots) != 0 {
		t.Fatalf("Sunday is in the past in Tokyo, got %+v", slots)
	}
}

func TestGetWeekRejectsInvalidDate(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	for _, input := range []string{"", "2024-13-01", "03/04/2024", "2024-02-30"} {
		_, err := service.GetWeek(context.Background(), owner, input)
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["weekStartDate"] == "" {
			t.Fatalf("GetWeek(%q): expected weekStartDate validation error, got %v", input, err)
		}
	}
}

func TestGetWeekIsOwnerScoped(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)

	createRule(t, service, time.Monday, "09:00", "10:00")
	slots, err := service.GetWeek(context.Background(), "owner-2", thisMonday)
	if err != nil {
		t.Fatalf("GetWeek failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots for another owner, got %+v", slots)
	}
}

func TestUpdateSlotIsIdempotent(t *testing.T) {
	t.Parallel()
	service, _, store := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")
	params := application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: nextMonday, StartTime: "10:00", EndTime: "12:00"}

	first, err := service.UpdateSlot(ctx, params)
	if err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}
	second, err := service.UpdateSlot(ctx, params)
	if err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}
	if first.ID != second.ID || second.Override == nil || *first.Override != *second.Override {
		t.Fatalf("repeated update changed state: %+v vs %+v", first, second)
	}

	exceptions, err := store.ListExceptions(ctx, []string{rule.ID}, calendar.MustParseDate(nextMonday), calendar.MustParseDate(nextMonday))
	if err != nil {
		t.Fatalf("ListExceptions failed: %v", err)
	}
	if len(exceptions) != 1 {
		t.Fatalf("expected a single exception row, got %d", len(exceptions))
	}
}

func TestUpdateSlotErrors(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")
	inactive := createRule(t, service, time.Tuesday, "09:00", "11:00")
	if err := service.DeleteRule(ctx, owner, inactive.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}

	cases := []struct {
		name      string
		params    application.SlotParams
		wantField string
		wantErr   error
	}{
		{name: "unknown rule", params: application.SlotParams{OwnerID: owner, RuleID: "missing", Date: thisMonday, StartTime: "10:00", EndTime: "11:00"}, wantErr: application.ErrNotFound},
		{name: "foreign owner", params: application.SlotParams{OwnerID: "owner-2", RuleID: rule.ID, Date: thisMonday, StartTime: "10:00", EndTime: "11:00"}, wantErr: application.ErrNotFound},
		{name: "inactive rule", params: application.SlotParams{OwnerID: owner, RuleID: inactive.ID, Date: thisMonday, StartTime: "10:00", EndTime: "11:00"}, wantErr: application.ErrNotFound},
		{name: "bad date", params: application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: "2024-3-4", StartTime: "10:00", EndTime: "11:00"}, wantField: "date"},
		{name: "bad time", params: application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: thisMonday, StartTime: "10:60", EndTime: "11:00"}, wantField: "startTime"},
		{name: "equal times", params: application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: thisMonday, StartTime: "10:00", EndTime: "10:00"}, wantField: "endTime"},
		{name: "malformed times on a foreign rule", params: application.SlotParams{OwnerID: "owner-2", RuleID: rule.ID, Date: thisMonday, StartTime: "x", EndTime: "11:00"}, wantField: "startTime"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.UpdateSlot(ctx, tc.params)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.wantField] == "" {
				t.Fatalf("expected validation error on %s, got %v", tc.wantField, err)
			}
		})
	}
}

func TestDeleteSlotOccurrenceHidesOnlyThatDate(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")
	other := createRule(t, service, time.Monday, "13:00", "14:00")

	exception, err := service.DeleteSlotOccurrence(ctx, application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: thisMonday})
	if err != nil {
		t.Fatalf("DeleteSlotOccurrence failed: %v", err)
	}
	if !exception.Cancelled() {
		t.Fatalf("expected a cancellation, got %+v", exception)
	}

	current := week(t, service, thisMonday)
	if _, ok := slotOn(current, rule.ID, thisMonday); ok {
		t.Fatalf("cancelled occurrence still visible")
	}
	if _, ok := slotOn(current, other.ID, thisMonday); !ok {
		t.Fatalf("other rule on the same date must stay visible")
	}
	if _, ok := slotOn(week(t, service, nextMonday), rule.ID, nextMonday); !ok {
		t.Fatalf("other occurrences of the rule must stay visible")
	}

	if _, err := service.DeleteSlotOccurrence(ctx, application.SlotParams{OwnerID: "owner-2", RuleID: rule.ID, Date: thisMonday}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestDeleteRuleHidesEveryFutureOccurrence(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")
	if _, err := service.UpdateSlot(ctx, application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: nextMonday, StartTime: "10:00", EndTime: "12:00"}); err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}

	if err := service.DeleteRule(ctx, "owner-2", rule.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := service.DeleteRule(ctx, owner, rule.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	for _, start := range []string{thisMonday, nextMonday} {
		if slots := week(t, service, start); len(slots) != 0 {
			t.Fatalf("week %s: expected no slots after delete, got %+v", start, slots)
		}
	}
	if err := service.DeleteRule(ctx, owner, rule.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when deleting twice, got %v", err)
	}
}

func TestExceptionRoundTripLeavesSingleRow(t *testing.T) {
	t.Parallel()
	service, _, store := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")
	target := application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: nextMonday}

	a := target
	a.StartTime, a.EndTime = "10:00", "11:30"
	if _, err := service.UpdateSlot(ctx, a); err != nil {
		t.Fatalf("UpdateSlot A failed: %v", err)
	}
	if _, err := service.DeleteSlotOccurrence(ctx, target); err != nil {
		t.Fatalf("DeleteSlotOccurrence failed: %v", err)
	}
	b := target
	b.StartTime, b.EndTime = "14:00", "15:00"
	if _, err := service.UpdateSlot(ctx, b); err != nil {
		t.Fatalf("UpdateSlot B failed: %v", err)
	}

	date := calendar.MustParseDate(nextMonday)
	rows, err := store.ListExceptions(ctx, []string{rule.ID}, date, date)
	if err != nil {
		t.Fatalf("ListExceptions failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Cancelled() || rows[0].Override.String() != "14:00-15:00" {
		t.Fatalf("expected one live exception with B, got %+v", rows)
	}
}

func TestMondayEndToEnd(t *testing.T) {
	t.Parallel()
	service, _, _ := newService(t)
	ctx := context.Background()

	rule := createRule(t, service, time.Monday, "09:00", "11:00")

	// A seven-day window holds one Monday, so two consecutive weeks cover two.
	for _, monday := range []string{thisMonday, nextMonday} {
		slot, ok := slotOn(week(t, service, monday), rule.ID, monday)
		if !ok || slot.IsException || slot.Start.String() != "09:00" || slot.End.String() != "11:00" {
			t.Fatalf("%s: unexpected slot %+v (found=%v)", monday, slot, ok)
		}
	}

	exception, err := service.UpdateSlot(ctx, application.SlotParams{OwnerID: owner, RuleID: rule.ID, Date: thisMonday, StartTime: "10:00", EndTime: "12:00"})
	if err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}

	slot, ok := slotOn(week(t, service, thisMonday), rule.ID, thisMonday)
	if !ok || !slot.IsException || slot.ExceptionID != exception.ID || slot.Start.String() != "10:00" || slot.End.String() != "12:00" {
		t.Fatalf("expected overridden slot, got %+v", slot)
	}

	slot, ok = slotOn(week(t, service, nextMonday), rule.ID, nextMonday)
	if !ok || slot.IsException || slot.Start.String() != "09:00" {
		t.Fatalf("second Monday must be unaffected, got %+v", slot)
	}
}
