// Package persistencetest holds the behavioural checks every persistence.Store
// implementation must pass.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

// Factory returns a fresh, empty store for a single subtest.
type Factory func(t *testing.T) persistence.Store

// Run executes the conformance suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("inserts and scopes rules to their owner", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		rule := NewRuleFixture(WithRuleID("rule-1"), WithRuleTimes("09:00", "11:00")).Persistence()
		stored, err := store.InsertRule(ctx, rule, 2)
		if err != nil {
			t.Fatalf("InsertRule failed: %v", err)
		}
		if stored.Sequence == 0 {
			t.Fatalf("expected store to assign a sequence")
		}

		fetched, err := store.GetRule(ctx, "alice", "rule-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if fetched.DayOfWeek != time.Monday || fetched.Start.String() != "09:00" || fetched.End.String() != "11:00" || !fetched.Active {
			t.Fatalf("unexpected rule: %#v", fetched)
		}
		if !fetched.CreatedAt.Equal(referenceTime) {
			t.Fatalf("expected created_at %v, got %v", referenceTime, fetched.CreatedAt)
		}

		if _, err := store.GetRule(ctx, "mallory", "rule-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
		}
		if _, err := store.GetRule(ctx, "alice", "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for missing rule, got %v", err)
		}
	})

	t.Run("rejects duplicate rule ids", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		rule := NewRuleFixture(WithRuleID("rule-1"), WithRuleTimes("09:00", "11:00")).Persistence()
		if _, err := store.InsertRule(ctx, rule, 2); err != nil {
			t.Fatalf("InsertRule failed: %v", err)
		}
		if _, err := store.InsertRule(ctx, rule, 2); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("enforces active rule capacity per owner and day", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		for i := 0; i < 2; i++ {
			rule := NewRuleFixture(WithRuleID(fmt.Sprintf("rule-%d", i)), WithRuleDay(time.Tuesday), WithRuleCreatedAt(referenceTime.Add(time.Duration(i)*time.Minute))).Persistence()
			if _, err := store.InsertRule(ctx, rule, 2); err != nil {
				t.Fatalf("InsertRule %d failed: %v", i, err)
			}
		}

		third := NewRuleFixture(WithRuleID("rule-3"), WithRuleDay(time.Tuesday), WithRuleTimes("12:00", "13:00")).Persistence()
		if _, err := store.InsertRule(ctx, third, 2); !errors.Is(err, persistence.ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}

		otherDay := NewRuleFixture(WithRuleID("rule-4"), WithRuleDay(time.Wednesday), WithRuleTimes("12:00", "13:00")).Persistence()
		if _, err := store.InsertRule(ctx, otherDay, 2); err != nil {
			t.Fatalf("other day must not be affected: %v", err)
		}
		otherOwner := NewRuleFixture(WithRuleID("rule-5"), WithRuleOwner("bob"), WithRuleDay(time.Tuesday), WithRuleTimes("12:00", "13:00")).Persistence()
		if _, err := store.InsertRule(ctx, otherOwner, 2); err != nil {
			t.Fatalf("other owner must not be affected: %v", err)
		}

		if err := store.DeactivateRule(ctx, "alice", "rule-0", referenceTime); err != nil {
			t.Fatalf("DeactivateRule failed: %v", err)
		}
		if _, err := store.InsertRule(ctx, third, 2); err != nil {
			t.Fatalf("capacity must free up after deactivation: %v", err)
		}
	})

	t.Run("serialises concurrent inserts against capacity", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rule := NewRuleFixture(WithRuleID(fmt.Sprintf("race-%d", i)), WithRuleDay(time.Friday)).Persistence()
				_, errs[i] = store.InsertRule(ctx, rule, 2)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, persistence.ErrCapacityExceeded):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 2 {
			t.Fatalf("expected exactly 2 inserts to succeed, got %d", succeeded)
		}
	})

	t.Run("lists rules in insertion order with filters", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		fixtures := []persistence.RecurrenceRule{
			NewRuleFixture(WithRuleID("b")).Persistence(),
			NewRuleFixture(WithRuleID("a"), WithRuleTimes("11:00", "12:00")).Persistence(),
			NewRuleFixture(WithRuleID("c"), WithRuleDay(time.Thursday), WithRuleCreatedAt(referenceTime.Add(-time.Hour))).Persistence(),
			NewRuleFixture(WithRuleID("d"), WithRuleOwner("bob")).Persistence(),
		}
		for _, rule := range fixtures {
			if _, err := store.InsertRule(ctx, rule, 2); err != nil {
				t.Fatalf("InsertRule %s failed: %v", rule.ID, err)
			}
		}
		if err := store.DeactivateRule(ctx, "alice", "c", referenceTime); err != nil {
			t.Fatalf("DeactivateRule failed: %v", err)
		}

		all, err := store.ListRules(ctx, persistence.RuleFilter{OwnerID: "alice"})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if got := ruleIDs(all); got != "c,b,a" {
			t.Fatalf("expected creation then insertion order c,b,a got %s", got)
		}

		monday := time.Monday
		active, err := store.ListRules(ctx, persistence.RuleFilter{OwnerID: "alice", DayOfWeek: &monday, ActiveOnly: true})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if got := ruleIDs(active); got != "b,a" {
			t.Fatalf("expected b,a got %s", got)
		}

		activeOnly, err := store.ListRules(ctx, persistence.RuleFilter{OwnerID: "alice", ActiveOnly: true})
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if got := ruleIDs(activeOnly); got != "b,a" {
			t.Fatalf("inactive rules must be filtered, got %s", got)
		}
	})

	t.Run("deactivation is owner scoped and not repeatable", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		if _, err := store.InsertRule(ctx, NewRuleFixture(WithRuleID("rule-1")).Persistence(), 2); err != nil {
			t.Fatalf("InsertRule failed: %v", err)
		}
		if err := store.DeactivateRule(ctx, "bob", "rule-1", referenceTime); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
		}
		if err := store.DeactivateRule(ctx, "alice", "rule-1", referenceTime.Add(time.Hour)); err != nil {
			t.Fatalf("DeactivateRule failed: %v", err)
		}
		rule, err := store.GetRule(ctx, "alice", "rule-1")
		if err != nil {
			t.Fatalf("soft deleted rule must remain readable: %v", err)
		}
		if rule.Active {
			t.Fatalf("expected rule to be inactive")
		}
		if err := store.DeactivateRule(ctx, "alice", "rule-1", referenceTime); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for inactive rule, got %v", err)
		}
	})

	t.Run("upserts exceptions keyed by rule and date", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		if _, err := store.InsertRule(ctx, NewRuleFixture(WithRuleID("rule-1"), WithRuleTimes("09:00", "11:00")).Persistence(), 2); err != nil {
			t.Fatalf("InsertRule failed: %v", err)
		}
		date := calendar.MustParseDate("2024-03-11")

		first, err := store.UpsertException(ctx, Override("exc-1", "rule-1", date.String(), "10:00", "12:00"))
		if err != nil {
			t.Fatalf("UpsertException failed: %v", err)
		}

		cancellation := Cancellation("exc-2", "rule-1", date.String())
		cancellation.CreatedAt = referenceTime.Add(time.Hour)
		cancellation.UpdatedAt = cancellation.CreatedAt
		cancelled, err := store.UpsertException(ctx, cancellation)
		if err != nil {
			t.Fatalf("UpsertException failed: %v", err)
		}
		if cancelled.ID != first.ID {
			t.Fatalf("upsert must keep row id %s, got %s", first.ID, cancelled.ID)
		}
		if !cancelled.CreatedAt.Equal(referenceTime) {
			t.Fatalf("upsert must keep created_at, got %v", cancelled.CreatedAt)
		}

		fetched, err := store.GetException(ctx, "rule-1", date)
		if err != nil {
			t.Fatalf("GetException failed: %v", err)
		}
		if !fetched.Cancelled() {
			t.Fatalf("expected cancellation to replace override, got %#v", fetched)
		}

		restore := Override("exc-3", "rule-1", date.String(), "13:00", "14:00")
		restore.UpdatedAt = referenceTime.Add(2 * time.Hour)
		restored, err := store.UpsertException(ctx, restore)
		if err != nil {
			t.Fatalf("UpsertException failed: %v", err)
		}
		if restored.Cancelled() || restored.Override.String() != "13:00-14:00" {
			t.Fatalf("unexpected restored exception: %#v", restored)
		}

		all, err := store.ListExceptions(ctx, []string{"rule-1"}, date, date)
		if err != nil {
			t.Fatalf("ListExceptions failed: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("expected exactly one exception row, got %d", len(all))
		}
	})

	t.Run("rejects exceptions for unknown rules", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		_, err := store.UpsertException(ctx, Cancellation("exc-1", "missing", "2024-03-11"))
		if !errors.Is(err, persistence.ErrForeignKeyViolation) {
			t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
		}
	})

	t.Run("lists exceptions within the window", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t)

		for _, id := range []string{"rule-1", "rule-2", "rule-3"} {
			if _, err := store.InsertRule(ctx, NewRuleFixture(WithRuleID(id)).Persistence(), 0); err != nil {
				t.Fatalf("InsertRule %s failed: %v", id, err)
			}
		}
		dates := []string{"2024-03-03", "2024-03-04", "2024-03-10", "2024-03-11"}
		for i, d := range dates {
			_, err := store.UpsertException(ctx, Cancellation(fmt.Sprintf("exc-%d", i), "rule-1", d))
			if err != nil {
				t.Fatalf("UpsertException failed: %v", err)
			}
		}
		if _, err := store.UpsertException(ctx, Cancellation("exc-other", "rule-3", "2024-03-05")); err != nil {
			t.Fatalf("UpsertException failed: %v", err)
		}

		got, err := store.ListExceptions(ctx, []string{"rule-1", "rule-2"}, calendar.MustParseDate("2024-03-04"), calendar.MustParseDate("2024-03-10"))
		if err != nil {
			t.Fatalf("ListExceptions failed: %v", err)
		}
		if len(got) != 2 || got[0].Date.String() != "2024-03-04" || got[1].Date.String() != "2024-03-10" {
			t.Fatalf("unexpected window contents: %#v", got)
		}

		none, err := store.ListExceptions(ctx, nil, calendar.MustParseDate("2024-03-01"), calendar.MustParseDate("2024-03-31"))
		if err != nil {
			t.Fatalf("ListExceptions failed: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no exceptions without rule ids, got %d", len(none))
		}
	})
}

func ruleIDs(rules []persistence.RecurrenceRule) string {
	out := ""
	for i, rule := range rules {
		if i > 0 {
			out += ","
		}
		out += rule.ID
	}
	return out
}
