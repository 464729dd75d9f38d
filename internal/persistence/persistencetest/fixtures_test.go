package persistencetest

import (
	"testing"
	"time"
)

func TestRuleFixtureOptions(t *testing.T) {
	rule := NewRuleFixture(
		WithRuleID("r"),
		WithRuleOwner("bob"),
		WithRuleDay(time.Friday),
		WithRuleTimes("13:00", "14:30"),
		WithRuleInactive(),
	).Persistence()

	if rule.ID != "r" || rule.OwnerID != "bob" || rule.DayOfWeek != time.Friday || rule.Active {
		t.Fatalf("options not applied: %+v", rule)
	}
	if rule.Range().String() != "13:00-14:30" {
		t.Fatalf("unexpected range %s", rule.Range())
	}
	if !Cancellation("e", "r", "2024-03-08").Cancelled() || Override("e", "r", "2024-03-08", "10:00", "11:00").Cancelled() {
		t.Fatalf("exception helpers produced the wrong variant")
	}
}

func TestRuleFixtureDefaults(t *testing.T) {
	first := NewRuleFixture()
	second := NewRuleFixture()

	if first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q twice", first.ID)
	}
	if first.OwnerID != "alice" || first.DayOfWeek != time.Monday || !first.Active {
		t.Fatalf("unexpected defaults: %+v", first)
	}
	if !first.CreatedAt.Equal(ReferenceTime()) || ReferenceDate().String() != "2024-03-04" {
		t.Fatalf("expected fixtures anchored at the reference time, got %v", first.CreatedAt)
	}
}
