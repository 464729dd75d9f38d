package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/example/weekwise/internal/calendar"
)

// RuleFilter narrows rule queries. OwnerID is mandatory; rules are never listed across owners.
type RuleFilter struct {
	OwnerID    string
	DayOfWeek  *time.Weekday
	ActiveOnly bool
}

// RecurrenceRepository stores weekly recurrence rules.
type RecurrenceRepository interface {
	// InsertRule stores rule when the owner holds fewer than maxActive active
	// rules for rule.DayOfWeek, and reports ErrCapacityExceeded otherwise. The
	// count and the insert are performed atomically.
	InsertRule(ctx context.Context, rule RecurrenceRule, maxActive int) (RecurrenceRule, error)
	// GetRule returns the rule only when it belongs to ownerID.
	GetRule(ctx context.Context, ownerID, id string) (RecurrenceRule, error)
	// ListRules returns matching rules ordered by creation.
	ListRules(ctx context.Context, filter RuleFilter) ([]RecurrenceRule, error)
	// DeactivateRule clears the active flag of an owned, active rule.
	DeactivateRule(ctx context.Context, ownerID, id string, at time.Time) error
}

// ExceptionRepository stores dated overrides and cancellations of rules.
type ExceptionRepository interface {
	// UpsertException creates or replaces the exception at (RuleID, Date). An
	// existing row keeps its ID and CreatedAt.
	UpsertException(ctx context.Context, exception Exception) (Exception, error)
	// GetException returns the exception at (ruleID, date).
	GetException(ctx context.Context, ruleID string, date calendar.Date) (Exception, error)
	// ListExceptions returns exceptions of the given rules dated within [from, to].
	ListExceptions(ctx context.Context, ruleIDs []string, from, to calendar.Date) ([]Exception, error)
}

// Store bundles both tables behind one lifecycle.
type Store interface {
	RecurrenceRepository
	ExceptionRepository
	Close() error
}

// SortRules orders rules by creation time, then insertion sequence, then id.
func SortRules(rules []RecurrenceRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
}

// SortExceptions orders exceptions by date, then rule id.
func SortExceptions(exceptions []Exception) {
	sort.SliceStable(exceptions, func(i, j int) bool {
		if c := exceptions[i].Date.Compare(exceptions[j].Date); c != 0 {
			return c < 0
		}
		return exceptions[i].RuleID < exceptions[j].RuleID
	})
}
