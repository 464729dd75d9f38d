// Package scheduler detects overlaps between recurrence rules of one day.
package scheduler

import (
	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
)

// ConflictType describes the type of conflict detected between rules.
type ConflictType string

const (
	// ConflictTypeOverlap indicates the time ranges partly intersect.
	ConflictTypeOverlap ConflictType = "overlap"
	// ConflictTypeDuplicate indicates both rules cover exactly the same range.
	ConflictTypeDuplicate ConflictType = "duplicate"
)

// Conflict details an overlapping rule that callers can present to users.
type Conflict struct {
	WithRuleID string
	Type       ConflictType
	Range      calendar.TimeRange
}

// DetectConflicts returns the active rules of the candidate's owner and day
// whose ranges intersect the candidate's, in the order given.
func DetectConflicts(existing []persistence.RecurrenceRule, candidate persistence.RecurrenceRule) []Conflict {
	var conflicts []Conflict
	want := candidate.Range()
	for _, rule := range existing {
		if !rule.Active || rule.ID == candidate.ID {
			continue
		}
		if rule.OwnerID != candidate.OwnerID || rule.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		got := rule.Range()
		if !got.Overlaps(want) {
			continue
		}
		kind := ConflictTypeOverlap
		if got == want {
			kind = ConflictTypeDuplicate
		}
		conflicts = append(conflicts, Conflict{WithRuleID: rule.ID, Type: kind, Range: got})
	}
	return conflicts
}
