package application

// MaxActiveRulesPerDay bounds the active rules an owner may hold for one weekday.
const MaxActiveRulesPerDay = 2

// CreateRuleParams carries the caller's input for a new weekly rule.
type CreateRuleParams struct {
	OwnerID   string
	DayOfWeek int
	StartTime string
	EndTime   string
}

// SlotParams identifies one dated occurrence of a rule and, for updates, its
// replacement times.
type SlotParams struct {
	OwnerID   string
	RuleID    string
	Date      string
	StartTime string
	EndTime   string
}

// ConflictWarning describes an overlapping rule that should be surfaced to callers.
type ConflictWarning struct {
	RuleID    string
	Type      string
	StartTime string
	EndTime   string
}
