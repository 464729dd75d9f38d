package client

type createRuleRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type occurrenceRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Rule mirrors the server's rule record.
type Rule struct {
	ID        string `json:"id"`
	OwnerID   string `json:"userId"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Warning flags an existing rule that overlaps a newly created one.
type Warning struct {
	ScheduleID string `json:"scheduleId"`
	Type       string `json:"type"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

// CreatedRule is a rule plus the overlap warnings raised when it was created.
type CreatedRule struct {
	Rule
	Warnings []Warning `json:"warnings,omitempty"`
}

// Slot is one expanded occurrence within a week.
type Slot struct {
	ID          string `json:"id"`
	ScheduleID  string `json:"scheduleId"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsException bool   `json:"isException"`
	ExceptionID string `json:"exceptionId,omitempty"`
}

// Exception is a per-date override or cancellation.
type Exception struct {
	ID         string  `json:"id"`
	ScheduleID string  `json:"scheduleId"`
	Date       string  `json:"date"`
	StartTime  *string `json:"startTime"`
	EndTime    *string `json:"endTime"`
	IsDeleted  bool    `json:"isDeleted"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}
