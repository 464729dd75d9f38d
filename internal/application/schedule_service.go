package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/recurrence"
	"github.com/example/weekwise/internal/scheduler"
)

const (
	msgTimeFormat   = "must be HH:MM (24-hour)"
	msgTimeOrder    = "End time must be after start time"
	msgDateFormat   = "must be a date in YYYY-MM-DD form"
	msgDayOfWeek    = "must be between 0 (Sunday) and 6 (Saturday)"
	msgRuleRequired = "rule id is required"
)

// ScheduleService validates and applies recurring schedule operations for a
// single owner at a time.
type ScheduleService struct {
	rules       persistence.RecurrenceRepository
	exceptions  persistence.ExceptionRepository
	expander    *recurrence.Expander
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations. location
// decides where "today" begins; nil means time.Local.
func NewScheduleService(rules persistence.RecurrenceRepository, exceptions persistence.ExceptionRepository, idGenerator func() string, now func() time.Time, location *time.Location, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &ScheduleService{
		rules:       rules,
		exceptions:  exceptions,
		expander:    recurrence.NewExpander(),
		idGenerator: idGenerator,
		now:         now,
		location:    location,
		logger:      defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateRule validates the request, enforces the per-day capacity and stores
// a new active rule. Overlaps with the owner's other rules of that day are
// allowed and reported as warnings.
func (s *ScheduleService) CreateRule(ctx context.Context, params CreateRuleParams) (rule persistence.RecurrenceRule, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRule",
		"owner_id", params.OwnerID,
		"day_of_week", params.DayOfWeek,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("rule_id", rule.ID, "warnings", len(warnings)).InfoContext(ctx, "rule created")
	}()

	if params.OwnerID == "" {
		err = ErrUnauthorized
		return
	}

	var start, end calendar.TimeOfDay
	if start, end, err = validateRuleFormat(params); err != nil {
		return
	}
	day := time.Weekday(params.DayOfWeek)

	var existing []persistence.RecurrenceRule
	existing, err = s.rules.ListRules(ctx, persistence.RuleFilter{OwnerID: params.OwnerID, DayOfWeek: &day, ActiveOnly: true})
	if err != nil {
		err = fmt.Errorf("list rules: %w", err)
		return
	}
	if len(existing) >= MaxActiveRulesPerDay {
		err = &CapacityError{OwnerID: params.OwnerID, DayOfWeek: day, Limit: MaxActiveRulesPerDay}
		return
	}

	var timeRange calendar.TimeRange
	if timeRange, err = validateRuleOrder(start, end); err != nil {
		return
	}

	createdAt := s.now()
	candidate := persistence.RecurrenceRule{
		ID:        s.idGenerator(),
		OwnerID:   params.OwnerID,
		DayOfWeek: day,
		Start:     timeRange.Start,
		End:       timeRange.End,
		Active:    true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	rule, err = s.rules.InsertRule(ctx, candidate, MaxActiveRulesPerDay)
	if err != nil {
		if errors.Is(err, persistence.ErrCapacityExceeded) {
			err = &CapacityError{OwnerID: params.OwnerID, DayOfWeek: day, Limit: MaxActiveRulesPerDay}
			return
		}
		err = mapRepoError(err)
		return
	}

	warnings = toConflictWarnings(scheduler.DetectConflicts(existing, rule))
	return
}

// ListRules returns the owner's active rules in creation order.
func (s *ScheduleService) ListRules(ctx context.Context, ownerID string) ([]persistence.RecurrenceRule, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleService is nil")
	}
	if ownerID == "" {
		return nil, ErrUnauthorized
	}

	rules, err := s.rules.ListRules(ctx, persistence.RuleFilter{OwnerID: ownerID, ActiveOnly: true})
	if err != nil {
		s.loggerWith(ctx, "ListRules", "owner_id", ownerID).
			ErrorContext(ctx, "failed to list rules", "error", err, "error_kind", ErrorKind(err))
		return nil, mapRepoError(err)
	}
	return rules, nil
}

// GetWeek expands the owner's active rules over the seven days starting at
// weekStart. Dates before today, in the service's location, are omitted.
func (s *ScheduleService) GetWeek(ctx context.Context, ownerID, weekStart string) ([]recurrence.Slot, error) {
	days, err := s.GetWeekDays(ctx, ownerID, weekStart)
	if err != nil {
		return nil, err
	}
	return recurrence.Flatten(days), nil
}

// GetWeekDays is GetWeek with the slots still bucketed by date.
func (s *ScheduleService) GetWeekDays(ctx context.Context, ownerID, weekStart string) (days []recurrence.Day, err error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "GetWeek", "owner_id", ownerID, "week_start", weekStart)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to expand week", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if ownerID == "" {
		return nil, ErrUnauthorized
	}

	start, parseErr := calendar.ParseDate(weekStart)
	if parseErr != nil {
		vErr := &ValidationError{}
		vErr.add("weekStartDate", msgDateFormat)
		return nil, vErr
	}

	rules, err := s.rules.ListRules(ctx, persistence.RuleFilter{OwnerID: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, mapRepoError(err)
	}

	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	exceptions, err := s.exceptions.ListExceptions(ctx, ids, start, start.AddDays(recurrence.DaysPerWeek-1))
	if err != nil {
		return nil, mapRepoError(err)
	}

	today := calendar.Today(s.now(), s.location)
	return s.expander.ExpandWeek(rules, exceptions, start, today), nil
}

// UpdateSlot overrides the times of a single dated occurrence without
// touching the rule or any other date. Repeated calls replace the override.
func (s *ScheduleService) UpdateSlot(ctx context.Context, params SlotParams) (exception persistence.Exception, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSlot",
		"owner_id", params.OwnerID,
		"rule_id", params.RuleID,
		"date", params.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("exception_id", exception.ID).InfoContext(ctx, "slot updated")
	}()

	if params.OwnerID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	date := validateSlotTarget(params, vErr)
	start, startErr := calendar.ParseTimeOfDay(params.StartTime)
	if startErr != nil {
		vErr.add("startTime", msgTimeFormat)
	}
	end, endErr := calendar.ParseTimeOfDay(params.EndTime)
	if endErr != nil {
		vErr.add("endTime", msgTimeFormat)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.ensureActiveRule(ctx, params.OwnerID, params.RuleID); err != nil {
		return
	}

	timeRange, rangeErr := calendar.NewTimeRange(start, end)
	if rangeErr != nil {
		vErr.add("endTime", msgTimeOrder)
		err = vErr
		return
	}

	return s.upsertException(ctx, params.RuleID, date, &timeRange)
}

// DeleteSlotOccurrence cancels a single dated occurrence. The rule and other
// dates are unaffected; a later UpdateSlot on the same date restores it.
func (s *ScheduleService) DeleteSlotOccurrence(ctx context.Context, params SlotParams) (exception persistence.Exception, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DeleteSlotOccurrence",
		"owner_id", params.OwnerID,
		"rule_id", params.RuleID,
		"date", params.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete slot", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("exception_id", exception.ID).InfoContext(ctx, "slot cancelled")
	}()

	if params.OwnerID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	date := validateSlotTarget(params, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.ensureActiveRule(ctx, params.OwnerID, params.RuleID); err != nil {
		return
	}

	return s.upsertException(ctx, params.RuleID, date, nil)
}

// DeleteRule soft-deactivates the rule so it disappears from every week.
// Its exceptions are kept but no longer consulted.
func (s *ScheduleService) DeleteRule(ctx context.Context, ownerID, ruleID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteRule", "owner_id", ownerID, "rule_id", ruleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rule deactivated")
	}()

	if ownerID == "" {
		return ErrUnauthorized
	}
	if ruleID == "" {
		return ErrNotFound
	}

	if err := s.rules.DeactivateRule(ctx, ownerID, ruleID, s.now()); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *ScheduleService) ensureActiveRule(ctx context.Context, ownerID, ruleID string) error {
	rule, err := s.rules.GetRule(ctx, ownerID, ruleID)
	if err != nil {
		return mapRepoError(err)
	}
	if !rule.Active {
		return ErrNotFound
	}
	return nil
}

func (s *ScheduleService) upsertException(ctx context.Context, ruleID string, date calendar.Date, override *calendar.TimeRange) (persistence.Exception, error) {
	at := s.now()
	stored, err := s.exceptions.UpsertException(ctx, persistence.Exception{
		ID:        s.idGenerator(),
		RuleID:    ruleID,
		Date:      date,
		Override:  override,
		CreatedAt: at,
		UpdatedAt: at,
	})
	if err != nil {
		return persistence.Exception{}, mapRepoError(err)
	}
	return stored, nil
}

// validateRuleFormat checks the day and both time formats. Ordering is
// checked separately, after capacity.
func validateRuleFormat(params CreateRuleParams) (start, end calendar.TimeOfDay, err error) {
	vErr := &ValidationError{}
	if params.DayOfWeek < int(time.Sunday) || params.DayOfWeek > int(time.Saturday) {
		vErr.add("dayOfWeek", msgDayOfWeek)
	}
	start, parseErr := calendar.ParseTimeOfDay(params.StartTime)
	if parseErr != nil {
		vErr.add("startTime", msgTimeFormat)
	}
	end, parseErr = calendar.ParseTimeOfDay(params.EndTime)
	if parseErr != nil {
		vErr.add("endTime", msgTimeFormat)
	}
	if vErr.HasErrors() {
		return 0, 0, vErr
	}
	return start, end, nil
}

func validateRuleOrder(start, end calendar.TimeOfDay) (calendar.TimeRange, error) {
	timeRange, err := calendar.NewTimeRange(start, end)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("endTime", msgTimeOrder)
		return calendar.TimeRange{}, vErr
	}
	return timeRange, nil
}

func validateSlotTarget(params SlotParams, vErr *ValidationError) calendar.Date {
	if params.RuleID == "" {
		vErr.add("ruleId", msgRuleRequired)
	}
	date, err := calendar.ParseDate(params.Date)
	if err != nil {
		vErr.add("date", msgDateFormat)
	}
	return date
}

func toConflictWarnings(conflicts []scheduler.Conflict) []ConflictWarning {
	if len(conflicts) == 0 {
		return nil
	}

	warnings := make([]ConflictWarning, 0, len(conflicts))
	for _, conflict := range conflicts {
		warnings = append(warnings, ConflictWarning{
			RuleID:    conflict.WithRuleID,
			Type:      string(conflict.Type),
			StartTime: conflict.Range.Start.String(),
			EndTime:   conflict.Range.End.String(),
		})
	}
	return warnings
}

func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	default:
		return err
	}
}
