// Package sqlite implements persistence.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/persistence/migration"
)

// Storage persists rules and exceptions in SQLite.
type Storage struct {
	pool   *ConnectionPool
	mapper ErrorMapper
	idGen  func() string
}

var _ persistence.Store = (*Storage)(nil)

// Open connects to the database described by config and migrates it.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return &Storage{pool: pool, idGen: uuid.NewString}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping reports whether the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const insertRuleSQL = `
INSERT INTO recurrence_rules (id, owner_id, day_of_week, start_time, end_time, active, created_at, updated_at)
SELECT ?, ?, ?, ?, ?, ?, ?, ?
WHERE ? <= 0 OR ? = 0 OR (
    SELECT COUNT(*) FROM recurrence_rules
    WHERE owner_id = ? AND day_of_week = ? AND active = 1
) < ?`

// InsertRule stores rule with a single conditional statement so the capacity
// count and the insert share one write lock.
func (s *Storage) InsertRule(ctx context.Context, rule persistence.RecurrenceRule, maxActive int) (persistence.RecurrenceRule, error) {
	if rule.ID == "" || rule.OwnerID == "" || rule.End <= rule.Start {
		return persistence.RecurrenceRule{}, persistence.ErrConstraintViolation
	}

	active := boolToInt(rule.Active)
	result, err := s.pool.DB().ExecContext(ctx, insertRuleSQL,
		rule.ID, rule.OwnerID, int(rule.DayOfWeek), rule.Start.String(), rule.End.String(), active,
		toUnix(rule.CreatedAt), toUnix(rule.UpdatedAt),
		maxActive, active,
		rule.OwnerID, int(rule.DayOfWeek), maxActive,
	)
	if err != nil {
		return persistence.RecurrenceRule{}, s.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.RecurrenceRule{}, persistence.ErrCapacityExceeded
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	rule.Sequence = seq
	return rule, nil
}

const selectRuleColumns = `seq, id, owner_id, day_of_week, start_time, end_time, active, created_at, updated_at`

// GetRule returns the rule only when it belongs to ownerID.
func (s *Storage) GetRule(ctx context.Context, ownerID, id string) (persistence.RecurrenceRule, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+selectRuleColumns+` FROM recurrence_rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	rule, err := scanRule(row)
	if err != nil {
		return persistence.RecurrenceRule{}, s.mapper.MapError(err)
	}
	return rule, nil
}

// ListRules returns matching rules ordered by creation.
func (s *Storage) ListRules(ctx context.Context, filter persistence.RuleFilter) ([]persistence.RecurrenceRule, error) {
	if filter.OwnerID == "" {
		return nil, nil
	}

	query := `SELECT ` + selectRuleColumns + ` FROM recurrence_rules WHERE owner_id = ?`
	args := []any{filter.OwnerID}
	if filter.DayOfWeek != nil {
		query += ` AND day_of_week = ?`
		args = append(args, int(*filter.DayOfWeek))
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, seq, id`

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var rules []persistence.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return rules, nil
}

// DeactivateRule clears the active flag of an owned, active rule.
func (s *Storage) DeactivateRule(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := s.pool.DB().ExecContext(ctx,
		`UPDATE recurrence_rules SET active = 0, updated_at = ? WHERE id = ? AND owner_id = ? AND active = 1`,
		toUnix(at), id, ownerID)
	if err != nil {
		return s.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

const upsertExceptionSQL = `
INSERT INTO rule_exceptions (id, rule_id, date, start_time, end_time, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (rule_id, date) DO UPDATE SET
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    updated_at = excluded.updated_at
RETURNING id, rule_id, date, start_time, end_time, created_at, updated_at`

// UpsertException creates or replaces the exception at (RuleID, Date).
func (s *Storage) UpsertException(ctx context.Context, exception persistence.Exception) (persistence.Exception, error) {
	if exception.RuleID == "" || exception.Date.IsZero() {
		return persistence.Exception{}, persistence.ErrConstraintViolation
	}
	if exception.ID == "" {
		exception.ID = s.idGen()
	}

	var start, end sql.NullString
	if exception.Override != nil {
		start = sql.NullString{String: exception.Override.Start.String(), Valid: true}
		end = sql.NullString{String: exception.Override.End.String(), Valid: true}
	}

	row := s.pool.DB().QueryRowContext(ctx, upsertExceptionSQL,
		exception.ID, exception.RuleID, exception.Date.String(), start, end,
		toUnix(exception.CreatedAt), toUnix(exception.UpdatedAt))
	stored, err := scanException(row)
	if err != nil {
		return persistence.Exception{}, s.mapper.MapError(err)
	}
	return stored, nil
}

const selectExceptionColumns = `id, rule_id, date, start_time, end_time, created_at, updated_at`

// GetException returns the exception at (ruleID, date).
func (s *Storage) GetException(ctx context.Context, ruleID string, date calendar.Date) (persistence.Exception, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+selectExceptionColumns+` FROM rule_exceptions WHERE rule_id = ? AND date = ?`,
		ruleID, date.String())
	exception, err := scanException(row)
	if err != nil {
		return persistence.Exception{}, s.mapper.MapError(err)
	}
	return exception, nil
}

// ListExceptions returns exceptions of the given rules dated within [from, to].
func (s *Storage) ListExceptions(ctx context.Context, ruleIDs []string, from, to calendar.Date) ([]persistence.Exception, error) {
	if len(ruleIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ruleIDs)), ",")
	args := make([]any, 0, len(ruleIDs)+2)
	for _, id := range ruleIDs {
		args = append(args, id)
	}
	args = append(args, from.String(), to.String())

	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+selectExceptionColumns+` FROM rule_exceptions
		 WHERE rule_id IN (`+placeholders+`) AND date BETWEEN ? AND ?
		 ORDER BY date, rule_id`, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var exceptions []persistence.Exception
	for rows.Next() {
		exception, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return exceptions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (persistence.RecurrenceRule, error) {
	var (
		rule                 persistence.RecurrenceRule
		day, active          int
		start, end           string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rule.Sequence, &rule.ID, &rule.OwnerID, &day, &start, &end, &active, &createdAt, &updatedAt); err != nil {
		return persistence.RecurrenceRule{}, err
	}

	var err error
	if rule.Start, err = calendar.ParseTimeOfDay(start); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("sqlite: rule %s start_time: %w", rule.ID, err)
	}
	if rule.End, err = calendar.ParseTimeOfDay(end); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("sqlite: rule %s end_time: %w", rule.ID, err)
	}
	rule.DayOfWeek = time.Weekday(day)
	rule.Active = active == 1
	rule.CreatedAt = fromUnix(createdAt)
	rule.UpdatedAt = fromUnix(updatedAt)
	return rule, nil
}

func scanException(row scanner) (persistence.Exception, error) {
	var (
		exception            persistence.Exception
		date                 string
		start, end           sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&exception.ID, &exception.RuleID, &date, &start, &end, &createdAt, &updatedAt); err != nil {
		return persistence.Exception{}, err
	}

	var err error
	if exception.Date, err = calendar.ParseDate(date); err != nil {
		return persistence.Exception{}, fmt.Errorf("sqlite: exception %s date: %w", exception.ID, err)
	}
	if start.Valid && end.Valid {
		r, err := calendar.ParseTimeRange(start.String, end.String)
		if err != nil {
			return persistence.Exception{}, fmt.Errorf("sqlite: exception %s times: %w", exception.ID, err)
		}
		exception.Override = &r
	} else if start.Valid != end.Valid {
		return persistence.Exception{}, errors.New("sqlite: exception " + exception.ID + " has a partial override")
	}
	exception.CreatedAt = fromUnix(createdAt)
	exception.UpdatedAt = fromUnix(updatedAt)
	return exception, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as UTC unix nanoseconds so that ordering by column
// matches ordering by time.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
