// Package postgres implements persistence.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/weekwise/internal/calendar"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/persistence/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config describes the PostgreSQL connection.
type Config struct {
	URL string
	// Schema, when set, is created if missing and used as the search path.
	Schema   string
	MaxConns int32
}

// Storage persists rules and exceptions in PostgreSQL.
type Storage struct {
	pool  *pgxpool.Pool
	idGen func() string
}

var _ persistence.Store = (*Storage)(nil)

// Open connects, migrates and returns a Storage.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.Schema != "" {
		if err := createSchema(ctx, cfg.URL, cfg.Schema); err != nil {
			return nil, err
		}
		poolConfig.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		&migrationExecutor{pool: pool},
		"migrations",
		logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate schema: %w", err)
	}

	return &Storage{pool: pool, idGen: uuid.NewString}, nil
}

func createSchema(ctx context.Context, url, schema string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("postgres: create schema %s: %w", schema, err)
	}
	return nil
}

// Close releases the pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertRule serialises inserts per (owner, day) with a transaction-scoped
// advisory lock, then inserts only while the active count is below maxActive.
func (s *Storage) InsertRule(ctx context.Context, rule persistence.RecurrenceRule, maxActive int) (persistence.RecurrenceRule, error) {
	if rule.ID == "" || rule.OwnerID == "" || rule.End <= rule.Start {
		return persistence.RecurrenceRule{}, persistence.ErrConstraintViolation
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), $2)`, rule.OwnerID, int32(rule.DayOfWeek)); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO recurrence_rules (id, owner_id, day_of_week, start_time, end_time, active, created_at, updated_at)
			SELECT $1::text, $2::text, $3::smallint, $4::text, $5::text, $6::boolean, $7::timestamptz, $8::timestamptz
			WHERE $9::int <= 0 OR NOT $6::boolean OR (
				SELECT COUNT(*) FROM recurrence_rules
				WHERE owner_id = $2 AND day_of_week = $3 AND active
			) < $9::int
			RETURNING seq`,
			rule.ID, rule.OwnerID, int16(rule.DayOfWeek), rule.Start.String(), rule.End.String(), rule.Active,
			rule.CreatedAt.UTC(), rule.UpdatedAt.UTC(), maxActive,
		).Scan(&rule.Sequence)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.RecurrenceRule{}, persistence.ErrCapacityExceeded
	}
	if err != nil {
		return persistence.RecurrenceRule{}, mapError(err)
	}
	return rule, nil
}

const selectRuleColumns = `seq, id, owner_id, day_of_week, start_time, end_time, active, created_at, updated_at`

// GetRule returns the rule only when it belongs to ownerID.
func (s *Storage) GetRule(ctx context.Context, ownerID, id string) (persistence.RecurrenceRule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectRuleColumns+` FROM recurrence_rules WHERE id = $1 AND owner_id = $2`, id, ownerID)
	rule, err := scanRule(row)
	if err != nil {
		return persistence.RecurrenceRule{}, mapError(err)
	}
	return rule, nil
}

// ListRules returns matching rules ordered by creation.
func (s *Storage) ListRules(ctx context.Context, filter persistence.RuleFilter) ([]persistence.RecurrenceRule, error) {
	if filter.OwnerID == "" {
		return nil, nil
	}

	query := `SELECT ` + selectRuleColumns + ` FROM recurrence_rules WHERE owner_id = $1`
	args := []any{filter.OwnerID}
	if filter.DayOfWeek != nil {
		args = append(args, int16(*filter.DayOfWeek))
		query += fmt.Sprintf(` AND day_of_week = $%d`, len(args))
	}
	if filter.ActiveOnly {
		query += ` AND active`
	}
	query += ` ORDER BY created_at, seq, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
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
	return rules, mapError(rows.Err())
}

// DeactivateRule clears the active flag of an owned, active rule.
func (s *Storage) DeactivateRule(ctx context.Context, ownerID, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recurrence_rules SET active = FALSE, updated_at = $1 WHERE id = $2 AND owner_id = $3 AND active`,
		at.UTC(), id, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

const selectExceptionColumns = `id, rule_id, date, start_time, end_time, created_at, updated_at`

// UpsertException creates or replaces the exception at (RuleID, Date).
func (s *Storage) UpsertException(ctx context.Context, exception persistence.Exception) (persistence.Exception, error) {
	if exception.RuleID == "" || exception.Date.IsZero() {
		return persistence.Exception{}, persistence.ErrConstraintViolation
	}
	if exception.ID == "" {
		exception.ID = s.idGen()
	}

	var start, end *string
	if exception.Override != nil {
		st, en := exception.Override.Start.String(), exception.Override.End.String()
		start, end = &st, &en
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO rule_exceptions (id, rule_id, date, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		ON CONFLICT (rule_id, date) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			updated_at = EXCLUDED.updated_at
		RETURNING `+selectExceptionColumns,
		exception.ID, exception.RuleID, exception.Date.String(), start, end,
		exception.CreatedAt.UTC(), exception.UpdatedAt.UTC())
	stored, err := scanException(row)
	if err != nil {
		return persistence.Exception{}, mapError(err)
	}
	return stored, nil
}

// GetException returns the exception at (ruleID, date).
func (s *Storage) GetException(ctx context.Context, ruleID string, date calendar.Date) (persistence.Exception, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectExceptionColumns+` FROM rule_exceptions WHERE rule_id = $1 AND date = $2::date`,
		ruleID, date.String())
	exception, err := scanException(row)
	if err != nil {
		return persistence.Exception{}, mapError(err)
	}
	return exception, nil
}

// ListExceptions returns exceptions of the given rules dated within [from, to].
func (s *Storage) ListExceptions(ctx context.Context, ruleIDs []string, from, to calendar.Date) ([]persistence.Exception, error) {
	if len(ruleIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+selectExceptionColumns+` FROM rule_exceptions
		 WHERE rule_id = ANY($1) AND date BETWEEN $2::date AND $3::date
		 ORDER BY date, rule_id`,
		ruleIDs, from.String(), to.String())
	if err != nil {
		return nil, mapError(err)
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
	return exceptions, mapError(rows.Err())
}

func scanRule(row pgx.Row) (persistence.RecurrenceRule, error) {
	var (
		rule       persistence.RecurrenceRule
		day        int16
		start, end string
	)
	if err := row.Scan(&rule.Sequence, &rule.ID, &rule.OwnerID, &day, &start, &end, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return persistence.RecurrenceRule{}, err
	}

	var err error
	if rule.Start, err = calendar.ParseTimeOfDay(start); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("postgres: rule %s start_time: %w", rule.ID, err)
	}
	if rule.End, err = calendar.ParseTimeOfDay(end); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("postgres: rule %s end_time: %w", rule.ID, err)
	}
	rule.DayOfWeek = time.Weekday(day)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return rule, nil
}

func scanException(row pgx.Row) (persistence.Exception, error) {
	var (
		exception  persistence.Exception
		date       time.Time
		start, end *string
	)
	if err := row.Scan(&exception.ID, &exception.RuleID, &date, &start, &end, &exception.CreatedAt, &exception.UpdatedAt); err != nil {
		return persistence.Exception{}, err
	}

	exception.Date = calendar.DateOf(date)
	if start != nil && end != nil {
		r, err := calendar.ParseTimeRange(*start, *end)
		if err != nil {
			return persistence.Exception{}, fmt.Errorf("postgres: exception %s times: %w", exception.ID, err)
		}
		exception.Override = &r
	}
	exception.CreatedAt = exception.CreatedAt.UTC()
	exception.UpdatedAt = exception.UpdatedAt.UTC()
	return exception, nil
}

// mapError translates PostgreSQL SQLSTATEs into persistence errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", persistence.ErrForeignKeyViolation, pgErr.Message)
		case "23514", "23502":
			return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
		}
	}
	return err
}
