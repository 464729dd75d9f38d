package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/weekwise/internal/persistence/migration"
)

// migrationExecutor runs the shared migration manager against PostgreSQL.
type migrationExecutor struct {
	pool *pgxpool.Pool
}

var _ migration.Executor = (*migrationExecutor)(nil)

func (e *migrationExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms BIGINT NOT NULL DEFAULT 0
		)`
	if _, err := e.pool.Exec(ctx, createTableSQL); err != nil {
		return migration.NewDatabaseError("", createTableSQL, "create schema_migrations table", err)
	}
	return nil
}

func (e *migrationExecutor) ExecuteMigration(ctx context.Context, m migration.Migration) error {
	started := time.Now()
	statements := migration.ParseSQL(m.SQL)
	if len(statements) == 0 {
		return migration.NewMigrationError(m.Version, m.FilePath, "parse SQL", fmt.Errorf("no SQL statements found in migration"))
	}

	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return migration.NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), err)
			}
		}
		const insertSQL = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES ($1, now(), $2, $3)`
		if _, err := tx.Exec(ctx, insertSQL, m.Version, m.Checksum, time.Since(started).Milliseconds()); err != nil {
			return migration.NewDatabaseError(m.Version, insertSQL, "record migration", err)
		}
		return nil
	})
}

func (e *migrationExecutor) GetAppliedVersions(ctx context.Context) ([]migration.AppliedMigration, error) {
	const querySQL = `SELECT version, applied_at, execution_time_ms, checksum FROM schema_migrations`

	rows, err := e.pool.Query(ctx, querySQL)
	if err != nil {
		return nil, migration.NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var applied []migration.AppliedMigration
	for rows.Next() {
		var (
			a  migration.AppliedMigration
			ms int64
		)
		if err := rows.Scan(&a.Version, &a.AppliedAt, &ms, &a.Checksum); err != nil {
			return nil, migration.NewDatabaseError("", querySQL, "scan applied migration", err)
		}
		a.ExecutionTime = time.Duration(ms) * time.Millisecond
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, migration.NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}
	return applied, nil
}
