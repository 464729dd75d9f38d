// Package migration provides a versioned schema migration system.
//
// Migrations are SQL files named {version}_{description}.sql read from an
// fs.FS (usually an embed.FS compiled into the binary). Applied versions are
// tracked in a schema_migrations table so each file runs exactly once, inside
// its own transaction.
//
// The SQLite executor lives here; other engines supply their own Executor.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(migrations), NewSQLiteExecutor(db), ".", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
