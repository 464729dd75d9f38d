package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds SQLite-specific database configuration
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens a private in-memory
	// database shared by every connection of the pool.
	Path string

	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int

	// ConnMaxLifetime sets the maximum lifetime of connections
	ConnMaxLifetime time.Duration
}

// MemoryPath selects an in-memory database.
const MemoryPath = ":memory:"

var validJournalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
var validSynchronousModes = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}

// DefaultSQLiteConfig returns production settings for a file database.
func DefaultSQLiteConfig(databasePath string) SQLiteConfig {
	return SQLiteConfig{
		Path:              databasePath,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		MaxOpenConns:      4,
		ConnMaxLifetime:   time.Hour,
	}
}

// InMemoryTestSQLiteConfig returns settings for an isolated in-memory database.
func InMemoryTestSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:              MemoryPath,
		BusyTimeout:       time.Second,
		EnableForeignKeys: true,
		JournalMode:       "MEMORY",
		Synchronous:       "OFF",
		MaxOpenConns:      1,
	}
}

// Validate checks the configuration for unsupported values.
func (c SQLiteConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Path) == "" {
		problems = append(problems, "path is required")
	}
	if c.BusyTimeout < 0 {
		problems = append(problems, "busy timeout must not be negative")
	}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		problems = append(problems, fmt.Sprintf("unsupported journal mode %q", c.JournalMode))
	}
	if c.Synchronous != "" && !validSynchronousModes[strings.ToUpper(c.Synchronous)] {
		problems = append(problems, fmt.Sprintf("unsupported synchronous mode %q", c.Synchronous))
	}
	if c.MaxOpenConns < 0 {
		problems = append(problems, "max open connections must not be negative")
	}
	if len(problems) > 0 {
		return errors.New("invalid sqlite config: " + strings.Join(problems, "; "))
	}
	return nil
}

// DSN renders the driver connection string. PRAGMAs travel in the DSN so
// every pooled connection gets them, not only the first one.
func (c SQLiteConfig) DSN() string {
	params := url.Values{}
	if c.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.EnableForeignKeys {
		params.Add("_pragma", "foreign_keys(1)")
	}
	if c.JournalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}

	if c.Path == MemoryPath {
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:weekwise-" + uuid.NewString() + "?" + params.Encode()
	}
	return "file:" + c.Path + "?" + params.Encode()
}

// Open validates the configuration, creates the parent directory for file
// databases and returns a pinged connection pool.
func Open(ctx context.Context, c SQLiteConfig) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Path != MemoryPath {
		if dir := filepath.Dir(c.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.Path == MemoryPath {
		// The shared in-memory database lives only while a connection is open.
		db.SetConnMaxLifetime(0)
		db.SetMaxIdleConns(max(c.MaxOpenConns, 1))
	} else if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}
