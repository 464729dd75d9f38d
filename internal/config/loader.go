package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration values for the weekwise server.
type Config struct {
	HTTPPort        int           `yaml:"http_port"`
	Store           StoreConfig   `yaml:"store"`
	Timezone        string        `yaml:"timezone"`
	Auth            AuthConfig    `yaml:"auth"`
	Log             LogConfig     `yaml:"log"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Location is Timezone resolved by Load.
	Location *time.Location `yaml:"-"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver         string `yaml:"driver"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresURL    string `yaml:"postgres_url"`
	PostgresSchema string `yaml:"postgres_schema"`
}

// AuthConfig configures how bearer credentials are resolved to owners.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	JWTIssuer        string `yaml:"jwt_issuer"`
	StaticTokensFile string `yaml:"static_tokens_file"`
}

// LogConfig controls server logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives a rotated copy of the log stream.
	File string `yaml:"file"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPPort: 8080,
		Store: StoreConfig{
			Driver:         DriverMemory,
			SQLitePath:     "weekwise.db",
			PostgresSchema: "public",
		},
		Timezone:        "Local",
		Auth:            AuthConfig{JWTIssuer: "weekwise"},
		Log:             LogConfig{Level: "info"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load parses configuration from the process environment.
//
// When WEEKWISE_CONFIG names a YAML file it is applied over the defaults
// first; WEEKWISE_* variables then override individual values. Every
// missing or invalid value is reported in a single error.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	env := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	if path := env("WEEKWISE_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("WEEKWISE_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			invalid = append(invalid, "WEEKWISE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = appendOnce(invalid, "WEEKWISE_HTTP_PORT")
	}

	if driver := env("WEEKWISE_STORE"); driver != "" {
		cfg.Store.Driver = strings.ToLower(driver)
	}
	if path := env("WEEKWISE_SQLITE_PATH"); path != "" {
		cfg.Store.SQLitePath = path
	}
	if url := env("WEEKWISE_POSTGRES_URL"); url != "" {
		cfg.Store.PostgresURL = url
	}
	if schema := env("WEEKWISE_POSTGRES_SCHEMA"); schema != "" {
		cfg.Store.PostgresSchema = schema
	}
	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if cfg.Store.SQLitePath == "" {
			missing = append(missing, "WEEKWISE_SQLITE_PATH")
		}
	case DriverPostgres:
		if cfg.Store.PostgresURL == "" {
			missing = append(missing, "WEEKWISE_POSTGRES_URL")
		}
	default:
		invalid = append(invalid, "WEEKWISE_STORE")
	}

	if tz := env("WEEKWISE_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, "WEEKWISE_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	if secret := env("WEEKWISE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if issuer := env("WEEKWISE_JWT_ISSUER"); issuer != "" {
		cfg.Auth.JWTIssuer = issuer
	}
	if file := env("WEEKWISE_STATIC_TOKENS_FILE"); file != "" {
		cfg.Auth.StaticTokensFile = file
	}
	if cfg.Auth.JWTSecret == "" && cfg.Auth.StaticTokensFile == "" {
		missing = append(missing, "WEEKWISE_JWT_SECRET or WEEKWISE_STATIC_TOKENS_FILE")
	}

	if level := env("WEEKWISE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "WEEKWISE_LOG_LEVEL")
	}
	if file := env("WEEKWISE_LOG_FILE"); file != "" {
		cfg.Log.File = file
	}

	if timeoutValue := env("WEEKWISE_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "WEEKWISE_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	return nil
}

func appendOnce(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
