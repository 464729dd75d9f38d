package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/weekwise/internal/application"
	"github.com/example/weekwise/internal/config"
	httptransport "github.com/example/weekwise/internal/http"
	"github.com/example/weekwise/internal/identity"
	"github.com/example/weekwise/internal/logging"
	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/persistence/memory"
	"github.com/example/weekwise/internal/persistence/migration"
	"github.com/example/weekwise/internal/persistence/postgres"
	"github.com/example/weekwise/internal/persistence/sqlite"
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closer, err := logging.NewServerLogger(os.Stdout, logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		bootstrap.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	resolver, err := buildResolver(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(store, resolver, cfg.Location, time.Now, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("weekwise API listening", "addr", server.Addr, "store", cfg.Store.Driver, "timezone", cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.Open(uuid.NewString), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.Config{URL: cfg.PostgresURL, Schema: cfg.PostgresSchema}, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildResolver chains bearer JWTs ahead of static tokens. With neither
// configured every protected request is rejected.
func buildResolver(cfg config.AuthConfig) (identity.Resolver, error) {
	var chain identity.Chain
	if cfg.JWTSecret != "" {
		jwtResolver, err := identity.NewJWTResolver([]byte(cfg.JWTSecret), identity.WithIssuer(cfg.JWTIssuer))
		if err != nil {
			return nil, err
		}
		chain = append(chain, jwtResolver)
	}
	if cfg.StaticTokensFile != "" {
		static, err := identity.LoadStaticTokens(cfg.StaticTokensFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, static)
	}
	return chain, nil
}

func newHandler(store persistence.Store, resolver identity.Resolver, location *time.Location, now func() time.Time, logger *slog.Logger) http.Handler {
	service := application.NewScheduleService(store, store, uuid.NewString, now, location, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Rules:        httptransport.NewRuleHandler(service, logger),
		Weeks:        httptransport.NewWeekHandler(service, location, logger),
		Authenticate: httptransport.RequireIdentity(resolver, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}
