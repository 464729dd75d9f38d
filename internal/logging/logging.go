// Package logging builds the process loggers and carries request-scoped
// loggers through context.
package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// OrDefault returns the context logger, then fallback, then slog.Default.
func OrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithAttrs adds attrs to the logger carried by ctx. A context without a
// logger is returned unchanged.
func WithAttrs(ctx context.Context, attrs ...any) context.Context {
	logger := FromContext(ctx)
	if logger == nil || len(attrs) == 0 {
		return ctx
	}
	return ContextWithLogger(ctx, logger.With(attrs...))
}

// Component tags a logger with the layer (kind), the component name and the
// operation in progress, e.g. kind "service", name "schedule".
func Component(ctx context.Context, fallback *slog.Logger, kind, name, operation string, attrs ...any) *slog.Logger {
	pairs := []any{kind, name}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return OrDefault(ctx, fallback).With(pairs...)
}
