package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/weekwise/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	return logging.OrDefault(context.Background(), logger)
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var cErr *CapacityError
	if errors.As(err, &cErr) {
		return "capacity"
	}

	return "unexpected"
}
