package http

import (
	"context"
	"log/slog"

	"github.com/example/weekwise/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	return logging.OrDefault(context.Background(), logger)
}

func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, fallback, "handler", handlerName, operation, attrs...)
}
