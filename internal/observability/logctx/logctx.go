// Package logctx carries a request-scoped logger through the context, from
// the HTTP middleware (where request id and trace id are attached) down into
// the use cases and across the bus into event handlers.
package logctx

import (
	"context"

	"github.com/man-1982/commerce-shop/internal/observability"
)

type loggerKey struct{}

// With stores the logger on the context. Enriched per hop: the middleware
// adds request fields, the bus re-binds its own logger for detached handlers.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From retrieves a logger from the context if present.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr returns the context logger when available, otherwise falls back to the supplied logger.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}
