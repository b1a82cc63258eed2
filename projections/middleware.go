package projections

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ripkitten-co/procview/events"
)

// Next continues the middleware chain. The innermost Next runs the handler.
type Next func(ctx context.Context) error

// Middleware wraps the application of one event. It must call next unless it
// short-circuits with an error.
type Middleware func(ctx context.Context, evt events.Event, next Next) error

// Chain composes mws so the first one is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, evt events.Event, next Next) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, evt, prev)
			}
		}
		return h(ctx)
	}
}

// Recover turns a handler panic into an error for that event alone.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, evt events.Event, next Next) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					slog.String("event_id", evt.ID),
					slog.String("event_type", string(evt.Type)),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic applying %s %s: %v", evt.Type, evt.ID, r)
			}
		}()
		return next(ctx)
	}
}

// Logging logs every applied event at debug level and every failure at error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, evt events.Event, next Next) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("event failed",
				slog.String("event_id", evt.ID),
				slog.String("event_type", string(evt.Type)),
				slog.String("entity_id", evt.EntityID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return err
		}
		logger.Debug("event applied",
			slog.String("event_id", evt.ID),
			slog.String("event_type", string(evt.Type)),
			slog.Duration("elapsed", elapsed),
		)
		return nil
	}
}
