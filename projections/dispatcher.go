package projections

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// EventError is the failure of a single event within a dispatched batch.
type EventError struct {
	EventID  string
	Type     events.Type
	Position int64
	Err      error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %s (%s): %v", e.EventID, e.Type, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// DispatchError collects the failed events of a batch. Events not listed
// were committed.
type DispatchError struct {
	Failures []*EventError
}

func (e *DispatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("dispatch: %d event(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Failed reports whether the event with the given id is among the failures.
func (e *DispatchError) Failed(eventID string) bool {
	for _, f := range e.Failures {
		if f.EventID == eventID {
			return true
		}
	}
	return false
}

type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	logger     *slog.Logger
	middleware []Middleware
	custom     bool
}

// WithDispatchLogger sets the logger used for skipped events and by the
// default middleware.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(c *dispatcherConfig) { c.logger = l }
}

// WithMiddleware replaces the default chain (logging, tracing, metrics).
// Panic recovery always runs innermost.
func WithMiddleware(mws ...Middleware) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.middleware = mws
		c.custom = true
	}
}

// Dispatcher applies batches of events through a Registry, one unit of work
// per event.
type Dispatcher[S any] struct {
	registry *Registry[S]
	uow      UnitOfWork[S]
	chain    Middleware
	logger   *slog.Logger
}

func NewDispatcher[S any](reg *Registry[S], uow UnitOfWork[S], opts ...DispatcherOption) *Dispatcher[S] {
	cfg := dispatcherConfig{logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	mws := cfg.middleware
	if !cfg.custom {
		mws = []Middleware{Logging(cfg.logger), Tracing(), Metrics()}
	}
	mws = append(append([]Middleware(nil), mws...), Recover(cfg.logger))

	return &Dispatcher[S]{
		registry: reg,
		uow:      uow,
		chain:    Chain(mws...),
		logger:   cfg.logger,
	}
}

func (d *Dispatcher[S]) Registry() *Registry[S] { return d.registry }

// Dispatch applies evts in order. Events without a handler are logged and
// skipped. Every event is attempted; failures are returned together as a
// *DispatchError once the whole batch has run.
func (d *Dispatcher[S]) Dispatch(ctx context.Context, evts []events.Event) error {
	var failures []*EventError
	for _, evt := range evts {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, ok := d.registry.Resolve(evt.Type)
		if !ok {
			d.logger.Debug("no handler for event, skipping",
				slog.String("event_type", string(evt.Type)),
				slog.String("event_id", evt.ID),
			)
			continue
		}
		if err := d.apply(ctx, h, evt); err != nil {
			failures = append(failures, &EventError{
				EventID:  evt.ID,
				Type:     evt.Type,
				Position: evt.GlobalPosition,
				Err:      err,
			})
		}
	}
	if len(failures) > 0 {
		return &DispatchError{Failures: failures}
	}
	return nil
}

func (d *Dispatcher[S]) apply(ctx context.Context, h Handler[S], evt events.Event) error {
	tx, err := d.uow.Begin(ctx)
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}

	err = d.chain(ctx, evt, func(ctx context.Context) error {
		return h.Handle(ctx, tx.Scope(), evt)
	})
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			d.logger.Error("rollback", slog.String("event_id", evt.ID), slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	return nil
}
