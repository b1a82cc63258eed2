package projections_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newDispatcher(t *testing.T, l *ledger, hs ...projections.Handler[*pending]) *projections.Dispatcher[*pending] {
	t.Helper()
	reg, err := projections.NewRegistry(hs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return projections.NewDispatcher[*pending](reg, l,
		projections.WithDispatchLogger(quiet),
		projections.WithMiddleware(projections.Logging(quiet)),
	)
}

func TestDispatch_FailureIsIsolated(t *testing.T) {
	l := &ledger{}
	d := newDispatcher(t, l, record(events.TaskCreated), failing(events.TaskAssigned), record(events.TaskCompleted))

	err := d.Dispatch(context.Background(), []events.Event{
		evt("e1", events.TaskCreated),
		evt("e2", events.TaskAssigned),
		evt("e3", events.TaskCompleted),
	})

	var de *projections.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DispatchError", err)
	}
	if len(de.Failures) != 1 || de.Failures[0].EventID != "e2" || de.Failures[0].Type != events.TaskAssigned {
		t.Errorf("failures: got %+v", de.Failures)
	}
	if !errors.Is(err, errBoom) {
		t.Error("dispatch error does not unwrap to the handler error")
	}

	got := l.Committed()
	if len(got) != 2 || got[0] != "e1" || got[1] != "e3" {
		t.Errorf("committed: got %v, want [e1 e3]", got)
	}
	if l.rollbacks != 1 {
		t.Errorf("rollbacks: got %d, want 1", l.rollbacks)
	}
}

func TestDispatch_UnknownTypeSkipped(t *testing.T) {
	l := &ledger{}
	d := newDispatcher(t, l, record(events.TaskCreated))

	err := d.Dispatch(context.Background(), []events.Event{
		evt("e1", "APPLICATION_DEPLOYED"),
		evt("e2", events.TaskCreated),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := l.Committed(); len(got) != 1 || got[0] != "e2" {
		t.Errorf("committed: got %v, want [e2]", got)
	}
}

func TestDispatch_PanicBecomesEventError(t *testing.T) {
	l := &ledger{}
	panicky := projections.On(events.TaskCreated, func(context.Context, *pending, events.Event) error {
		panic("nil map")
	})
	d := newDispatcher(t, l, panicky, record(events.TaskAssigned))

	err := d.Dispatch(context.Background(), []events.Event{
		evt("e1", events.TaskCreated),
		evt("e2", events.TaskAssigned),
	})
	var de *projections.DispatchError
	if !errors.As(err, &de) || !de.Failed("e1") || de.Failed("e2") {
		t.Fatalf("got %v", err)
	}
	if got := l.Committed(); len(got) != 1 || got[0] != "e2" {
		t.Errorf("committed: got %v, want [e2]", got)
	}
}

func TestDispatch_CommitFailureIsPersistenceError(t *testing.T) {
	conflict := fmt.Errorf("commit: %w", procview.ErrConcurrencyConflict)
	l := &ledger{commitErr: conflict}
	d := newDispatcher(t, l, record(events.TaskCreated))

	err := d.Dispatch(context.Background(), []events.Event{evt("e1", events.TaskCreated)})
	if !errors.Is(err, procview.ErrPersistence) {
		t.Errorf("got %v, want ErrPersistence", err)
	}
	if !errors.Is(err, procview.ErrConcurrencyConflict) {
		t.Errorf("got %v, want ErrConcurrencyConflict in chain", err)
	}
	var pe *procview.PersistenceError
	if !errors.As(err, &pe) || pe.EventID != "e1" {
		t.Errorf("persistence error: got %+v", pe)
	}
}

func TestDispatch_ReferencedEntityNotFoundSurfaces(t *testing.T) {
	l := &ledger{}
	h := projections.On(events.TaskAssigned, func(_ context.Context, _ *pending, evt events.Event) error {
		return procview.NotFound("Task", evt.EntityID, "Unable to find task with id: "+evt.EntityID)
	})
	d := newDispatcher(t, l, h)

	err := d.Dispatch(context.Background(), []events.Event{evt("e1", events.TaskAssigned)})
	if !errors.Is(err, procview.ErrReferencedEntityNotFound) {
		t.Fatalf("got %v, want ErrReferencedEntityNotFound", err)
	}
	var nf *procview.EntityNotFoundError
	if !errors.As(err, &nf) || nf.ID != "t1" || nf.Entity != "Task" {
		t.Errorf("not found error: got %+v", nf)
	}
}

func TestDispatch_StopsOnCancelledContext(t *testing.T) {
	l := &ledger{}
	d := newDispatcher(t, l, record(events.TaskCreated))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Dispatch(ctx, []events.Event{evt("e1", events.TaskCreated)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(l.Committed()) != 0 {
		t.Error("event applied after cancellation")
	}
}

func TestProjection_NameAndTypes(t *testing.T) {
	reg, _ := projections.NewRegistry(record(events.TaskCreated), record(events.ProcessCreated))
	p := projections.New[*pending]("query", reg, &ledger{})

	if p.Name() != "query" {
		t.Errorf("name: got %q", p.Name())
	}
	types := p.EventTypes()
	if len(types) != 2 || types[0] != events.ProcessCreated {
		t.Errorf("types: got %v", types)
	}

	var reset bool
	p.OnReset(func(context.Context) error { reset = true; return nil })
	if err := p.Reset(context.Background()); err != nil || !reset {
		t.Errorf("reset: %v, called %v", err, reset)
	}
}
