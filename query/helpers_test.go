package query_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
	"github.com/ripkitten-co/procview/query"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var base = time.UnixMilli(1700000000000).UTC()

// at returns the base time plus n seconds.
func at(n int) time.Time { return base.Add(time.Duration(n) * time.Second) }

var seq atomic.Int64

type fixture struct {
	t     *testing.T
	store *documents.MemoryStore
	d     *projections.Dispatcher[query.Repositories]
	repos query.Repositories
}

func newFixture(t *testing.T, opts ...query.Option) *fixture {
	t.Helper()
	reg, err := query.NewRegistry(append([]query.Option{query.WithLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := documents.NewMemoryStore()
	return &fixture{
		t:     t,
		store: store,
		d: projections.NewDispatcher(reg, query.MemoryUnitOfWork(store),
			projections.WithDispatchLogger(quiet),
			projections.WithMiddleware(),
		),
		repos: query.MemoryRepositories(store),
	}
}

// apply dispatches evts and returns the first event failure, if any.
func (f *fixture) apply(evts ...events.Event) error {
	f.t.Helper()
	return f.d.Dispatch(context.Background(), evts)
}

func (f *fixture) mustApply(evts ...events.Event) {
	f.t.Helper()
	if err := f.apply(evts...); err != nil {
		f.t.Fatalf("apply: %v", err)
	}
}

// event builds an event as the journal would hand it out, positioned after
// every event built before it.
func event(t events.Type, ts time.Time, entity events.Entity) events.Event {
	n := seq.Add(1)
	return events.Event{
		ID:             fmt.Sprintf("evt-%d", n),
		GlobalPosition: n,
		Type:           t,
		Timestamp:      ts,
		Entity:         entity,
		Producer: events.Producer{
			AppName:     "loans-app",
			AppVersion:  "1",
			ServiceName: "rb-loans",
			ServiceType: "runtime-bundle",
		},
	}
}

func process(t events.Type, ts time.Time, id string) events.Event {
	evt := event(t, ts, &events.ProcessInstance{
		ID:                   id,
		ProcessDefinitionID:  "loan:1",
		ProcessDefinitionKey: "loan",
		BusinessKey:          "order-" + id,
	})
	evt.EntityID = id
	evt.Process.ProcessInstanceID = id
	return evt
}

func task(t events.Type, ts time.Time, p *events.Task) events.Event {
	evt := event(t, ts, p)
	evt.EntityID = p.ID
	return evt
}

func activity(t events.Type, ts time.Time, pid, element string) events.Event {
	evt := event(t, ts, &events.Activity{
		ElementID:         element,
		ActivityName:      "Review " + element,
		ActivityType:      "userTask",
		ExecutionID:       "exec-" + pid,
		ProcessInstanceID: pid,
	})
	evt.Process.ProcessInstanceID = pid
	return evt
}

func variable(t events.Type, ts time.Time, v *events.Variable) events.Event {
	return event(t, ts, v)
}
