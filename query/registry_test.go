package query_test

import (
	"context"
	"testing"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/query"
)

func TestRegistryCoversReadModelEvents(t *testing.T) {
	reg, err := query.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if reg.Len() != 30 {
		t.Errorf("handlers: got %d, want 30", reg.Len())
	}
	for _, typ := range []events.Type{events.MessageSent, events.ActivityMessageWaiting, events.StartMessageDeployed} {
		if _, ok := reg.Resolve(typ); ok {
			t.Errorf("%s should not be handled by the read model", typ)
		}
	}
}

func TestUnknownEventTypeSkipped(t *testing.T) {
	f := newFixture(t)
	evt := event("SOMETHING_NEW", at(0), events.Raw(`{}`))
	if err := f.apply(evt, process(events.ProcessCreated, at(0), "P1")); err != nil {
		t.Fatalf("got %v", err)
	}
	if ok, _ := f.repos.ProcessInstances().Exists(context.Background(), "P1"); !ok {
		t.Error("event after unknown type not applied")
	}
}

func TestFailedEventDoesNotBlockBatch(t *testing.T) {
	f := newFixture(t)
	bad := process(events.ProcessStarted, at(0), "missing")
	err := f.apply(bad, process(events.ProcessCreated, at(0), "P1"))
	if err == nil {
		t.Fatal("expected failure")
	}
	if ok, _ := f.repos.ProcessInstances().Exists(context.Background(), "P1"); !ok {
		t.Error("event after failure not applied")
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustApply(
		process(events.ProcessCreated, at(0), "P1"),
		task(events.TaskCreated, at(0), &events.Task{ID: "T1"}),
	)
	if err := query.Reset(ctx, f.repos); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if all, _ := f.repos.ProcessInstances().Find(ctx); len(all) != 0 {
		t.Errorf("process instances left: %d", len(all))
	}
	if all, _ := f.repos.Tasks().Find(ctx); len(all) != 0 {
		t.Errorf("tasks left: %d", len(all))
	}
}
