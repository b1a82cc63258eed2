package messages_test

import (
	"context"
	"slices"
	"testing"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/messages"
	"github.com/ripkitten-co/procview/projections"
)

func TestProjection_EventTypes(t *testing.T) {
	f := newFixture(t)
	p, err := messages.NewProjection(f.c)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "messages" {
		t.Errorf("name: %q", p.Name())
	}
	types := p.EventTypes()
	for _, want := range []events.Type{
		events.ActivityMessageWaiting,
		events.ActivityMessageSent,
		events.ProcessCancelled,
		events.ProcessDeleted,
		events.ProcessDeployed,
	} {
		if !slices.Contains(types, want) {
			t.Errorf("missing %s", want)
		}
	}
	for _, outbound := range []events.Type{
		events.MessageSent,
		events.MessageWaiting,
		events.MessageReceived,
		events.MessageSubscriptionCancelled,
		events.StartMessageDeployed,
	} {
		if slices.Contains(types, outbound) {
			t.Errorf("consumes outbound %s", outbound)
		}
	}
}

func TestProjection_BatchInEitherOrder(t *testing.T) {
	f := newFixture(t)
	reg, err := messages.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	d := projections.NewDispatcher(reg, messages.UnitOfWork(f.c),
		projections.WithDispatchLogger(quiet),
		projections.WithMiddleware(),
	)

	deleted := events.Event{
		ID:        "x1",
		Type:      events.ProcessDeleted,
		Timestamp: base,
		Entity:    &events.ProcessInstance{ID: "P3"},
		Producer:  events.Producer{AppName: app},
	}
	batch := []events.Event{
		thrown("t1", "P2", "payment", "k1"),
		waiting("w3", "P3", "shipment", ""),
		waiting("w1", "P1", "payment", "k1"),
		deleted,
		// the engine's own echo of an outbound type is skipped
		{ID: "echo", Type: events.MessageSent, Timestamp: base, Entity: &events.Message{Name: "payment"}},
	}
	if err := d.Dispatch(context.Background(), batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if n := len(f.journal.ofType(events.MessageReceived)); n != 1 {
		t.Errorf("received: got %d, want 1", n)
	}
	if n := len(f.journal.ofType(events.MessageSubscriptionCancelled)); n != 1 {
		t.Errorf("cancelled: got %d, want 1", n)
	}
	if f.store.Len() != 0 {
		t.Errorf("groups left: %d", f.store.Len())
	}
}
