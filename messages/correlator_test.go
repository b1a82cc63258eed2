package messages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/messages"
)

func TestCorrelator_DeliveryOrders(t *testing.T) {
	tests := []struct {
		name      string
		catchLast bool
		want      []events.Type
	}{
		{
			name: "catch then throw",
			want: []events.Type{events.MessageWaiting, events.MessageSent, events.MessageReceived},
		},
		{
			name:      "throw then catch",
			catchLast: true,
			want:      []events.Type{events.MessageSent, events.MessageReceived},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := waiting("w1", "P1", "payment", "order-7")
			th := thrown("t1", "P2", "payment", "order-7")
			if tt.catchLast {
				f.throw(th)
				f.wait(w)
			} else {
				f.wait(w)
				f.throw(th)
			}

			got := f.journal.types()
			if len(got) != len(tt.want) {
				t.Fatalf("outbound: got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("outbound[%d]: got %s, want %s", i, got[i], tt.want[i])
				}
			}

			rec := f.journal.ofType(events.MessageReceived)[0]
			m := rec.Entity.(*events.Message)
			if m.ProcessInstanceID != "P1" || m.ElementID != "catch-payment" || m.ExecutionID != "exec-P1" {
				t.Errorf("received addressed to %+v", m)
			}
			if m.Variables["amount"] != 12.5 || m.BusinessKey != "order-7" {
				t.Errorf("received payload: %+v", m)
			}
			if rec.Process.ProcessInstanceID != "P1" {
				t.Errorf("received process: got %q, want P1", rec.Process.ProcessInstanceID)
			}
			if rec.Producer.ServiceType != messages.ServiceType || rec.Producer.AppName != app {
				t.Errorf("producer: %+v", rec.Producer)
			}

			subs, err := f.c.Subscriptions(context.Background(), "P1")
			if err != nil {
				t.Fatal(err)
			}
			if len(subs) != 0 {
				t.Errorf("subscriptions after delivery: %d", len(subs))
			}
			if f.store.Len() != 0 {
				t.Errorf("groups left: %d", f.store.Len())
			}
		})
	}
}

func TestCorrelator_CorrelationKeySeparatesGroups(t *testing.T) {
	f := newFixture(t)
	f.wait(waiting("w1", "P1", "payment", "order-1"))
	f.throw(thrown("t1", "P9", "payment", "order-2"))

	if n := len(f.journal.ofType(events.MessageReceived)); n != 0 {
		t.Fatalf("received: got %d, want 0", n)
	}
	subs, _ := f.c.Subscriptions(context.Background(), "P1")
	if len(subs) != 1 {
		t.Errorf("subscriptions: got %d, want 1", len(subs))
	}

	f.wait(waiting("w2", "P2", "payment", "order-2"))
	rec := f.journal.ofType(events.MessageReceived)
	if len(rec) != 1 || rec[0].Entity.(*events.Message).ProcessInstanceID != "P2" {
		t.Errorf("held message went to %v", rec)
	}
}

func TestCorrelator_FirstWaitingSubscriptionWins(t *testing.T) {
	f := newFixture(t)
	f.wait(waiting("w1", "P1", "payment", ""))
	f.wait(waiting("w2", "P2", "payment", ""))
	f.throw(thrown("t1", "P9", "payment", ""))

	rec := f.journal.ofType(events.MessageReceived)
	if len(rec) != 1 {
		t.Fatalf("received: got %d, want 1", len(rec))
	}
	if pid := rec[0].Entity.(*events.Message).ProcessInstanceID; pid != "P1" {
		t.Errorf("delivered to %s, want P1", pid)
	}
	subs, _ := f.c.Subscriptions(context.Background(), "P2")
	if len(subs) != 1 {
		t.Errorf("P2 subscriptions: got %d, want 1", len(subs))
	}
}

func TestCorrelator_CancelRemovesEverySubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wait(waiting("w1", "P1", "payment", "order-7"))
	f.wait(waiting("w2", "P1", "shipment", ""))
	f.wait(waiting("w3", "P1", "refund", "r-1"))
	f.wait(waiting("w4", "P2", "shipment", ""))

	cause := events.Event{
		ID:        "c1",
		Type:      events.ProcessCancelled,
		Timestamp: base,
		Entity:    &events.ProcessInstance{ID: "P1"},
		Producer:  events.Producer{AppName: app},
	}
	if err := f.c.OnSubscriptionCancelled(ctx, cause, "P1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancelled := f.journal.ofType(events.MessageSubscriptionCancelled)
	if len(cancelled) != 3 {
		t.Fatalf("cancelled: got %d, want 3", len(cancelled))
	}
	for _, e := range cancelled {
		s := e.Entity.(*events.MessageSubscription)
		if s.ProcessInstanceID != "P1" {
			t.Errorf("cancelled subscription of %s", s.ProcessInstanceID)
		}
	}

	subs, err := f.c.Subscriptions(ctx, "P1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 0 {
		t.Errorf("P1 subscriptions: got %d, want 0", len(subs))
	}
	if groups, _ := f.store.GroupsOf(ctx, "P1"); len(groups) != 0 {
		t.Errorf("P1 index: %v", groups)
	}
	if subs, _ := f.c.Subscriptions(ctx, "P2"); len(subs) != 1 {
		t.Errorf("P2 subscriptions: got %d, want 1", len(subs))
	}
	if f.store.Len() != 1 {
		t.Errorf("groups: got %d, want 1", f.store.Len())
	}
}

func TestCorrelator_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := waiting("w1", "P1", "payment", "k")
	th := thrown("t1", "P2", "payment", "k")

	f.wait(w)
	f.wait(w)
	f.throw(th)
	f.throw(th)
	f.wait(w)

	if n := len(f.journal.ofType(events.MessageReceived)); n != 1 {
		t.Errorf("received: got %d, want 1", n)
	}
	if n := len(f.journal.ofType(events.MessageWaiting)); n != 1 {
		t.Errorf("waiting: got %d, want 1", n)
	}
	if f.journal.appended <= len(f.journal.evts) {
		t.Errorf("expected redelivery to re-append recorded events, appended %d unique %d", f.journal.appended, len(f.journal.evts))
	}
	if f.store.Len() != 0 {
		t.Errorf("groups left: %d", f.store.Len())
	}
}

func TestCorrelator_SameSubscriptionUnderNewEventID(t *testing.T) {
	f := newFixture(t)
	f.wait(waiting("w1", "P1", "payment", ""))
	f.wait(waiting("w1-again", "P1", "payment", ""))

	subs, _ := f.c.Subscriptions(context.Background(), "P1")
	if len(subs) != 1 {
		t.Errorf("subscriptions: got %d, want 1", len(subs))
	}
}

func TestCorrelator_EmitFailureIsRetriedWithSameEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wait(waiting("w1", "P1", "payment", ""))

	th := thrown("t1", "P2", "payment", "")
	m := th.Entity.(*events.Message)
	f.journal.failNext = errors.New("connection reset")
	err := f.c.OnThrow(ctx, th, m)
	if !errors.Is(err, procview.ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}

	if err := f.c.OnThrow(ctx, th, m); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := len(f.journal.ofType(events.MessageReceived)); n != 1 {
		t.Errorf("received: got %d, want 1", n)
	}
}

func TestCorrelator_StartMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	def := orderDefinition(1)
	if err := f.c.DeployStartMessages(ctx, deployed("d1", def), def); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	dep := f.journal.ofType(events.StartMessageDeployed)
	if len(dep) != 1 {
		t.Fatalf("deployed: got %d, want 1", len(dep))
	}
	if s := dep[0].Entity.(*events.StartMessageDeployment); s.MessageName != "order-placed" || s.ProcessDefinitionID != def.ID {
		t.Errorf("deployment: %+v", s)
	}

	// a keyed throw with nobody waiting starts the definition
	f.throw(thrown("t1", "P0", "order-placed", "order-7"))
	rec := f.journal.ofType(events.MessageReceived)
	if len(rec) != 1 {
		t.Fatalf("received: got %d, want 1", len(rec))
	}
	m := rec[0].Entity.(*events.Message)
	if m.ProcessInstanceID != "" || m.ProcessDefinitionID != def.ID || m.ElementID != "start" {
		t.Errorf("start message addressed to %+v", m)
	}
	if groups, _ := f.store.GroupsOf(ctx, "P0"); len(groups) != 0 {
		t.Errorf("thrower indexed in %v", groups)
	}
}

func TestCorrelator_BoundaryCatchIsNotAStarter(t *testing.T) {
	def := &events.ProcessDefinition{
		ID:      "invoice:1",
		Key:     "invoice",
		Version: 1,
		Elements: []events.FlowElement{
			{ID: "start", Type: messages.StartEventType},
			{ID: "await-payment", Type: "userTask"},
			{ID: "on-paid", Type: messages.BoundaryEventType, MessageName: "paid", AttachedTo: "await-payment"},
			{
				ID:   "reminders",
				Type: "eventSubProcess",
				Elements: []events.FlowElement{
					{ID: "remind-start", Type: messages.StartEventType, MessageName: "remind"},
				},
			},
		},
	}
	for _, throwFirst := range []bool{false, true} {
		name := "catch first"
		if throwFirst {
			name = "throw first"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if err := f.c.DeployStartMessages(ctx, deployed("d1", def), def); err != nil {
				t.Fatalf("deploy: %v", err)
			}
			if n := len(f.journal.ofType(events.StartMessageDeployed)); n != 0 {
				t.Errorf("start messages deployed: %d, want 0", n)
			}

			w := waiting("w1", "P1", "paid", "")
			th := thrown("t1", "P9", "paid", "")
			if throwFirst {
				f.throw(th)
				f.wait(w)
			} else {
				f.wait(w)
				f.throw(th)
			}

			rec := f.journal.ofType(events.MessageReceived)
			if len(rec) != 1 {
				t.Fatalf("received: got %d, want 1", len(rec))
			}
			if pid := rec[0].Entity.(*events.Message).ProcessInstanceID; pid != "P1" {
				t.Errorf("received by %q, want P1", pid)
			}
			subs, err := f.c.Subscriptions(ctx, "P1")
			if err != nil {
				t.Fatal(err)
			}
			if len(subs) != 0 {
				t.Errorf("P1 still waiting on %+v", subs)
			}
		})
	}
}

func TestCorrelator_NewerVersionReplacesStarter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v1, v2 := orderDefinition(1), orderDefinition(2)
	if err := f.c.DeployStartMessages(ctx, deployed("d2", v2), v2); err != nil {
		t.Fatal(err)
	}
	if err := f.c.DeployStartMessages(ctx, deployed("d1", v1), v1); err != nil {
		t.Fatal(err)
	}

	g, err := f.store.Load(ctx, messages.GroupID(app, "order-placed", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Starters) != 1 || g.Starters[0].ProcessDefinitionVersion != 2 {
		t.Errorf("starters: %+v", g.Starters)
	}
}

func TestCorrelator_HeldMessageStartsDeployedDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.throw(thrown("t1", "P0", "order-placed", ""))
	if n := len(f.journal.ofType(events.MessageReceived)); n != 0 {
		t.Fatalf("received before deployment: %d", n)
	}

	def := orderDefinition(1)
	if err := f.c.DeployStartMessages(ctx, deployed("d1", def), def); err != nil {
		t.Fatal(err)
	}
	rec := f.journal.ofType(events.MessageReceived)
	if len(rec) != 1 {
		t.Fatalf("received: got %d, want 1", len(rec))
	}
	if id := rec[0].Entity.(*events.Message).ProcessDefinitionID; id != def.ID {
		t.Errorf("started %s, want %s", id, def.ID)
	}
	g, err := f.store.Load(ctx, messages.GroupID(app, "order-placed", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Pending) != 0 {
		t.Errorf("pending after release: %d", len(g.Pending))
	}
}

func TestCorrelator_ReceivedCarriesDestination(t *testing.T) {
	r, err := messages.ParseResolver([]byte("destinations:\n  loans:payment: billing.payments\n"))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, messages.WithResolver(r))
	f.wait(waiting("w1", "P1", "payment", ""))
	f.wait(waiting("w2", "P2", "refund", ""))
	f.throw(thrown("t1", "P9", "payment", ""))
	f.throw(thrown("t2", "P9", "refund", ""))

	got := map[string]string{}
	for _, e := range f.journal.ofType(events.MessageReceived) {
		m := e.Entity.(*events.Message)
		got[m.Name] = m.Destination
	}
	if got["payment"] != "billing.payments" {
		t.Errorf("payment destination: %q", got["payment"])
	}
	if got["refund"] != "loans.refund" {
		t.Errorf("refund destination: %q", got["refund"])
	}
}

func TestCorrelator_WaitingWithoutProcessInstance(t *testing.T) {
	f := newFixture(t)
	evt := waiting("w1", "", "payment", "")
	err := f.c.OnWaiting(context.Background(), evt, evt.Entity.(*events.Message))
	if !errors.Is(err, procview.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}
