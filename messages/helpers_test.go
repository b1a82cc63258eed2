package messages_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/messages"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var base = time.UnixMilli(1700000000000).UTC()

const app = "loans"

// journal records appended events and drops repeated ids like the real one.
type journal struct {
	mu       sync.Mutex
	seen     map[string]bool
	evts     []events.Event
	appended int
	failNext error
}

func newJournal() *journal { return &journal{seen: make(map[string]bool)} }

func (j *journal) Append(_ context.Context, evts ...events.Event) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.failNext; err != nil {
		j.failNext = nil
		return 0, err
	}
	n := 0
	for _, e := range evts {
		j.appended++
		if j.seen[e.ID] {
			continue
		}
		j.seen[e.ID] = true
		j.evts = append(j.evts, e)
		n++
	}
	return n, nil
}

func (j *journal) ofType(t events.Type) []events.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []events.Event
	for _, e := range j.evts {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (j *journal) types() []events.Type {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]events.Type, len(j.evts))
	for i, e := range j.evts {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	t       *testing.T
	store   *messages.MemoryStore
	journal *journal
	c       *messages.Correlator
}

func newFixture(t *testing.T, opts ...messages.Option) *fixture {
	t.Helper()
	store := messages.NewMemoryStore()
	j := newJournal()
	return &fixture{
		t:       t,
		store:   store,
		journal: j,
		c:       messages.NewCorrelator(store, j, append([]messages.Option{messages.WithLogger(quiet)}, opts...)...),
	}
}

func engineEvent(id string, typ events.Type, m *events.Message) events.Event {
	return events.Event{
		ID:        id,
		Type:      typ,
		Timestamp: base,
		EntityID:  m.Name,
		Entity:    m,
		Producer:  events.Producer{AppName: app, ServiceName: "runtime-bundle"},
		Process:   events.ProcessContext{ProcessInstanceID: m.ProcessInstanceID, ProcessDefinitionID: m.ProcessDefinitionID},
	}
}

// waiting is a catch event of pid on message name.
func waiting(id, pid, name, key string) events.Event {
	return engineEvent(id, events.ActivityMessageWaiting, &events.Message{
		Name:                name,
		CorrelationKey:      key,
		ElementID:           "catch-" + name,
		ExecutionID:         "exec-" + pid,
		ProcessInstanceID:   pid,
		ProcessDefinitionID: "catcher:1",
	})
}

// thrown is a throw event of pid on message name.
func thrown(id, pid, name, key string) events.Event {
	return engineEvent(id, events.ActivityMessageSent, &events.Message{
		Name:              name,
		CorrelationKey:    key,
		BusinessKey:       "order-7",
		ElementID:         "throw-" + name,
		ProcessInstanceID: pid,
		Variables:         map[string]any{"amount": 12.5},
	})
}

func (f *fixture) wait(evt events.Event) {
	f.t.Helper()
	m, err := events.Payload[*events.Message](evt)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.c.OnWaiting(context.Background(), evt, m); err != nil {
		f.t.Fatalf("waiting %s: %v", evt.ID, err)
	}
}

func (f *fixture) throw(evt events.Event) {
	f.t.Helper()
	m, err := events.Payload[*events.Message](evt)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.c.OnThrow(context.Background(), evt, m); err != nil {
		f.t.Fatalf("throw %s: %v", evt.ID, err)
	}
}

func deployed(id string, def *events.ProcessDefinition) events.Event {
	return events.Event{
		ID:        id,
		Type:      events.ProcessDeployed,
		Timestamp: base,
		EntityID:  def.ID,
		Entity:    def,
		Producer:  events.Producer{AppName: app},
	}
}

func orderDefinition(version int) *events.ProcessDefinition {
	return &events.ProcessDefinition{
		ID:      "order:" + string(rune('0'+version)),
		Key:     "order",
		Version: version,
		Elements: []events.FlowElement{
			{ID: "start", Type: messages.StartEventType, MessageName: "order-placed"},
			{ID: "review", Type: "userTask"},
		},
	}
}
