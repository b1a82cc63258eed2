package projections_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

// ledger is a toy read model: a list of applied event ids.
type ledger struct {
	mu        sync.Mutex
	committed []string
	rollbacks int
	commitErr error
}

func (l *ledger) Begin(context.Context) (projections.Tx[*pending], error) {
	return &ledgerTx{ledger: l, scope: &pending{}}, nil
}

func (l *ledger) Committed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.committed...)
}

type pending struct {
	writes []string
}

func (p *pending) Add(id string) { p.writes = append(p.writes, id) }

type ledgerTx struct {
	ledger *ledger
	scope  *pending
}

func (t *ledgerTx) Scope() *pending { return t.scope }

func (t *ledgerTx) Commit(context.Context) error {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if t.ledger.commitErr != nil {
		return t.ledger.commitErr
	}
	t.ledger.committed = append(t.ledger.committed, t.scope.writes...)
	return nil
}

func (t *ledgerTx) Rollback(context.Context) error {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	t.ledger.rollbacks++
	return nil
}

func record(t events.Type) projections.Handler[*pending] {
	return projections.On(t, func(_ context.Context, p *pending, evt events.Event) error {
		p.Add(evt.ID)
		return nil
	})
}

var errBoom = errors.New("boom")

func failing(t events.Type) projections.Handler[*pending] {
	return projections.On(t, func(_ context.Context, p *pending, evt events.Event) error {
		p.Add(evt.ID)
		return errBoom
	})
}

func evt(id string, t events.Type) events.Event {
	return events.Event{
		ID:        id,
		Type:      t,
		Timestamp: time.UnixMilli(1700000000000),
		EntityID:  "t1",
		Entity:    &events.Task{ID: "t1"},
	}
}
