package audit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

// Handlers returns one recording handler per known event type.
func Handlers() []projections.Handler[*Store] {
	types := events.AllTypes()
	hs := make([]projections.Handler[*Store], 0, len(types))
	for _, t := range types {
		hs = append(hs, projections.On(t, record))
	}
	return hs
}

func NewRegistry() (*projections.Registry[*Store], error) {
	return projections.NewRegistry(Handlers()...)
}

func record(ctx context.Context, s *Store, evt events.Event) error {
	r, err := FromEvent(evt)
	if err != nil {
		return err
	}
	if err := s.Append(ctx, r); err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	return nil
}

// UnitOfWork runs every event in its own bun transaction.
func UnitOfWork(db *bun.DB) projections.UnitOfWork[*Store] {
	return projections.UnitOfWorkFunc[*Store](func(ctx context.Context) (projections.Tx[*Store], error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		return &bunTx{tx: tx, store: New(tx)}, nil
	})
}

type bunTx struct {
	tx    bun.Tx
	store *Store
}

func (t *bunTx) Scope() *Store                  { return t.store }
func (t *bunTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *bunTx) Rollback(context.Context) error { return t.tx.Rollback() }

// NewProjection wires the audit trail as a journal subscriber named "audit".
func NewProjection(db *bun.DB, opts ...projections.DispatcherOption) (*projections.Projection[*Store], error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	p := projections.New("audit", reg, UnitOfWork(db), opts...)
	p.OnReset(New(db).Reset)
	return p, nil
}
