package projections

import (
	"context"

	"github.com/ripkitten-co/procview"
)

// Tx is one unit of work. Scope is what handlers write through; nothing they
// write is visible to others until Commit.
type Tx[S any] interface {
	Scope() S
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork opens a Tx per event.
type UnitOfWork[S any] interface {
	Begin(ctx context.Context) (Tx[S], error)
}

// UnitOfWorkFunc adapts a function to a UnitOfWork.
type UnitOfWorkFunc[S any] func(ctx context.Context) (Tx[S], error)

func (f UnitOfWorkFunc[S]) Begin(ctx context.Context) (Tx[S], error) { return f(ctx) }

// SessionUnitOfWork runs each event in its own procview.Session. scope builds
// the handler-facing view over the session's backend.
func SessionUnitOfWork[S any](store *procview.Store, scope func(procview.Backend) S) UnitOfWork[S] {
	return UnitOfWorkFunc[S](func(ctx context.Context) (Tx[S], error) {
		sess, err := store.Session(ctx)
		if err != nil {
			return nil, err
		}
		return &sessionTx[S]{sess: sess, scope: scope(sess)}, nil
	})
}

type sessionTx[S any] struct {
	sess  *procview.Session
	scope S
}

func (t *sessionTx[S]) Scope() S                           { return t.scope }
func (t *sessionTx[S]) Commit(ctx context.Context) error   { return t.sess.Commit(ctx) }
func (t *sessionTx[S]) Rollback(ctx context.Context) error { return t.sess.Rollback(ctx) }
