package projections

import (
	"context"
	"fmt"

	"github.com/ripkitten-co/procview/events"
)

// Projection is a named Subscriber that runs events through a Dispatcher.
type Projection[S any] struct {
	name       string
	dispatcher *Dispatcher[S]
	reset      func(ctx context.Context) error
}

func New[S any](name string, reg *Registry[S], uow UnitOfWork[S], opts ...DispatcherOption) *Projection[S] {
	return &Projection[S]{
		name:       name,
		dispatcher: NewDispatcher(reg, uow, opts...),
	}
}

// OnReset sets the function that empties the read model before a rebuild.
func (p *Projection[S]) OnReset(fn func(ctx context.Context) error) *Projection[S] {
	p.reset = fn
	return p
}

func (p *Projection[S]) Name() string {
	return p.name
}

func (p *Projection[S]) EventTypes() []events.Type {
	return p.dispatcher.Registry().EventTypes()
}

func (p *Projection[S]) Process(ctx context.Context, evts []events.Event) error {
	return p.dispatcher.Dispatch(ctx, evts)
}

func (p *Projection[S]) Reset(ctx context.Context) error {
	if p.reset == nil {
		return nil
	}
	if err := p.reset(ctx); err != nil {
		return fmt.Errorf("projection %s: reset: %w", p.name, err)
	}
	return nil
}
