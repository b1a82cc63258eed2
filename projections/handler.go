package projections

import (
	"context"

	"github.com/ripkitten-co/procview/events"
)

// Handler applies a single event type to a read model. S is the scope the
// unit of work hands to the handler: repositories bound to the current
// transaction, a bun.Tx, a correlator.
type Handler[S any] interface {
	HandledEvent() events.Type
	Handle(ctx context.Context, scope S, evt events.Event) error
}

// HandleFunc is the callback signature for handlers built with On.
type HandleFunc[S any] func(ctx context.Context, scope S, evt events.Event) error

type funcHandler[S any] struct {
	eventType events.Type
	fn        HandleFunc[S]
}

func (h funcHandler[S]) HandledEvent() events.Type { return h.eventType }

func (h funcHandler[S]) Handle(ctx context.Context, scope S, evt events.Event) error {
	return h.fn(ctx, scope, evt)
}

// On binds fn to eventType.
func On[S any](eventType events.Type, fn HandleFunc[S]) Handler[S] {
	return funcHandler[S]{eventType: eventType, fn: fn}
}
