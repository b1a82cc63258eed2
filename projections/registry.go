package projections

import (
	"fmt"
	"sort"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// Registry maps every event type to the one handler responsible for it.
// It is built once at startup and only read afterwards.
type Registry[S any] struct {
	handlers map[events.Type]Handler[S]
}

// NewRegistry registers hs in order. Two handlers claiming the same event
// type is a configuration error reported as ErrDuplicateHandler.
func NewRegistry[S any](hs ...Handler[S]) (*Registry[S], error) {
	r := &Registry[S]{handlers: make(map[events.Type]Handler[S], len(hs))}
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds h to the registry.
func (r *Registry[S]) Register(h Handler[S]) error {
	t := h.HandledEvent()
	if t == "" {
		return fmt.Errorf("registry: handler %T: empty event type: %w", h, procview.ErrValidation)
	}
	if existing, ok := r.handlers[t]; ok {
		return fmt.Errorf("registry: %s handled by both %T and %T: %w", t, existing, h, procview.ErrDuplicateHandler)
	}
	r.handlers[t] = h
	return nil
}

// Resolve returns the handler for t.
func (r *Registry[S]) Resolve(t events.Type) (Handler[S], bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// EventTypes returns the registered event types in lexical order.
func (r *Registry[S]) EventTypes() []events.Type {
	types := make([]events.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Registry[S]) Len() int {
	return len(r.handlers)
}
