package messages

import (
	"context"

	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

// Handlers routes the engine's message and lifecycle events to a
// Correlator. The outbound MESSAGE_* types are never consumed.
func Handlers() []projections.Handler[*Correlator] {
	return []projections.Handler[*Correlator]{
		projections.On(events.ActivityMessageWaiting, func(ctx context.Context, c *Correlator, evt events.Event) error {
			m, err := events.Payload[*events.Message](evt)
			if err != nil {
				return err
			}
			return c.OnWaiting(ctx, evt, m)
		}),
		projections.On(events.ActivityMessageSent, func(ctx context.Context, c *Correlator, evt events.Event) error {
			m, err := events.Payload[*events.Message](evt)
			if err != nil {
				return err
			}
			return c.OnThrow(ctx, evt, m)
		}),
		projections.On(events.ProcessCancelled, cancelSubscriptions),
		projections.On(events.ProcessDeleted, cancelSubscriptions),
		projections.On(events.ProcessDeployed, func(ctx context.Context, c *Correlator, evt events.Event) error {
			def, err := events.Payload[*events.ProcessDefinition](evt)
			if err != nil {
				return err
			}
			return c.DeployStartMessages(ctx, evt, def)
		}),
	}
}

func cancelSubscriptions(ctx context.Context, c *Correlator, evt events.Event) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	return c.OnSubscriptionCancelled(ctx, evt, p.ID)
}

func NewRegistry() (*projections.Registry[*Correlator], error) {
	return projections.NewRegistry(Handlers()...)
}

// UnitOfWork hands every event the same correlator. Atomicity lives in the
// group store, one update per group.
func UnitOfWork(c *Correlator) projections.UnitOfWork[*Correlator] {
	tx := passthrough{c: c}
	return projections.UnitOfWorkFunc[*Correlator](func(context.Context) (projections.Tx[*Correlator], error) {
		return tx, nil
	})
}

type passthrough struct{ c *Correlator }

func (t passthrough) Scope() *Correlator             { return t.c }
func (t passthrough) Commit(context.Context) error   { return nil }
func (t passthrough) Rollback(context.Context) error { return nil }

// NewProjection wires the correlator as a journal subscriber named "messages".
func NewProjection(c *Correlator, opts ...projections.DispatcherOption) (*projections.Projection[*Correlator], error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return projections.New("messages", reg, UnitOfWork(c), opts...), nil
}
