package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// Emitter appends outbound events to the transport. *events.Journal
// satisfies it.
type Emitter interface {
	Append(ctx context.Context, evts ...events.Event) (int, error)
}

// ServiceType is the producer service type of every outbound event.
const ServiceType = "messages"

var outboundNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ripkitten-co/procview/messages"))

// SubscriptionID identifies the catch element execution a subscription
// belongs to.
func SubscriptionID(processInstanceID, elementID, executionID string) string {
	return uuid.NewSHA1(outboundNamespace, []byte("subscription:"+processInstanceID+":"+elementID+":"+executionID)).String()
}

type Option func(*Correlator)

func WithResolver(r *Resolver) Option {
	return func(c *Correlator) { c.resolver = r }
}

// WithProducer sets the identity stamped on outbound events. Empty app
// fields are taken from the event that caused them.
func WithProducer(p events.Producer) Option {
	return func(c *Correlator) { c.producer = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

// Correlator pairs thrown messages with waiting catch events and start
// subscribers, and reports every change as an outbound event.
type Correlator struct {
	store    GroupStore
	emitter  Emitter
	resolver *Resolver
	producer events.Producer
	logger   *slog.Logger
}

func NewCorrelator(store GroupStore, emitter Emitter, opts ...Option) *Correlator {
	c := &Correlator{
		store:    store,
		emitter:  emitter,
		resolver: NewResolver(),
		producer: events.Producer{ServiceName: "procview-messages"},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.producer.ServiceType = ServiceType
	return c
}

// OnWaiting records the catch subscription described by m, or hands it the
// oldest message already held in its group.
func (c *Correlator) OnWaiting(ctx context.Context, cause events.Event, m *events.Message) error {
	app := cause.Producer.AppName
	pid := first(m.ProcessInstanceID, cause.Process.ProcessInstanceID)
	if pid == "" {
		return fmt.Errorf("messages: waiting %s: no process instance: %w", cause.ID, procview.ErrValidation)
	}
	sub := Subscription{
		ID:                  SubscriptionID(pid, m.ElementID, m.ExecutionID),
		MessageName:         m.Name,
		CorrelationKey:      m.CorrelationKey,
		BusinessKey:         first(m.BusinessKey, cause.Process.BusinessKey),
		ProcessInstanceID:   pid,
		ProcessDefinitionID: first(m.ProcessDefinitionID, cause.Process.ProcessDefinitionID),
		ExecutionID:         m.ExecutionID,
		ElementID:           m.ElementID,
		AppName:             app,
		Created:             cause.Timestamp,
	}

	gid := GroupID(app, m.Name, m.CorrelationKey)
	out, err := c.store.Update(ctx, gid, cause.ID, func(g *Group) ([]events.Event, error) {
		if g.hasSubscription(sub.ID) {
			return nil, nil
		}
		if len(g.Pending) > 0 {
			p := g.Pending[0]
			g.Pending = g.Pending[1:]
			return []events.Event{c.received(cause, app, p.ID, p.Message, &sub, nil)}, nil
		}
		g.Subscriptions = append(g.Subscriptions, sub)
		return []events.Event{c.waiting(cause, sub)}, nil
	})
	if err != nil {
		return &procview.PersistenceError{EventID: cause.ID, Err: err}
	}
	c.logger.Debug("message subscription",
		slog.String("group", gid),
		slog.String("process_instance_id", pid),
		slog.Int("emitted", len(out)),
	)
	return c.emit(ctx, cause, out)
}

// OnThrow emits MESSAGE_SENT and delivers m to the first subscription
// waiting in its group. Without one, m starts the definitions subscribed to
// its name, or is held until a subscription arrives.
func (c *Correlator) OnThrow(ctx context.Context, cause events.Event, m *events.Message) error {
	app := cause.Producer.AppName
	gid := GroupID(app, m.Name, m.CorrelationKey)
	startID := GroupID(app, m.Name, "")

	var starters []Starter
	if gid != startID {
		sg, err := c.store.Load(ctx, startID)
		switch {
		case err == nil:
			starters = sg.Starters
		case !errors.Is(err, procview.ErrNotFound):
			return &procview.PersistenceError{EventID: cause.ID, Err: err}
		}
	}

	msg := *m
	msg.ProcessInstanceID = first(m.ProcessInstanceID, cause.Process.ProcessInstanceID)
	sent := c.outbound(cause, events.MessageSent, msg.Name, &msg, cause.Process)

	out, err := c.store.Update(ctx, gid, cause.ID, func(g *Group) ([]events.Event, error) {
		evts := []events.Event{sent}
		if g.hasPending(cause.ID) {
			return evts, nil
		}
		if len(g.Subscriptions) > 0 {
			s := g.Subscriptions[0]
			g.Subscriptions = g.Subscriptions[1:]
			return append(evts, c.received(cause, app, cause.ID, msg, &s, nil)), nil
		}
		st := starters
		if gid == startID {
			st = g.Starters
		}
		if len(st) > 0 {
			for i := range st {
				evts = append(evts, c.received(cause, app, cause.ID, msg, nil, &st[i]))
			}
			return evts, nil
		}
		g.Pending = append(g.Pending, Pending{ID: cause.ID, Message: msg, Thrown: cause.Timestamp})
		return evts, nil
	})
	if err != nil {
		return &procview.PersistenceError{EventID: cause.ID, Err: err}
	}
	return c.emit(ctx, cause, out)
}

// OnSubscriptionCancelled removes every subscription of process instance
// pid, one MESSAGE_SUBSCRIPTION_CANCELLED each.
func (c *Correlator) OnSubscriptionCancelled(ctx context.Context, cause events.Event, pid string) error {
	gids, err := c.store.GroupsOf(ctx, pid)
	if err != nil {
		return &procview.PersistenceError{EventID: cause.ID, Err: err}
	}
	for _, gid := range gids {
		out, err := c.store.Update(ctx, gid, cause.ID, func(g *Group) ([]events.Event, error) {
			var evts []events.Event
			g.Subscriptions = slices.DeleteFunc(g.Subscriptions, func(s Subscription) bool {
				if s.ProcessInstanceID != pid {
					return false
				}
				evts = append(evts, c.cancelled(cause, s))
				return true
			})
			return evts, nil
		})
		if err != nil {
			return &procview.PersistenceError{EventID: cause.ID, Err: err}
		}
		// emitted per group so a retry only repeats what is left
		if err := c.emit(ctx, cause, out); err != nil {
			return err
		}
	}
	return nil
}

// DeployStartMessages registers def as a start subscriber of every message
// a top-level start event of its model starts on. Messages held in those
// groups start it right away.
func (c *Correlator) DeployStartMessages(ctx context.Context, cause events.Event, def *events.ProcessDefinition) error {
	app := cause.Producer.AppName
	for _, sm := range StartMessages(def) {
		if !sm.StartsInstance {
			continue
		}
		starter := Starter{
			ProcessDefinitionID:      def.ID,
			ProcessDefinitionKey:     def.Key,
			ProcessDefinitionVersion: def.Version,
			ElementID:                sm.ElementID,
		}
		deployed := c.outbound(cause, events.StartMessageDeployed, sm.Name, &events.StartMessageDeployment{
			ID:                       def.ID + ":" + sm.Name,
			MessageName:              sm.Name,
			ElementID:                sm.ElementID,
			ProcessDefinitionID:      def.ID,
			ProcessDefinitionKey:     def.Key,
			ProcessDefinitionVersion: def.Version,
		}, events.ProcessContext{
			ProcessDefinitionID:      def.ID,
			ProcessDefinitionKey:     def.Key,
			ProcessDefinitionVersion: def.Version,
		})

		gid := GroupID(app, sm.Name, "")
		out, err := c.store.Update(ctx, gid, cause.ID, func(g *Group) ([]events.Event, error) {
			addStarter(g, starter)
			evts := []events.Event{deployed}
			for _, p := range g.Pending {
				evts = append(evts, c.received(cause, app, p.ID, p.Message, nil, &starter))
			}
			g.Pending = nil
			return evts, nil
		})
		if err != nil {
			return &procview.PersistenceError{EventID: cause.ID, Err: err}
		}
		if err := c.emit(ctx, cause, out); err != nil {
			return err
		}
	}
	return nil
}

// addStarter keeps one starter per definition key, the highest version.
func addStarter(g *Group, st Starter) {
	for i, cur := range g.Starters {
		if cur.ProcessDefinitionKey != st.ProcessDefinitionKey {
			continue
		}
		if st.ProcessDefinitionVersion >= cur.ProcessDefinitionVersion {
			g.Starters[i] = st
		}
		return
	}
	g.Starters = append(g.Starters, st)
}

// Subscriptions lists the pending subscriptions of a process instance.
func (c *Correlator) Subscriptions(ctx context.Context, pid string) ([]Subscription, error) {
	gids, err := c.store.GroupsOf(ctx, pid)
	if err != nil {
		return nil, err
	}
	var out []Subscription
	for _, gid := range gids {
		g, err := c.store.Load(ctx, gid)
		if errors.Is(err, procview.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, s := range g.Subscriptions {
			if s.ProcessInstanceID == pid {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (c *Correlator) emit(ctx context.Context, cause events.Event, out []events.Event) error {
	if len(out) == 0 {
		return nil
	}
	if _, err := c.emitter.Append(ctx, out...); err != nil {
		return &procview.PersistenceError{EventID: cause.ID, Err: fmt.Errorf("emit: %w", err)}
	}
	return nil
}

// outbound builds an event caused by cause. Its id is derived from the
// cause, the type and key, so re-emitting it after a retry is dropped by
// the journal.
func (c *Correlator) outbound(cause events.Event, t events.Type, key string, entity events.Entity, pc events.ProcessContext) events.Event {
	p := c.producer
	if p.AppName == "" {
		p.AppName = cause.Producer.AppName
		p.AppVersion = cause.Producer.AppVersion
	}
	return events.Event{
		ID:        uuid.NewSHA1(outboundNamespace, []byte(cause.ID+":"+string(t)+":"+key)).String(),
		Type:      t,
		Timestamp: cause.Timestamp,
		EntityID:  key,
		Entity:    entity,
		Producer:  p,
		Process:   pc,
		MessageID: cause.ID,
	}
}

func (c *Correlator) waiting(cause events.Event, s Subscription) events.Event {
	return c.outbound(cause, events.MessageWaiting, s.ID, subscriptionEntity(s), processOf(s))
}

func (c *Correlator) cancelled(cause events.Event, s Subscription) events.Event {
	return c.outbound(cause, events.MessageSubscriptionCancelled, s.ID, subscriptionEntity(s), processOf(s))
}

// received addresses msg, identified by messageID, to a waiting
// subscription or, when s is nil, to a start subscriber.
func (c *Correlator) received(cause events.Event, app, messageID string, msg events.Message, s *Subscription, st *Starter) events.Event {
	var pc events.ProcessContext
	key := messageID
	if s != nil {
		msg.ProcessInstanceID = s.ProcessInstanceID
		msg.ProcessDefinitionID = s.ProcessDefinitionID
		msg.ExecutionID = s.ExecutionID
		msg.ElementID = s.ElementID
		msg.BusinessKey = first(msg.BusinessKey, s.BusinessKey)
		pc = processOf(*s)
		key += ":" + s.ID
	} else {
		msg.ProcessInstanceID = ""
		msg.ExecutionID = ""
		msg.ProcessDefinitionID = st.ProcessDefinitionID
		msg.ProcessDefinitionKey = st.ProcessDefinitionKey
		msg.ElementID = st.ElementID
		pc = events.ProcessContext{
			ProcessDefinitionID:      st.ProcessDefinitionID,
			ProcessDefinitionKey:     st.ProcessDefinitionKey,
			ProcessDefinitionVersion: st.ProcessDefinitionVersion,
			BusinessKey:              msg.BusinessKey,
		}
		key += ":" + st.ProcessDefinitionID
	}
	msg.Destination = c.resolver.Resolve(app, msg.Name)
	return c.outbound(cause, events.MessageReceived, key, &msg, pc)
}

func subscriptionEntity(s Subscription) *events.MessageSubscription {
	return &events.MessageSubscription{
		ID:                  s.ID,
		EventName:           s.MessageName,
		ConfigurationKey:    s.CorrelationKey,
		ProcessInstanceID:   s.ProcessInstanceID,
		ProcessDefinitionID: s.ProcessDefinitionID,
		ExecutionID:         s.ExecutionID,
		ActivityID:          s.ElementID,
		BusinessKey:         s.BusinessKey,
		Created:             s.Created,
	}
}

func processOf(s Subscription) events.ProcessContext {
	return events.ProcessContext{
		ProcessInstanceID:   s.ProcessInstanceID,
		ProcessDefinitionID: s.ProcessDefinitionID,
		BusinessKey:         s.BusinessKey,
	}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
