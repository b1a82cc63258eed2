// Package messages correlates BPMN throw and catch message events across
// process instances. Catch subscriptions, held messages and start
// subscribers are kept in groups keyed by deployment scope, message name and
// correlation key, so a throw finds its catch without a central index.
package messages

import (
	"context"
	"slices"
	"time"

	"github.com/ripkitten-co/procview/events"
)

// Subscription is a catch event waiting for a message.
type Subscription struct {
	ID                  string    `json:"id"`
	MessageName         string    `json:"messageName"`
	CorrelationKey      string    `json:"correlationKey,omitempty"`
	BusinessKey         string    `json:"businessKey,omitempty"`
	ProcessInstanceID   string    `json:"processInstanceId"`
	ProcessDefinitionID string    `json:"processDefinitionId,omitempty"`
	ExecutionID         string    `json:"executionId,omitempty"`
	ElementID           string    `json:"elementId,omitempty"`
	AppName             string    `json:"appName,omitempty"`
	Created             time.Time `json:"created"`
}

// Pending is a thrown message nobody was waiting for yet. ID is the id of
// the event that threw it.
type Pending struct {
	ID      string         `json:"id"`
	Message events.Message `json:"message"`
	Thrown  time.Time      `json:"thrown"`
}

// Starter is a process definition that starts on a message.
type Starter struct {
	ProcessDefinitionID      string `json:"processDefinitionId"`
	ProcessDefinitionKey     string `json:"processDefinitionKey"`
	ProcessDefinitionVersion int    `json:"processDefinitionVersion"`
	ElementID                string `json:"elementId,omitempty"`
}

// Group holds everything known about one message name in one scope.
// Subscriptions and Pending are in arrival order.
type Group struct {
	ID            string         `json:"id"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
	Pending       []Pending      `json:"pending,omitempty"`
	Starters      []Starter      `json:"starters,omitempty"`
}

// GroupID is the group of a message name in an application, narrowed by
// the correlation key when there is one.
func GroupID(app, messageName, correlationKey string) string {
	if correlationKey == "" {
		return app + ":" + messageName
	}
	return app + ":" + messageName + ":" + correlationKey
}

// Empty reports whether the group can be garbage-collected.
func (g *Group) Empty() bool {
	return len(g.Subscriptions) == 0 && len(g.Pending) == 0 && len(g.Starters) == 0
}

func (g *Group) hasSubscription(id string) bool {
	return slices.ContainsFunc(g.Subscriptions, func(s Subscription) bool { return s.ID == id })
}

func (g *Group) hasPending(id string) bool {
	return slices.ContainsFunc(g.Pending, func(p Pending) bool { return p.ID == id })
}

// processInstances returns the distinct owners of the group's subscriptions.
func (g *Group) processInstances() []string {
	var out []string
	for _, s := range g.Subscriptions {
		if !slices.Contains(out, s.ProcessInstanceID) {
			out = append(out, s.ProcessInstanceID)
		}
	}
	return out
}

// UpdateFunc mutates a group and returns the events the change produces.
// It may run more than once when a store retries a conflicting update, so
// it must not have side effects beyond the group.
type UpdateFunc func(g *Group) ([]events.Event, error)

// GroupStore persists groups together with the process-instance index used
// to find every group an instance waits in.
type GroupStore interface {
	// Load returns the group or procview.ErrNotFound.
	Load(ctx context.Context, id string) (*Group, error)

	// Update runs fn on group id atomically. An absent group is passed in
	// empty; a group fn leaves empty is deleted. The process-instance index
	// follows the group's subscriptions. causeID is the id of the event
	// driving the update: when it was already applied to this group, fn is
	// not run and the events recorded then are returned again.
	Update(ctx context.Context, id, causeID string, fn UpdateFunc) ([]events.Event, error)

	// GroupsOf lists the groups process instance pid has subscriptions in.
	GroupsOf(ctx context.Context, pid string) ([]string, error)
}

// indexDiff returns the instances whose index entry for a group must be
// added and removed after a change from before to after.
func indexDiff(before, after []string) (add, remove []string) {
	for _, pid := range after {
		if !slices.Contains(before, pid) {
			add = append(add, pid)
		}
	}
	for _, pid := range before {
		if !slices.Contains(after, pid) {
			remove = append(remove, pid)
		}
	}
	return add, remove
}
