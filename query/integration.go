package query

import (
	"context"
	"time"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

func integrationNotFound(id string) error {
	return procview.NotFound("IntegrationContext", id, "Unable to find integration context with id: "+id)
}

func (h *handlers) integrationRequested(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.IntegrationContext](evt)
	if err != nil {
		return err
	}
	u := upsert[IntegrationContext]{
		repo:   r.Integrations(),
		id:     c.ID,
		create: func() *IntegrationContext { return &IntegrationContext{ID: c.ID} },
	}
	err = u.apply(ctx, evt, func(ic *IntegrationContext, created bool) error {
		if !created && ic.Status != IntegrationRequested {
			// the result is already in
			return errSkip
		}
		ic.Status = IntegrationRequested
		ic.ClientID = c.ClientID
		ic.ClientName = c.ClientName
		ic.ClientType = c.ClientType
		ic.ConnectorType = c.ConnectorType
		ic.ExecutionID = c.ExecutionID
		ic.ProcessInstanceID = first(c.ProcessInstanceID, evt.Process.ProcessInstanceID)
		ic.ProcessDefinitionID = first(c.ProcessDefinitionID, evt.Process.ProcessDefinitionID)
		ic.BusinessKey = first(c.BusinessKey, evt.Process.BusinessKey)
		ic.InBoundVariables = c.InBoundVariables
		ic.RequestDate = ptr(evt.Timestamp)
		ic.Source = sourceOf(evt)
		return nil
	})
	if err != nil {
		return err
	}
	return h.serviceTask(ctx, r, evt, c, nil)
}

func (h *handlers) integrationResultReceived(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.IntegrationContext](evt)
	if err != nil {
		return err
	}
	u := upsert[IntegrationContext]{
		repo:    r.Integrations(),
		id:      c.ID,
		missing: func() error { return integrationNotFound(c.ID) },
	}
	return u.apply(ctx, evt, func(ic *IntegrationContext, _ bool) error {
		ic.Status = IntegrationResultReceived
		ic.OutBoundVariables = c.OutBoundVariables
		ic.ResultDate = ptr(evt.Timestamp)
		return nil
	})
}

// integrationErrorReceived records the failure on the context and marks the
// service task that issued it as ERROR.
func (h *handlers) integrationErrorReceived(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.IntegrationContext](evt)
	if err != nil {
		return err
	}
	u := upsert[IntegrationContext]{
		repo:    r.Integrations(),
		id:      c.ID,
		missing: func() error { return integrationNotFound(c.ID) },
	}
	err = u.apply(ctx, evt, func(ic *IntegrationContext, _ bool) error {
		ic.Status = IntegrationErrorReceived
		ic.ErrorDate = ptr(evt.Timestamp)
		ic.ErrorCode = c.ErrorCode
		ic.ErrorClassName = c.ErrorClassName
		ic.ErrorMessage = truncate(c.ErrorMessage, h.maxErrorMessage)
		ic.StackTraceElements = make([]StackFrame, len(c.StackTraceElements))
		for i, f := range c.StackTraceElements {
			ic.StackTraceElements[i] = StackFrame(f)
		}
		return nil
	})
	if err != nil {
		return err
	}

	status := ActivityError
	return h.serviceTask(ctx, r, evt, c, &status)
}

// serviceTask makes sure the activity row of the service task behind c
// exists and, when status is set, moves it there.
func (h *handlers) serviceTask(ctx context.Context, r Repositories, evt events.Event, c *events.IntegrationContext, status *ActivityStatus) error {
	pid := first(c.ProcessInstanceID, evt.Process.ProcessInstanceID)
	if c.ClientID == "" || pid == "" {
		return nil
	}
	a := &events.Activity{
		ElementID:           c.ClientID,
		ActivityName:        c.ClientName,
		ActivityType:        first(c.ClientType, ServiceTaskType),
		ExecutionID:         c.ExecutionID,
		ProcessInstanceID:   pid,
		ProcessDefinitionID: c.ProcessDefinitionID,
		BusinessKey:         c.BusinessKey,
	}
	return activity(r, evt, a).apply(ctx, evt, func(act *Activity, created bool) error {
		fillActivity(act, a)
		if created {
			act.StartedDate = ptr(evt.Timestamp)
		}
		if status == nil || act.Status == *status {
			return nil
		}
		if !h.transition(evt, "Activity", act.ID, string(act.Status), string(*status), act.Status.Terminal(), time.Time{}, 0) {
			return errSkip
		}
		act.Status = *status
		return nil
	})
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
