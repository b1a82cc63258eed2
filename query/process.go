package query

import (
	"context"
	"log/slog"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
)

func processNotFound(id string) error {
	return procview.NotFound("ProcessInstance", id, "Unable to find process instance with the given id: "+id)
}

func (h *handlers) processDeployed(ctx context.Context, r Repositories, evt events.Event) error {
	def, err := events.Payload[*events.ProcessDefinition](evt)
	if err != nil {
		return err
	}
	u := upsert[ProcessDefinition]{
		repo:   r.ProcessDefinitions(),
		id:     def.ID,
		create: func() *ProcessDefinition { return &ProcessDefinition{ID: def.ID} },
	}
	return u.apply(ctx, evt, func(d *ProcessDefinition, _ bool) error {
		d.Key = def.Key
		d.Name = def.Name
		d.Description = def.Description
		d.DefinitionVersion = def.Version
		d.DeployedAppVer = def.AppVersion
		d.Source = sourceOf(evt)
		return nil
	})
}

func (h *handlers) processCreated(ctx context.Context, r Repositories, evt events.Event) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	u := upsert[ProcessInstance]{
		repo: r.ProcessInstances(),
		id:   p.ID,
		create: func() *ProcessInstance {
			return &ProcessInstance{ID: p.ID, Status: ProcessCreated, LastModified: evt.Timestamp}
		},
	}
	return u.apply(ctx, evt, func(pi *ProcessInstance, created bool) error {
		if !created && (evt.Timestamp.Before(pi.LastModified) || applied(evt, pi.LastPosition)) {
			return errSkip
		}
		advance(evt, &pi.LastPosition)
		pi.Name = p.Name
		pi.Description = p.Description
		pi.ProcessDefinitionID = first(p.ProcessDefinitionID, evt.Process.ProcessDefinitionID)
		pi.ProcessDefinitionKey = first(p.ProcessDefinitionKey, evt.Process.ProcessDefinitionKey)
		pi.ProcessDefinitionName = p.ProcessDefinitionName
		pi.ProcessDefinitionVersion = p.ProcessDefinitionVersion
		if pi.ProcessDefinitionVersion == 0 {
			pi.ProcessDefinitionVersion = evt.Process.ProcessDefinitionVersion
		}
		pi.BusinessKey = first(p.BusinessKey, evt.Process.BusinessKey)
		pi.ParentID = first(p.ParentID, evt.Process.ParentProcessInstanceID)
		pi.Initiator = p.Initiator
		pi.Source = sourceOf(evt)
		return nil
	})
}

// processStatus applies a status change to an existing process instance.
func (h *handlers) processStatus(ctx context.Context, r Repositories, evt events.Event, next ProcessStatus, mutate func(pi *ProcessInstance)) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	u := upsert[ProcessInstance]{
		repo:    r.ProcessInstances(),
		id:      p.ID,
		missing: func() error { return processNotFound(p.ID) },
	}
	return u.apply(ctx, evt, func(pi *ProcessInstance, _ bool) error {
		if !h.transition(evt, "ProcessInstance", pi.ID, string(pi.Status), string(next), pi.Status.Terminal(), pi.LastModified, pi.LastPosition) {
			return errSkip
		}
		pi.Status = next
		pi.LastModified = evt.Timestamp
		advance(evt, &pi.LastPosition)
		if mutate != nil {
			mutate(pi)
		}
		return nil
	})
}

func (h *handlers) processStarted(ctx context.Context, r Repositories, evt events.Event) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	return h.processStatus(ctx, r, evt, ProcessRunning, func(pi *ProcessInstance) {
		pi.StartDate = p.StartDate
		if pi.StartDate == nil {
			pi.StartDate = ptr(evt.Timestamp)
		}
	})
}

func (h *handlers) processSuspended(ctx context.Context, r Repositories, evt events.Event) error {
	return h.processStatus(ctx, r, evt, ProcessSuspended, func(pi *ProcessInstance) {
		pi.SuspendedDate = ptr(evt.Timestamp)
	})
}

func (h *handlers) processResumed(ctx context.Context, r Repositories, evt events.Event) error {
	return h.processStatus(ctx, r, evt, ProcessRunning, nil)
}

func (h *handlers) processCompleted(ctx context.Context, r Repositories, evt events.Event) error {
	return h.processStatus(ctx, r, evt, ProcessCompleted, func(pi *ProcessInstance) {
		pi.CompletedDate = ptr(evt.Timestamp)
	})
}

func (h *handlers) processCancelled(ctx context.Context, r Repositories, evt events.Event) error {
	return h.processStatus(ctx, r, evt, ProcessCancelled, nil)
}

func (h *handlers) processUpdated(ctx context.Context, r Repositories, evt events.Event) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	u := upsert[ProcessInstance]{
		repo:    r.ProcessInstances(),
		id:      p.ID,
		missing: func() error { return processNotFound(p.ID) },
	}
	return u.apply(ctx, evt, func(pi *ProcessInstance, _ bool) error {
		pi.Name = p.Name
		pi.BusinessKey = p.BusinessKey
		pi.Description = p.Description
		if evt.Timestamp.After(pi.LastModified) {
			pi.LastModified = evt.Timestamp
		}
		advance(evt, &pi.LastPosition)
		return nil
	})
}

// processDeleted removes the instance with its tasks and variables.
func (h *handlers) processDeleted(ctx context.Context, r Repositories, evt events.Event) error {
	p, err := events.Payload[*events.ProcessInstance](evt)
	if err != nil {
		return err
	}
	exists, err := r.ProcessInstances().Exists(ctx, p.ID)
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	if !exists {
		// removed by an earlier delivery of this event
		h.logger.Debug("process instance already deleted",
			slog.String("process_instance_id", p.ID),
			slog.String("event_id", evt.ID),
		)
		return nil
	}

	tasks, err := r.Tasks().Find(ctx, documents.Eq("processInstanceId", p.ID))
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	for _, t := range tasks {
		if err := h.deleteTask(ctx, r, evt, t.ID); err != nil {
			return err
		}
	}

	vars, err := r.Variables().Find(ctx, documents.Eq("processInstanceId", p.ID))
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	for _, v := range vars {
		if err := remove(ctx, evt, r.Variables(), v.ID); err != nil {
			return err
		}
	}

	return remove(ctx, evt, r.ProcessInstances(), p.ID)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
