package query

import (
	"context"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
)

func taskNotFound(id string) error {
	return procview.NotFound("Task", id, "Unable to find task with id: "+id)
}

func (h *handlers) taskCreated(ctx context.Context, r Repositories, evt events.Event) error {
	t, err := events.Payload[*events.Task](evt)
	if err != nil {
		return err
	}
	u := upsert[Task]{
		repo: r.Tasks(),
		id:   t.ID,
		create: func() *Task {
			status := TaskCreated
			if t.Assignee != "" {
				status = TaskAssigned
			}
			return &Task{ID: t.ID, Status: status, LastModified: evt.Timestamp}
		},
	}
	return u.apply(ctx, evt, func(task *Task, created bool) error {
		if !created && (evt.Timestamp.Before(task.LastModified) || applied(evt, task.LastPosition)) {
			// redelivered after later changes, which already hold
			return errSkip
		}
		advance(evt, &task.LastPosition)
		copyTask(task, t)
		task.Assignee = t.Assignee
		task.ProcessInstanceID = first(t.ProcessInstanceID, evt.Process.ProcessInstanceID)
		task.ProcessDefinitionID = first(t.ProcessDefinitionID, evt.Process.ProcessDefinitionID)
		task.TaskDefinitionKey = t.TaskDefinitionKey
		task.BusinessKey = first(t.BusinessKey, evt.Process.BusinessKey)
		task.CreatedDate = t.CreatedDate
		if task.CreatedDate == nil {
			task.CreatedDate = ptr(evt.Timestamp)
		}
		task.Source = sourceOf(evt)
		return nil
	})
}

// copyTask copies the fields TASK_UPDATED is allowed to change.
func copyTask(task *Task, t *events.Task) {
	task.Name = t.Name
	task.Description = t.Description
	task.Priority = t.Priority
	task.Owner = t.Owner
	task.FormKey = t.FormKey
	task.DueDate = t.DueDate
	task.ParentTaskID = t.ParentTaskID
}

func (h *handlers) taskUpdated(ctx context.Context, r Repositories, evt events.Event) error {
	t, err := events.Payload[*events.Task](evt)
	if err != nil {
		return err
	}
	u := upsert[Task]{
		repo:    r.Tasks(),
		id:      t.ID,
		missing: func() error { return taskNotFound(t.ID) },
	}
	return u.apply(ctx, evt, func(task *Task, _ bool) error {
		copyTask(task, t)
		if evt.Timestamp.After(task.LastModified) {
			task.LastModified = evt.Timestamp
		}
		advance(evt, &task.LastPosition)
		return nil
	})
}

func (h *handlers) taskStatus(ctx context.Context, r Repositories, evt events.Event, next func(task *Task) TaskStatus, mutate func(task *Task, t *events.Task)) error {
	t, err := events.Payload[*events.Task](evt)
	if err != nil {
		return err
	}
	u := upsert[Task]{
		repo:    r.Tasks(),
		id:      t.ID,
		missing: func() error { return taskNotFound(t.ID) },
	}
	return u.apply(ctx, evt, func(task *Task, _ bool) error {
		status := next(task)
		if !h.transition(evt, "Task", task.ID, string(task.Status), string(status), task.Status.Terminal(), task.LastModified, task.LastPosition) {
			return errSkip
		}
		if mutate != nil {
			mutate(task, t)
		}
		task.Status = status
		task.LastModified = evt.Timestamp
		advance(evt, &task.LastPosition)
		return nil
	})
}

func fixed(s TaskStatus) func(*Task) TaskStatus {
	return func(*Task) TaskStatus { return s }
}

func (h *handlers) taskAssigned(ctx context.Context, r Repositories, evt events.Event) error {
	return h.taskStatus(ctx, r, evt, fixed(TaskAssigned), func(task *Task, t *events.Task) {
		task.Assignee = t.Assignee
		task.ClaimedDate = t.ClaimedDate
		if task.ClaimedDate == nil {
			task.ClaimedDate = ptr(evt.Timestamp)
		}
	})
}

func (h *handlers) taskSuspended(ctx context.Context, r Repositories, evt events.Event) error {
	return h.taskStatus(ctx, r, evt, fixed(TaskSuspended), func(task *Task, _ *events.Task) {
		if task.Status != TaskSuspended {
			task.PreviousStatus = task.Status
		}
	})
}

// taskActivated ends a suspension, restoring the status the task was
// suspended from. Rows suspended without one recorded return to ASSIGNED
// when the task has an assignee and CREATED otherwise.
func (h *handlers) taskActivated(ctx context.Context, r Repositories, evt events.Event) error {
	next := func(task *Task) TaskStatus {
		if task.Status != TaskSuspended {
			return task.Status
		}
		if task.PreviousStatus != "" && task.PreviousStatus != TaskSuspended {
			return task.PreviousStatus
		}
		if task.Assignee != "" {
			return TaskAssigned
		}
		return TaskCreated
	}
	return h.taskStatus(ctx, r, evt, next, func(task *Task, _ *events.Task) {
		task.PreviousStatus = ""
	})
}

func (h *handlers) taskCompleted(ctx context.Context, r Repositories, evt events.Event) error {
	return h.taskStatus(ctx, r, evt, fixed(TaskCompleted), func(task *Task, t *events.Task) {
		task.CompletedDate = ptr(evt.Timestamp)
		task.CompletedBy = first(t.CompletedBy, task.Assignee)
	})
}

func (h *handlers) taskCancelled(ctx context.Context, r Repositories, evt events.Event) error {
	return h.taskStatus(ctx, r, evt, fixed(TaskCancelled), nil)
}

// deleteTask removes a task together with its candidates and task variables.
func (h *handlers) deleteTask(ctx context.Context, r Repositories, evt events.Event, taskID string) error {
	users, err := r.CandidateUsers().Find(ctx, documents.Eq("taskId", taskID))
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	for _, u := range users {
		if err := remove(ctx, evt, r.CandidateUsers(), u.ID); err != nil {
			return err
		}
	}

	groups, err := r.CandidateGroups().Find(ctx, documents.Eq("taskId", taskID))
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	for _, g := range groups {
		if err := remove(ctx, evt, r.CandidateGroups(), g.ID); err != nil {
			return err
		}
	}

	vars, err := r.Variables().Find(ctx, documents.Eq("taskId", taskID))
	if err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	for _, v := range vars {
		if err := remove(ctx, evt, r.Variables(), v.ID); err != nil {
			return err
		}
	}

	return remove(ctx, evt, r.Tasks(), taskID)
}
