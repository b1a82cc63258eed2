package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// VariableID is the row id of a variable: its owner's id followed by its
// name. The owner is the task for task variables, the process instance
// otherwise.
func VariableID(v *events.Variable) string {
	if v.TaskScoped() {
		return v.TaskID + v.Name
	}
	return v.ProcessInstanceID + v.Name
}

func variableNotFound(v *events.Variable) error {
	if v.TaskScoped() {
		return procview.NotFound("Variable", VariableID(v),
			fmt.Sprintf("Unable to find variable named '%s' for task '%s'", v.Name, v.TaskID))
	}
	return procview.NotFound("Variable", VariableID(v),
		fmt.Sprintf("Unable to find variable named '%s' for process instance '%s'", v.Name, v.ProcessInstanceID))
}

func (h *handlers) variableCreated(ctx context.Context, r Repositories, evt events.Event) error {
	v, err := events.Payload[*events.Variable](evt)
	if err != nil {
		return err
	}
	id := VariableID(v)
	u := upsert[Variable]{
		repo: r.Variables(),
		id:   id,
		create: func() *Variable {
			return &Variable{
				ID:                id,
				Name:              v.Name,
				TaskID:            v.TaskID,
				ProcessInstanceID: first(v.ProcessInstanceID, evt.Process.ProcessInstanceID),
				CreateTime:        ptr(evt.Timestamp),
			}
		},
	}
	return u.apply(ctx, evt, func(doc *Variable, created bool) error {
		if !created && evt.Timestamp.Before(doc.LastUpdatedTime) {
			return errSkip
		}
		doc.Type = v.Type
		doc.Value = v.Value
		doc.MarkedAsDeleted = false
		doc.LastUpdatedTime = evt.Timestamp
		doc.Source = sourceOf(evt)
		return nil
	})
}

// variableUpdated requires the current variable of the same owner and name.
func (h *handlers) variableUpdated(ctx context.Context, r Repositories, evt events.Event) error {
	v, err := events.Payload[*events.Variable](evt)
	if err != nil {
		return err
	}
	u := upsert[Variable]{
		repo:    r.Variables(),
		id:      VariableID(v),
		missing: func() error { return variableNotFound(v) },
	}
	return u.apply(ctx, evt, func(doc *Variable, _ bool) error {
		if doc.MarkedAsDeleted {
			return variableNotFound(v)
		}
		if evt.Timestamp.Before(doc.LastUpdatedTime) {
			h.logger.Warn("ignoring out-of-order variable update",
				slog.String("variable", doc.ID),
				slog.String("event_id", evt.ID),
				slog.Time("event_time", evt.Timestamp),
				slog.Time("last_updated", doc.LastUpdatedTime),
			)
			return errSkip
		}
		doc.Type = v.Type
		doc.Value = v.Value
		doc.LastUpdatedTime = evt.Timestamp
		return nil
	})
}

func (h *handlers) variableDeleted(ctx context.Context, r Repositories, evt events.Event) error {
	v, err := events.Payload[*events.Variable](evt)
	if err != nil {
		return err
	}
	u := upsert[Variable]{
		repo:    r.Variables(),
		id:      VariableID(v),
		missing: func() error { return variableNotFound(v) },
	}
	return u.apply(ctx, evt, func(doc *Variable, _ bool) error {
		doc.MarkedAsDeleted = true
		if evt.Timestamp.After(doc.LastUpdatedTime) {
			doc.LastUpdatedTime = evt.Timestamp
		}
		return nil
	})
}
