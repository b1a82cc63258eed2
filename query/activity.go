package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/ripkitten-co/procview/events"
)

var activityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ripkitten-co/procview/activity"))

// ActivityID derives the id of the activity row for one execution of a
// flow element, so every event about it lands on the same row.
func ActivityID(processInstanceID, elementID, executionID string) string {
	return uuid.NewSHA1(activityNamespace, []byte(processInstanceID+":"+elementID+":"+executionID)).String()
}

// activity returns the upsert for the payload's activity. Activity rows are
// synthesised when the started event was lost, so every activity event is
// creation class.
func activity(r Repositories, evt events.Event, a *events.Activity) upsert[Activity] {
	id := ActivityID(a.ProcessInstanceID, a.ElementID, a.ExecutionID)
	return upsert[Activity]{
		repo: r.Activities(),
		id:   id,
		create: func() *Activity {
			return &Activity{
				ID:                  id,
				ElementID:           a.ElementID,
				ExecutionID:         a.ExecutionID,
				ProcessInstanceID:   a.ProcessInstanceID,
				ProcessDefinitionID: first(a.ProcessDefinitionID, evt.Process.ProcessDefinitionID),
				BusinessKey:         first(a.BusinessKey, evt.Process.BusinessKey),
				Status:              ActivityStarted,
				Source:              sourceOf(evt),
			}
		},
	}
}

func fillActivity(act *Activity, a *events.Activity) {
	if a.ActivityName != "" {
		act.ActivityName = a.ActivityName
	}
	if a.ActivityType != "" {
		act.ActivityType = a.ActivityType
	}
}

func (h *handlers) activityStarted(ctx context.Context, r Repositories, evt events.Event) error {
	a, err := events.Payload[*events.Activity](evt)
	if err != nil {
		return err
	}
	return activity(r, evt, a).apply(ctx, evt, func(act *Activity, _ bool) error {
		fillActivity(act, a)
		act.StartedDate = ptr(evt.Timestamp)
		return nil
	})
}

func (h *handlers) activityCompleted(ctx context.Context, r Repositories, evt events.Event) error {
	return h.activityEnded(ctx, r, evt, ActivityCompleted)
}

func (h *handlers) activityCancelled(ctx context.Context, r Repositories, evt events.Event) error {
	return h.activityEnded(ctx, r, evt, ActivityCancelled)
}

func (h *handlers) activityEnded(ctx context.Context, r Repositories, evt events.Event, status ActivityStatus) error {
	a, err := events.Payload[*events.Activity](evt)
	if err != nil {
		return err
	}
	return activity(r, evt, a).apply(ctx, evt, func(act *Activity, _ bool) error {
		fillActivity(act, a)
		if !h.transition(evt, "Activity", act.ID, string(act.Status), string(status), act.Status.Terminal(), timeOf(act.StartedDate), 0) {
			return errSkip
		}
		act.Status = status
		if status == ActivityCompleted {
			act.CompletedDate = ptr(evt.Timestamp)
		} else {
			act.CancelledDate = ptr(evt.Timestamp)
		}
		return nil
	})
}

func (h *handlers) sequenceFlowTaken(ctx context.Context, r Repositories, evt events.Event) error {
	f, err := events.Payload[*events.SequenceFlow](evt)
	if err != nil {
		return err
	}
	// one row per event, keyed by the event id
	u := upsert[SequenceFlow]{
		repo:   r.SequenceFlows(),
		id:     evt.ID,
		create: func() *SequenceFlow { return &SequenceFlow{ID: evt.ID} },
	}
	return u.apply(ctx, evt, func(sf *SequenceFlow, created bool) error {
		if !created {
			return errSkip
		}
		sf.ElementID = f.ElementID
		sf.SourceActivityElementID = f.SourceActivityElementID
		sf.SourceActivityName = f.SourceActivityName
		sf.SourceActivityType = f.SourceActivityType
		sf.TargetActivityElementID = f.TargetActivityElementID
		sf.TargetActivityName = f.TargetActivityName
		sf.TargetActivityType = f.TargetActivityType
		sf.ProcessInstanceID = f.ProcessInstanceID
		sf.ProcessDefinitionID = first(f.ProcessDefinitionID, evt.Process.ProcessDefinitionID)
		sf.Date = evt.Timestamp
		sf.Source = sourceOf(evt)
		return nil
	})
}
