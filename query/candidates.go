package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
)

// addCandidate inserts an association row. Redelivery of the same
// association converges; a different association under the same id is
// rejected.
func addCandidate[T any](ctx context.Context, evt events.Event, repo documents.Repository[T], id string, row *T, same func(existing *T) bool) error {
	existing, err := repo.Load(ctx, id)
	switch {
	case err == nil:
		if same(existing) {
			return nil
		}
		return fmt.Errorf("candidate %s: %w", id, procview.ErrDuplicateID)
	case !errors.Is(err, procview.ErrNotFound):
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}

	if err := repo.Insert(ctx, row); err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	return nil
}

func (h *handlers) candidateUserAdded(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.CandidateUser](evt)
	if err != nil {
		return err
	}
	id := c.TaskID + c.UserID
	row := &TaskCandidateUser{ID: id, TaskID: c.TaskID, UserID: c.UserID}
	return addCandidate(ctx, evt, r.CandidateUsers(), id, row, func(e *TaskCandidateUser) bool {
		return e.TaskID == c.TaskID && e.UserID == c.UserID
	})
}

func (h *handlers) candidateUserRemoved(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.CandidateUser](evt)
	if err != nil {
		return err
	}
	return remove(ctx, evt, r.CandidateUsers(), c.TaskID+c.UserID)
}

func (h *handlers) candidateGroupAdded(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.CandidateGroup](evt)
	if err != nil {
		return err
	}
	id := c.TaskID + c.GroupID
	row := &TaskCandidateGroup{ID: id, TaskID: c.TaskID, GroupID: c.GroupID}
	return addCandidate(ctx, evt, r.CandidateGroups(), id, row, func(e *TaskCandidateGroup) bool {
		return e.TaskID == c.TaskID && e.GroupID == c.GroupID
	})
}

func (h *handlers) candidateGroupRemoved(ctx context.Context, r Repositories, evt events.Event) error {
	c, err := events.Payload[*events.CandidateGroup](evt)
	if err != nil {
		return err
	}
	return remove(ctx, evt, r.CandidateGroups(), c.TaskID+c.GroupID)
}
