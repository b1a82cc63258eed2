package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
)

// errSkip aborts an upsert without persisting anything.
var errSkip = errors.New("skip")

// upsert is the find-create-mutate-persist step every handler shares.
// create builds the row for creation-class events and is nil for follow-up
// events, in which case an absent id is reported through missing.
type upsert[T any] struct {
	repo    documents.Repository[T]
	id      string
	create  func() *T
	missing func() error
}

func (u upsert[T]) apply(ctx context.Context, evt events.Event, mutate func(doc *T, created bool) error) error {
	doc, err := u.repo.Load(ctx, u.id)
	created := false
	switch {
	case errors.Is(err, procview.ErrNotFound):
		if u.create == nil {
			return u.missing()
		}
		doc, created = u.create(), true
	case err != nil:
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}

	if err := mutate(doc, created); err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}

	if err := u.repo.Upsert(ctx, doc); err != nil {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	return nil
}

// remove deletes id, treating an already absent row as done.
func remove[T any](ctx context.Context, evt events.Event, repo documents.Repository[T], id string) error {
	err := repo.Delete(ctx, id)
	if err != nil && !errors.Is(err, procview.ErrNotFound) {
		return &procview.PersistenceError{EventID: evt.ID, Err: err}
	}
	return nil
}

// applied reports whether evt is at or below the journal position of the
// last event written to a row. Events that never went through the journal
// carry no position and are never considered applied.
func applied(evt events.Event, lastPosition int64) bool {
	return evt.GlobalPosition != 0 && evt.GlobalPosition <= lastPosition
}

// advance records evt as the last event written to a row.
func advance(evt events.Event, lastPosition *int64) {
	if evt.GlobalPosition > *lastPosition {
		*lastPosition = evt.GlobalPosition
	}
}

// transition decides whether a status change from current to next may be
// applied. A redelivered event, leaving a terminal status and applying an
// event older than the row's last change are all refused.
func (h *handlers) transition(evt events.Event, entity, id string, current, next string, terminal bool, lastModified time.Time, lastPosition int64) bool {
	if applied(evt, lastPosition) {
		h.logger.Debug("ignoring redelivered status change",
			slog.String("entity", entity),
			slog.String("id", id),
			slog.String("event_type", string(evt.Type)),
			slog.String("event_id", evt.ID),
			slog.Int64("position", evt.GlobalPosition),
			slog.Int64("last_position", lastPosition),
		)
		return false
	}
	if current == next {
		return true
	}
	if terminal {
		h.logger.Warn("ignoring status change on terminal entity",
			slog.String("entity", entity),
			slog.String("id", id),
			slog.String("status", current),
			slog.String("event_type", string(evt.Type)),
			slog.String("event_id", evt.ID),
		)
		return false
	}
	if !lastModified.IsZero() && evt.Timestamp.Before(lastModified) {
		h.logger.Warn("ignoring out-of-order status change",
			slog.String("entity", entity),
			slog.String("id", id),
			slog.String("status", current),
			slog.String("event_type", string(evt.Type)),
			slog.String("event_id", evt.ID),
			slog.Time("event_time", evt.Timestamp),
			slog.Time("last_modified", lastModified),
		)
		return false
	}
	return true
}

func ptr(t time.Time) *time.Time { return &t }

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
