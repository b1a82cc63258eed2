package projections

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// DeadLetterSink receives events a subscriber failed on after every retry.
type DeadLetterSink interface {
	Push(ctx context.Context, subscriber string, evt events.Event, cause error) error
}

// RetryError is returned by ProcessBatch while a failing batch still has
// attempts left. The checkpoint does not move past the first failure.
type RetryError struct {
	Subscriber string
	Attempt    int
	Max        int
	Err        error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("worker %s: attempt %d/%d: %v", e.Subscriber, e.Attempt, e.Max, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

type Worker struct {
	store       *procview.Store
	subscriber  Subscriber
	checkpoint  *CheckpointStore
	poller      *Poller
	deadLetters DeadLetterSink
	logger      *slog.Logger
	lockConn    *pgxpool.Conn
	batchSize   int
	maxRetries  int
	attempts    int
}

func NewWorker(store *procview.Store, sub Subscriber) *Worker {
	return &Worker{
		store:      store,
		subscriber: sub,
		checkpoint: NewCheckpointStore(store),
		poller:     NewPoller(store, 100),
		logger:     slog.Default(),
		batchSize:  100,
		maxRetries: 5,
	}
}

func (w *Worker) SetMaxRetries(n int) {
	w.maxRetries = n
}

func (w *Worker) SetBatchSize(n int) {
	w.batchSize = n
	w.poller = NewPoller(w.store, n)
}

// SetDeadLetters enables dead-lettering. Without a sink, a batch that
// exhausts its retries parks the subscriber in the dead_letter status.
func (w *Worker) SetDeadLetters(sink DeadLetterSink) {
	w.deadLetters = sink
}

func (w *Worker) SetLogger(l *slog.Logger) {
	w.logger = l
}

// ProcessBatch polls the events after the subscriber's checkpoint and hands
// the ones it subscribes to over to it. Returns the number of events polled
// (before filtering) so callers can decide whether to keep draining.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	name := w.subscriber.Name()

	pos, status, err := w.checkpoint.Load(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("worker %s: load checkpoint: %w", name, err)
	}
	if status == StatusDeadLetter || status == StatusStopped {
		return 0, nil
	}

	evts, err := w.poller.Poll(ctx, pos)
	if err != nil {
		return 0, fmt.Errorf("worker %s: poll: %w", name, err)
	}
	if len(evts) == 0 {
		return 0, nil
	}
	last := evts[len(evts)-1].GlobalPosition

	filtered := w.filterEvents(evts)
	if len(filtered) == 0 {
		return len(evts), w.checkpoint.Save(ctx, name, last)
	}

	err = w.subscriber.Process(ctx, filtered)
	if err == nil {
		w.attempts = 0
		return len(evts), w.checkpoint.Save(ctx, name, last)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	failed := failedEvents(filtered, err)
	w.attempts++
	if w.attempts < w.maxRetries {
		// events ahead of the first failure are committed, keep them
		if before := failed[0].GlobalPosition - 1; before > pos {
			if saveErr := w.checkpoint.Save(ctx, name, before); saveErr != nil {
				return 0, fmt.Errorf("worker %s: save checkpoint: %w", name, saveErr)
			}
		}
		return 0, &RetryError{Subscriber: name, Attempt: w.attempts, Max: w.maxRetries, Err: err}
	}
	w.attempts = 0

	if w.deadLetters == nil {
		if statusErr := w.checkpoint.SetStatus(ctx, name, StatusDeadLetter); statusErr != nil {
			w.logger.Error("set dead letter status", "worker", name, "error", statusErr)
		}
		return 0, fmt.Errorf("worker %s: process: %w", name, err)
	}

	for _, evt := range failed {
		cause := causeOf(evt, err)
		if pushErr := w.deadLetters.Push(ctx, name, evt, cause); pushErr != nil {
			return 0, fmt.Errorf("worker %s: dead letter %s: %w", name, evt.ID, pushErr)
		}
		w.logger.Warn("event dead-lettered",
			"worker", name,
			"event_id", evt.ID,
			"event_type", string(evt.Type),
			"error", cause,
		)
	}
	return len(evts), w.checkpoint.Save(ctx, name, last)
}

// failedEvents narrows the batch to the events a DispatchError names. Any
// other error fails the whole batch.
func failedEvents(evts []events.Event, err error) []events.Event {
	var de *DispatchError
	if !errors.As(err, &de) {
		return evts
	}
	var out []events.Event
	for _, evt := range evts {
		if de.Failed(evt.ID) {
			out = append(out, evt)
		}
	}
	if len(out) == 0 {
		return evts
	}
	return out
}

func causeOf(evt events.Event, err error) error {
	var de *DispatchError
	if errors.As(err, &de) {
		for _, f := range de.Failures {
			if f.EventID == evt.ID {
				return f.Err
			}
		}
	}
	return err
}

// TryAcquireLock takes the subscriber's session-level advisory lock on a
// dedicated connection, which is held until ReleaseLock.
func (w *Worker) TryAcquireLock(ctx context.Context) (bool, error) {
	if w.lockConn != nil {
		return true, nil
	}
	conn, err := w.store.PgxPool().Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("worker %s: acquire lock conn: %w", w.subscriber.Name(), err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockHash(w.subscriber.Name())).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("worker %s: acquire lock: %w", w.subscriber.Name(), err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}
	w.lockConn = conn
	return true, nil
}

func (w *Worker) ReleaseLock(ctx context.Context) error {
	if w.lockConn == nil {
		return nil
	}
	conn := w.lockConn
	w.lockConn = nil
	defer conn.Release()

	var released bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", lockHash(w.subscriber.Name())).Scan(&released)
	if err != nil {
		// the lock dies with the session, don't hand a locked conn back
		_ = conn.Conn().Close(context.Background())
		return fmt.Errorf("worker %s: release lock: %w", w.subscriber.Name(), err)
	}
	return nil
}

func (w *Worker) filterEvents(evts []events.Event) []events.Event {
	types := make(map[events.Type]struct{}, len(w.subscriber.EventTypes()))
	for _, t := range w.subscriber.EventTypes() {
		types[t] = struct{}{}
	}

	var filtered []events.Event
	for _, evt := range evts {
		if _, ok := types[evt.Type]; ok {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

func lockHash(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
