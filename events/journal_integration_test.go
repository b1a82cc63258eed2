//go:build integration

package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/internal/testutil"
)

func setupStore(t *testing.T) *procview.Store {
	t.Helper()
	connStr := testutil.SetupPostgres(t)
	store, err := procview.New(context.Background(), connStr)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func taskEvent(id string, typ events.Type, taskID string) events.Event {
	return events.Event{
		ID:        id,
		Type:      typ,
		Timestamp: time.UnixMilli(1700000000000),
		EntityID:  taskID,
		Entity:    &events.Task{ID: taskID, Name: "review"},
		Process:   events.ProcessContext{ProcessInstanceID: "p1"},
	}
}

func TestJournal_AppendAndReadAll(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	j := events.NewJournal(store)

	n, err := j.Append(ctx,
		taskEvent("e1", events.TaskCreated, "t1"),
		taskEvent("e2", events.TaskAssigned, "t1"),
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 2 {
		t.Errorf("appended: got %d, want 2", n)
	}

	got, err := j.ReadAll(ctx, 0, 10)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "e1" || got[1].Type != events.TaskAssigned {
		t.Errorf("got %+v", got)
	}
	if got[0].GlobalPosition >= got[1].GlobalPosition {
		t.Errorf("positions not increasing: %d, %d", got[0].GlobalPosition, got[1].GlobalPosition)
	}
	task, err := events.Payload[*events.Task](got[0])
	if err != nil || task.Name != "review" {
		t.Errorf("payload: got %+v, %v", task, err)
	}

	after, err := j.ReadAll(ctx, got[0].GlobalPosition, 10)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if len(after) != 1 || after[0].ID != "e2" {
		t.Errorf("read after first: got %+v", after)
	}
}

func TestJournal_AppendIsIdempotentByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	j := events.NewJournal(store)

	if _, err := j.Append(ctx, taskEvent("e1", events.TaskCreated, "t1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	n, err := j.Append(ctx, taskEvent("e1", events.TaskCreated, "t1"), taskEvent("e2", events.TaskCompleted, "t1"))
	if err != nil {
		t.Fatalf("append again: %v", err)
	}
	if n != 1 {
		t.Errorf("appended: got %d, want 1", n)
	}
}

func TestJournal_AppendRawRejectsMalformed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	j := events.NewJournal(store)

	_, err := j.AppendRaw(ctx,
		[]byte(`{"id":"e1","eventType":"TASK_CREATED","timestamp":1,"entity":{"id":"t1"}}`),
		[]byte(`{"id":"e2","eventType":"TASK_CREATED","timestamp":1}`),
	)
	if !errors.Is(err, procview.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if _, err := j.Load(ctx, "e1"); !errors.Is(err, procview.ErrNotFound) {
		t.Errorf("partial append: got %v, want ErrNotFound", err)
	}
}

func TestJournal_ConcurrentAppendsBecomeVisibleInOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	j := events.NewJournal(store)
	if _, err := j.Append(ctx, taskEvent("e0", events.TaskCreated, "t0")); err != nil {
		t.Fatalf("append: %v", err)
	}

	sess, err := store.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, err := events.NewJournal(sess).Append(ctx, taskEvent("e1", events.TaskCreated, "t1")); err != nil {
		t.Fatalf("append in session: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := j.Append(ctx, taskEvent("e2", events.TaskCreated, "t2"))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("append committed while an earlier append was open: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	got, err := j.ReadAll(ctx, 0, 10)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e0" {
		t.Fatalf("visible while e1 is open: %+v", got)
	}

	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("append e2: %v", err)
	}

	got, err = j.ReadAll(ctx, got[0].GlobalPosition, 10)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("got %+v, want e1 then e2", got)
	}
	if got[0].GlobalPosition >= got[1].GlobalPosition {
		t.Errorf("positions: e1 %d, e2 %d", got[0].GlobalPosition, got[1].GlobalPosition)
	}
}
