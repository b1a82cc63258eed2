//go:build integration

package procview_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/internal/testutil"
)

type processInstance struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Version int    `json:"-"`
}

func setupStore(t *testing.T) *procview.Store {
	t.Helper()
	store, err := procview.New(context.Background(), testutil.SetupPostgres(t))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func created(id, pid string) events.Event {
	return events.Event{
		ID:        id,
		Type:      events.ProcessCreated,
		Timestamp: time.UnixMilli(1700000000000).UTC(),
		EntityID:  pid,
		Entity:    &events.ProcessInstance{ID: pid},
	}
}

func TestSession_CommitDocumentsAndJournal(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	sess, err := store.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := documents.Collection[processInstance](sess, "process_instances").Insert(ctx, &processInstance{ID: "P1", Status: "CREATED"}); err != nil {
		t.Fatalf("insert in session: %v", err)
	}
	if _, err := events.NewJournal(sess).Append(ctx, created("e1", "P1")); err != nil {
		t.Fatalf("append in session: %v", err)
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := documents.Collection[processInstance](store, "process_instances").Load(ctx, "P1")
	if err != nil {
		t.Fatalf("load after commit: %v", err)
	}
	if got.Status != "CREATED" {
		t.Errorf("status: got %q", got.Status)
	}
	if _, err := events.NewJournal(store).Load(ctx, "e1"); err != nil {
		t.Errorf("journal load after commit: %v", err)
	}
}

func TestSession_RollbackDiscardsEverything(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// tables exist before the session so the rollback only drops rows
	if err := documents.Collection[processInstance](store, "process_instances").Insert(ctx, &processInstance{ID: "P0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := events.NewJournal(store).Append(ctx, created("e0", "P0")); err != nil {
		t.Fatal(err)
	}

	sess, err := store.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	_ = documents.Collection[processInstance](sess, "process_instances").Insert(ctx, &processInstance{ID: "P1"})
	_, _ = events.NewJournal(sess).Append(ctx, created("e1", "P1"))
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := documents.Collection[processInstance](store, "process_instances").Load(ctx, "P1"); !errors.Is(err, procview.ErrNotFound) {
		t.Errorf("document after rollback: %v", err)
	}
	if _, err := events.NewJournal(store).Load(ctx, "e1"); !errors.Is(err, procview.ErrNotFound) {
		t.Errorf("event after rollback: %v", err)
	}
	if err := sess.Commit(ctx); err == nil {
		t.Error("commit after close should fail")
	}
}
