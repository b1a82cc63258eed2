//go:build integration

package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/internal/testutil"
	"github.com/ripkitten-co/procview/projections"
	"github.com/ripkitten-co/procview/query"
)

func setupPostgres(t *testing.T) (*procview.Store, *projections.Dispatcher[query.Repositories]) {
	t.Helper()
	store, err := procview.New(context.Background(), testutil.SetupPostgres(t))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg, err := query.NewRegistry(query.WithLogger(quiet))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	d := projections.NewDispatcher(reg, query.UnitOfWork(store), projections.WithDispatchLogger(quiet))
	return store, d
}

func TestPostgres_ProcessLifecycle(t *testing.T) {
	store, d := setupPostgres(t)
	ctx := context.Background()

	err := d.Dispatch(ctx, []events.Event{
		process(events.ProcessCreated, at(0), "P1"),
		process(events.ProcessStarted, at(1), "P1"),
		task(events.TaskCreated, at(2), &events.Task{ID: "T1", ProcessInstanceID: "P1", Assignee: "ada"}),
		activity(events.ActivityStarted, at(2), "P1", "review"),
		activity(events.ActivityCompleted, at(3), "P1", "review"),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	repos := query.PostgresRepositories(store)
	pi, err := repos.ProcessInstances().Load(ctx, "P1")
	if err != nil {
		t.Fatalf("load process: %v", err)
	}
	if pi.Status != query.ProcessRunning {
		t.Errorf("status: %s", pi.Status)
	}

	tasks, err := repos.Tasks().Find(ctx, documents.Eq("processInstanceId", "P1"))
	if err != nil {
		t.Fatalf("find tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != query.TaskAssigned {
		t.Errorf("tasks: %+v", tasks)
	}

	acts, err := repos.Activities().Find(ctx, documents.Eq("processInstanceId", "P1"))
	if err != nil {
		t.Fatalf("find activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Status != query.ActivityCompleted {
		t.Errorf("activities: %+v", acts)
	}
}

func TestPostgres_FailureIsolatedToEvent(t *testing.T) {
	store, d := setupPostgres(t)
	ctx := context.Background()

	err := d.Dispatch(ctx, []events.Event{
		task(events.TaskCreated, at(0), &events.Task{ID: "T1", ProcessInstanceID: "P9"}),
		process(events.ProcessDeleted, at(1), "P9"),
	})
	if !errors.Is(err, procview.ErrReferencedEntityNotFound) {
		t.Fatalf("got %v, want ErrReferencedEntityNotFound", err)
	}

	ok, err := query.PostgresRepositories(store).Tasks().Exists(ctx, "T1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Error("task from the earlier event was lost")
	}
}
