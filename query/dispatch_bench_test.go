package query_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ripkitten-co/procview/documents"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
	"github.com/ripkitten-co/procview/query"
)

func BenchmarkDispatch_ProcessLifecycle(b *testing.B) {
	reg, err := query.NewRegistry(query.WithLogger(quiet))
	if err != nil {
		b.Fatalf("registry: %v", err)
	}
	d := projections.NewDispatcher(reg, query.MemoryUnitOfWork(documents.NewMemoryStore()),
		projections.WithDispatchLogger(quiet),
		projections.WithMiddleware(),
	)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		pid := fmt.Sprintf("P%d", i)
		batch := []events.Event{
			process(events.ProcessCreated, at(0), pid),
			process(events.ProcessStarted, at(1), pid),
			task(events.TaskCreated, at(2), &events.Task{ID: "T" + pid, ProcessInstanceID: pid}),
			task(events.TaskAssigned, at(3), &events.Task{ID: "T" + pid, Assignee: "ada"}),
			task(events.TaskCompleted, at(4), &events.Task{ID: "T" + pid}),
			process(events.ProcessCompleted, at(5), pid),
		}
		if err := d.Dispatch(ctx, batch); err != nil {
			b.Fatalf("dispatch: %v", err)
		}
	}
}
