//go:build integration

package events_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/internal/testutil"
)

func setupJournalBench(b *testing.B) (*events.Journal, context.Context) {
	b.Helper()
	ctx := context.Background()
	store, err := procview.New(ctx, testutil.SetupPostgres(b))
	if err != nil {
		b.Fatalf("new store: %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return events.NewJournal(store), ctx
}

func BenchmarkJournal_Append(b *testing.B) {
	for _, size := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			j, ctx := setupJournalBench(b)
			b.ReportAllocs()
			b.ResetTimer()
			for i := range b.N {
				batch := make([]events.Event, size)
				for k := range batch {
					batch[k] = taskEvent(fmt.Sprintf("e%d-%d", i, k), events.TaskCreated, "t1")
				}
				if _, err := j.Append(ctx, batch...); err != nil {
					b.Fatalf("append: %v", err)
				}
			}
		})
	}
}

func BenchmarkJournal_ReadAll(b *testing.B) {
	j, ctx := setupJournalBench(b)
	batch := make([]events.Event, 100)
	for k := range batch {
		batch[k] = taskEvent(fmt.Sprintf("e%d", k), events.TaskCreated, "t1")
	}
	if _, err := j.Append(ctx, batch...); err != nil {
		b.Fatalf("append: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := j.ReadAll(ctx, 0, 100); err != nil {
			b.Fatalf("read all: %v", err)
		}
	}
}
