//go:build integration

package schema

import (
	"context"
	"testing"

	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/internal/testutil"
)

func setupSchemaTest(tb testing.TB) (pg.Executor, context.Context) {
	tb.Helper()
	connStr := testutil.SetupPostgres(tb)
	ctx := context.Background()
	pool, err := pg.NewPool(ctx, connStr)
	if err != nil {
		tb.Fatalf("new pool: %v", err)
	}
	tb.Cleanup(func() { pool.Close() })
	return pool, ctx
}

func TestEnsureCheckpoints(t *testing.T) {
	exec, ctx := setupSchemaTest(t)
	b := New()

	if err := b.EnsureCheckpoints(ctx, exec); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !b.IsCreated(CheckpointsTable) {
		t.Fatal("table should be cached after creation")
	}
	if err := b.EnsureCheckpoints(ctx, exec); err != nil {
		t.Fatalf("cached call: %v", err)
	}

	_, err := exec.Exec(ctx,
		`INSERT INTO procview_checkpoints (subscriber, last_position, status) VALUES ($1, $2, $3)`,
		"query", 42, "running",
	)
	if err != nil {
		t.Fatalf("insert checkpoint row: %v", err)
	}
	var pos int64
	row := exec.QueryRow(ctx, `SELECT last_position FROM procview_checkpoints WHERE subscriber = $1`, "query")
	if err := row.Scan(&pos); err != nil {
		t.Fatalf("read checkpoint row: %v", err)
	}
	if pos != 42 {
		t.Errorf("last_position: got %d, want 42", pos)
	}
}

func TestEnsureJournal_UniqueEventID(t *testing.T) {
	exec, ctx := setupSchemaTest(t)
	b := New()
	if err := b.EnsureJournal(ctx, exec); err != nil {
		t.Fatalf("ensure journal: %v", err)
	}

	insert := `INSERT INTO procview_journal (id, type, occurred_at, data) VALUES ($1, $2, now(), '{}') ON CONFLICT (id) DO NOTHING`
	for range 2 {
		if _, err := exec.Exec(ctx, insert, "e1", "PROCESS_CREATED"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	var n int
	if err := exec.QueryRow(ctx, `SELECT count(*) FROM procview_journal`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}
}

func TestEnsureCollection_InvalidName(t *testing.T) {
	exec, ctx := setupSchemaTest(t)
	if err := New().EnsureCollection(ctx, exec, "tasks; DROP TABLE x"); err == nil {
		t.Fatal("expected error for invalid name")
	}
}
