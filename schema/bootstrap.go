package schema

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/ripkitten-co/procview/internal/indexes"
	"github.com/ripkitten-co/procview/internal/meta"
	"github.com/ripkitten-co/procview/internal/pg"
)

var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,54}$`)

// ValidateCollectionName checks that name is a valid collection identifier
// (alphanumeric + underscores, max 55 characters, starts with a letter).
func ValidateCollectionName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("schema: invalid collection name %q: must be alphanumeric with underscores, max 55 chars", name)
	}
	return nil
}

// TableName returns the physical table backing a collection.
func TableName(collection string) string {
	return "procview_" + collection
}

const (
	JournalTable     = "procview_journal"
	CheckpointsTable = "procview_checkpoints"
	JournalChannel   = "procview_journal"
)

func collectionDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS procview_%s (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, name)
}

func journalDDL() string {
	return `CREATE TABLE IF NOT EXISTS procview_journal (
	global_position BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	entity_id TEXT NOT NULL DEFAULT '',
	process_instance_id TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func checkpointsDDL() string {
	return `CREATE TABLE IF NOT EXISTS procview_checkpoints (
	subscriber TEXT PRIMARY KEY,
	last_position BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

// Bootstrap manages idempotent creation of tables and indexes. It caches
// which tables and indexes have been created to avoid repeated DDL.
type Bootstrap struct {
	parent  *Bootstrap
	tables  sync.Map
	indexes sync.Map
}

// New returns a Bootstrap with empty caches.
func New() *Bootstrap {
	return &Bootstrap{}
}

// Fork returns a child cache for a transaction. Lookups fall through to the
// parent; tables created in the child reach the parent only on Merge.
func (b *Bootstrap) Fork() *Bootstrap {
	return &Bootstrap{parent: b}
}

// Merge publishes the child's tables to its parent after a commit.
func (b *Bootstrap) Merge() {
	if b.parent == nil {
		return
	}
	b.tables.Range(func(k, v any) bool {
		b.parent.tables.Store(k, v)
		return true
	})
}

// IsCreated reports whether the named table has been created.
func (b *Bootstrap) IsCreated(table string) bool {
	if _, ok := b.tables.Load(table); ok {
		return true
	}
	return b.parent != nil && b.parent.IsCreated(table)
}

// InvalidateTable removes a table from the creation cache so the next
// ensure call re-runs the DDL. Used by Rebuild after dropping a table.
func (b *Bootstrap) InvalidateTable(table string) {
	b.tables.Delete(table)
	if b.parent != nil {
		b.parent.InvalidateTable(table)
	}
}

func (b *Bootstrap) ensure(ctx context.Context, exec pg.Executor, table, ddl string) error {
	if b.IsCreated(table) {
		return nil
	}
	if _, err := exec.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("schema: create table %s: %w", table, err)
	}
	b.tables.Store(table, true)
	return nil
}

// EnsureCollection creates the procview_{name} table if it doesn't exist.
func (b *Bootstrap) EnsureCollection(ctx context.Context, exec pg.Executor, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	return b.ensure(ctx, exec, TableName(name), collectionDDL(name))
}

// EnsureJournal creates the event journal table if it doesn't exist.
func (b *Bootstrap) EnsureJournal(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, JournalTable, journalDDL())
}

// EnsureCheckpoints creates the subscriber checkpoint table if it doesn't exist.
func (b *Bootstrap) EnsureCheckpoints(ctx context.Context, exec pg.Executor) error {
	return b.ensure(ctx, exec, CheckpointsTable, checkpointsDDL())
}

// EnsureIndexes creates the JSONB indexes declared on a read-model struct.
// CREATE INDEX CONCURRENTLY cannot run inside a transaction block, so this
// is a no-op for transactional executors; the pool-level call creates them.
func (b *Bootstrap) EnsureIndexes(ctx context.Context, exec pg.Executor, collection string, idx []meta.IndexMeta) error {
	if len(idx) == 0 || pg.InTransaction(exec) {
		return nil
	}
	ddls := indexes.IndexDDLs(collection, idx)
	for i, ddl := range ddls {
		name := indexes.IndexName(collection, idx[i])
		if _, ok := b.indexes.Load(name); ok {
			continue
		}
		if _, err := exec.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("schema: create index %s: %w", name, err)
		}
		b.indexes.Store(name, true)
	}
	return nil
}
