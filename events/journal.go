package events

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Journal is the append-only PostgreSQL log events travel through. Producers
// append; subscribers read in global_position order from their checkpoint.
type Journal struct {
	exec   pg.Executor
	schema *schema.Bootstrap
}

// NewJournal creates a journal using the given backend's executor and schema.
func NewJournal(b procview.Backend) *Journal {
	return &Journal{
		exec:   b.DBExecutor(),
		schema: b.SchemaBootstrap(),
	}
}

// Append writes events to the journal. Event ids are unique: an event that
// is already journaled is skipped, which makes redelivery from a producer
// and re-emission of derived events harmless. Returns how many were new.
//
// Appends hold a transaction-scoped advisory lock, so positions become
// visible in the order they were allocated and a subscriber never reads past
// a position that is still uncommitted. Inside a session the lock is held
// until the session ends.
func (j *Journal) Append(ctx context.Context, evts ...Event) (int, error) {
	if len(evts) == 0 {
		return 0, nil
	}
	if err := j.schema.EnsureJournal(ctx, j.exec); err != nil {
		return 0, err
	}

	b, ok := j.exec.(beginner)
	if pg.InTransaction(j.exec) || !ok {
		return appendLocked(ctx, j.exec, evts)
	}
	var n int
	err := pgx.BeginFunc(ctx, b, func(tx pgx.Tx) error {
		var err error
		n, err = appendLocked(ctx, tx, evts)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// appendLocked must run inside a transaction.
func appendLocked(ctx context.Context, exec pg.Executor, evts []Event) (int, error) {
	builder := psql.Insert(schema.JournalTable).
		Columns("id", "type", "entity_id", "process_instance_id", "occurred_at", "data")

	for _, evt := range evts {
		data, err := Encode(evt)
		if err != nil {
			return 0, fmt.Errorf("journal: append: %w", err)
		}
		builder = builder.Values(evt.ID, string(evt.Type), evt.EntityID, evt.Process.ProcessInstanceID, evt.Timestamp, data)
	}

	sql, args, err := builder.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("journal: append: build sql: %w", err)
	}

	if _, err := exec.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1), 0)", schema.JournalTable); err != nil {
		return 0, fmt.Errorf("journal: append: lock: %w", err)
	}

	tag, err := exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}

	// delivered on commit to subscribers waiting on LISTEN
	if _, err := exec.Exec(ctx, "SELECT pg_notify($1, '')", schema.JournalChannel); err != nil {
		return 0, fmt.Errorf("journal: append: notify: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// AppendRaw decodes wire-form events and appends them. Malformed events are
// rejected before anything is written.
func (j *Journal) AppendRaw(ctx context.Context, raws ...[]byte) (int, error) {
	evts := make([]Event, 0, len(raws))
	for _, raw := range raws {
		evt, err := Decode(raw)
		if err != nil {
			return 0, fmt.Errorf("journal: append raw: %w", err)
		}
		evts = append(evts, evt)
	}
	return j.Append(ctx, evts...)
}

// ReadAll returns events after afterPosition in journal order, up to limit.
func (j *Journal) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	if err := j.schema.EnsureJournal(ctx, j.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.
		Select("global_position", "data").
		From(schema.JournalTable).
		Where(sq.Gt{"global_position": afterPosition}).
		OrderBy("global_position ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("journal: read all: build sql: %w", err)
	}

	rows, err := j.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: read all: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var pos int64
		var data []byte
		if err := rows.Scan(&pos, &data); err != nil {
			return nil, fmt.Errorf("journal: read all: scan: %w", err)
		}
		evt, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("journal: read all: position %d: %w", pos, err)
		}
		evt.GlobalPosition = pos
		result = append(result, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: read all: %w", err)
	}

	return result, nil
}

// Load returns a single journaled event by id.
func (j *Journal) Load(ctx context.Context, id string) (Event, error) {
	if err := j.schema.EnsureJournal(ctx, j.exec); err != nil {
		return Event{}, err
	}

	var pos int64
	var data []byte
	err := j.exec.QueryRow(ctx,
		"SELECT global_position, data FROM "+schema.JournalTable+" WHERE id = $1", id,
	).Scan(&pos, &data)
	if err != nil {
		return Event{}, fmt.Errorf("journal: load %s: %w", id, notFound(err))
	}
	evt, err := Decode(data)
	if err != nil {
		return Event{}, fmt.Errorf("journal: load %s: %w", id, err)
	}
	evt.GlobalPosition = pos
	return evt, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return procview.ErrNotFound
	}
	return err
}
