package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/ripkitten-co/procview"
)

// Open returns a bun handle over the store's connection pool.
func Open(store *procview.Store) *bun.DB {
	return bun.NewDB(store.SQLDB(), pgdialect.New())
}

// Store reads and appends audit records through a bun.DB or bun.Tx.
type Store struct {
	db bun.IDB
}

func New(db bun.IDB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table and its lookup index.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("audit: create table: %w", err)
	}
	_, err = s.db.NewCreateIndex().
		Model((*Record)(nil)).
		Index("idx_procview_audit_events_process").
		Column("process_instance_id", "timestamp").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("audit: create index: %w", err)
	}
	return nil
}

// Append inserts records. A record whose event id is already audited is
// left untouched.
func (s *Store) Append(ctx context.Context, recs ...*Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().
		Model(&recs).
		On("CONFLICT (id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", recs[0].ID, err)
	}
	return nil
}

// Load returns the record of one event.
func (s *Store) Load(ctx context.Context, eventID string) (*Record, error) {
	r := new(Record)
	err := s.db.NewSelect().Model(r).Where("r.id = ?", eventID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit: load %s: %w", eventID, procview.ErrNotFound)
		}
		return nil, fmt.Errorf("audit: load %s: %w", eventID, err)
	}
	return r, nil
}

// ByProcessInstance lists the trail of one process instance, oldest first.
func (s *Store) ByProcessInstance(ctx context.Context, processInstanceID string) ([]Record, error) {
	var recs []Record
	err := s.db.NewSelect().
		Model(&recs).
		Where("r.process_instance_id = ?", processInstanceID).
		Order("r.timestamp ASC", "r.sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list %s: %w", processInstanceID, err)
	}
	return recs, nil
}

// Reset removes every record.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.NewTruncateTable().Model((*Record)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("audit: reset: %w", err)
	}
	return nil
}
