package projections

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/schema"
)

// Checkpoint statuses.
const (
	StatusRunning    = "running"
	StatusRebuilding = "rebuilding"
	StatusStopped    = "stopped"
	StatusDeadLetter = "dead_letter"
)

// CheckpointStore tracks the last processed journal position per subscriber.
type CheckpointStore struct {
	exec   pg.Executor
	schema *schema.Bootstrap
}

func NewCheckpointStore(b procview.Backend) *CheckpointStore {
	return &CheckpointStore{
		exec:   b.DBExecutor(),
		schema: b.SchemaBootstrap(),
	}
}

func (cs *CheckpointStore) ensure(ctx context.Context) error {
	return cs.schema.EnsureCheckpoints(ctx, cs.exec)
}

// Load returns the last processed position and status for the subscriber.
// A subscriber without a checkpoint starts at 0 and is running.
func (cs *CheckpointStore) Load(ctx context.Context, name string) (int64, string, error) {
	if err := cs.ensure(ctx); err != nil {
		return 0, "", fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	var position int64
	var status string
	err := cs.exec.QueryRow(ctx,
		`SELECT last_position, status FROM `+schema.CheckpointsTable+` WHERE subscriber = $1`,
		name,
	).Scan(&position, &status)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, StatusRunning, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("checkpoint %s: load: %w", name, err)
	}
	return position, status, nil
}

// Save moves the subscriber's position.
func (cs *CheckpointStore) Save(ctx context.Context, name string, position int64) error {
	if err := cs.ensure(ctx); err != nil {
		return fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	_, err := cs.exec.Exec(ctx,
		`INSERT INTO `+schema.CheckpointsTable+` (subscriber, last_position, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (subscriber) DO UPDATE SET last_position = $2, updated_at = now()`,
		name, position,
	)
	if err != nil {
		return fmt.Errorf("checkpoint %s: save: %w", name, err)
	}
	return nil
}

func (cs *CheckpointStore) SetStatus(ctx context.Context, name string, status string) error {
	if err := cs.ensure(ctx); err != nil {
		return fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	_, err := cs.exec.Exec(ctx,
		`INSERT INTO `+schema.CheckpointsTable+` (subscriber, last_position, status, updated_at)
		 VALUES ($1, 0, $2, now())
		 ON CONFLICT (subscriber) DO UPDATE SET status = $2, updated_at = now()`,
		name, status,
	)
	if err != nil {
		return fmt.Errorf("checkpoint %s: set status: %w", name, err)
	}
	return nil
}

// Reset moves the subscriber back to position 0 with status rebuilding.
func (cs *CheckpointStore) Reset(ctx context.Context, name string) error {
	if err := cs.ensure(ctx); err != nil {
		return fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	_, err := cs.exec.Exec(ctx,
		`INSERT INTO `+schema.CheckpointsTable+` (subscriber, last_position, status, updated_at)
		 VALUES ($1, 0, $2, now())
		 ON CONFLICT (subscriber) DO UPDATE SET last_position = 0, status = $2, updated_at = now()`,
		name, StatusRebuilding,
	)
	if err != nil {
		return fmt.Errorf("checkpoint %s: reset: %w", name, err)
	}
	return nil
}
