package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/schema"
)

// Poller reads batches from the journal and waits on LISTEN/NOTIFY for
// low-latency wakeups.
type Poller struct {
	journal   *events.Journal
	pool      *pgxpool.Pool
	batchSize int
}

// NewPoller creates a poller that reads up to batchSize events per poll.
func NewPoller(store *procview.Store, batchSize int) *Poller {
	return &Poller{
		journal:   events.NewJournal(store),
		pool:      store.PgxPool(),
		batchSize: batchSize,
	}
}

// Poll returns events with global_position greater than afterPosition.
func (p *Poller) Poll(ctx context.Context, afterPosition int64) ([]events.Event, error) {
	return p.journal.ReadAll(ctx, afterPosition, p.batchSize)
}

// Listen holds a connection LISTENing on the journal channel and calls notify
// for every notification until ctx is cancelled or the connection fails.
func (p *Poller) Listen(ctx context.Context, notify func()) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("poller: acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+schema.JournalChannel); err != nil {
		return fmt.Errorf("poller: listen: %w", err)
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poller: wait: %w", err)
		}
		notify()
	}
}
