// Package deadletter stores the events a subscriber gave up on after every
// retry, for inspection and replay.
package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/projections"
)

// Entry is one dead-lettered event of one subscriber.
type Entry struct {
	ID         uint       `gorm:"primaryKey"`
	Subscriber string     `gorm:"not null;uniqueIndex:idx_procview_dead_letters_event"`
	EventID    string     `gorm:"not null;uniqueIndex:idx_procview_dead_letters_event"`
	EventType  string     `gorm:"not null;index"`
	Position   int64      `gorm:"not null"`
	Payload    []byte     `gorm:"not null"`
	Error      string     `gorm:"not null"`
	FailedAt   time.Time  `gorm:"not null;index"`
	ReplayedAt *time.Time
	CreatedAt  time.Time
}

func (Entry) TableName() string { return "procview_dead_letters" }

// Event decodes the stored event.
func (e *Entry) Event() (events.Event, error) {
	evt, err := events.Decode(e.Payload)
	if err != nil {
		return events.Event{}, fmt.Errorf("deadletter: entry %d: %w", e.ID, err)
	}
	evt.GlobalPosition = e.Position
	return evt, nil
}

// Open returns a GORM handle over the store's connection pool.
func Open(store *procview.Store) (*gorm.DB, error) {
	return OpenDB(store.SQLDB())
}

// OpenDB wraps an existing database/sql connection.
func OpenDB(conn *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("deadletter: open: %w", err)
	}
	return db, nil
}

// Ledger implements projections.DeadLetterSink on top of GORM.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

var _ projections.DeadLetterSink = (*Ledger)(nil)

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("deadletter: migrate: %w", err)
	}
	return nil
}

// Push records evt as dead for subscriber. Pushing the same event for the
// same subscriber again keeps the first entry.
func (l *Ledger) Push(ctx context.Context, subscriber string, evt events.Event, cause error) error {
	payload, err := events.Encode(evt)
	if err != nil {
		return fmt.Errorf("deadletter: push %s: %w", evt.ID, err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	entry := &Entry{
		Subscriber: subscriber,
		EventID:    evt.ID,
		EventType:  string(evt.Type),
		Position:   evt.GlobalPosition,
		Payload:    payload,
		Error:      msg,
		FailedAt:   l.now().UTC(),
	}
	err = l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscriber"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("deadletter: push %s: %w", evt.ID, err)
	}
	return nil
}

type ListOpts struct {
	// Subscriber filters by subscriber name. Empty means all.
	Subscriber string
	// Limit is the maximum number of entries. Zero means no limit.
	Limit  int
	Offset int
}

// List returns entries oldest first.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]Entry, error) {
	q := l.db.WithContext(ctx).Order("id")
	if opts.Subscriber != "" {
		q = q.Where("subscriber = ?", opts.Subscriber)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("deadletter: list: %w", err)
	}
	return entries, nil
}

func (l *Ledger) Get(ctx context.Context, id uint) (*Entry, error) {
	var e Entry
	err := l.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("deadletter: get %d: %w", id, procview.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("deadletter: get %d: %w", id, err)
	}
	return &e, nil
}

// Replay runs the entry's event through sub again and marks the entry
// replayed on success. sub must be the subscriber the entry belongs to.
func (l *Ledger) Replay(ctx context.Context, id uint, sub projections.Subscriber) error {
	e, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Subscriber != sub.Name() {
		return fmt.Errorf("deadletter: replay %d: belongs to %s, not %s: %w", id, e.Subscriber, sub.Name(), procview.ErrValidation)
	}
	evt, err := e.Event()
	if err != nil {
		return err
	}
	if err := sub.Process(ctx, []events.Event{evt}); err != nil {
		return fmt.Errorf("deadletter: replay %d: %w", id, err)
	}

	now := l.now().UTC()
	if err := l.db.WithContext(ctx).Model(e).Update("replayed_at", now).Error; err != nil {
		return fmt.Errorf("deadletter: mark replayed %d: %w", id, err)
	}
	e.ReplayedAt = &now
	return nil
}

func (l *Ledger) Delete(ctx context.Context, id uint) error {
	res := l.db.WithContext(ctx).Delete(&Entry{}, id)
	if res.Error != nil {
		return fmt.Errorf("deadletter: delete %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deadletter: delete %d: %w", id, procview.ErrNotFound)
	}
	return nil
}

// Purge removes entries that failed before the given time and returns how
// many were removed.
func (l *Ledger) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("failed_at < ?", before).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("deadletter: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}
