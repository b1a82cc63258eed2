package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

type groupRow struct {
	ID        string `gorm:"primaryKey"`
	Data      []byte `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (groupRow) TableName() string { return "procview_message_groups" }

type instanceRow struct {
	ProcessInstanceID string `gorm:"primaryKey"`
	GroupID           string `gorm:"primaryKey;index"`
}

func (instanceRow) TableName() string { return "procview_message_instances" }

type appliedRow struct {
	GroupID   string    `gorm:"primaryKey"`
	CauseID   string    `gorm:"primaryKey"`
	Events    []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (appliedRow) TableName() string { return "procview_message_applied" }

// PostgresStore keeps groups in PostgreSQL through GORM. Each update holds
// a row lock on its group for the length of one transaction.
type PostgresStore struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

var _ GroupStore = (*PostgresStore)(nil)

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, retention: DefaultAppliedRetention, now: time.Now}
}

// SetAppliedRetention sets how long applied-event records are kept.
func (s *PostgresStore) SetAppliedRetention(d time.Duration) {
	s.retention = d
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&groupRow{}, &instanceRow{}, &appliedRow{}); err != nil {
		return fmt.Errorf("messages/postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Group, error) {
	var row groupRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("messages: group %s: %w", id, procview.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("messages/postgres: load %s: %w", id, err)
	}
	return decodeGroup(id, row.Data)
}

func (s *PostgresStore) Update(ctx context.Context, id, causeID string, fn UpdateFunc) ([]events.Event, error) {
	var out []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lock(tx, id)
		if err != nil {
			return err
		}
		g, err := decodeGroup(id, row.Data)
		if err != nil {
			return err
		}

		var applied appliedRow
		res := tx.Where("group_id = ? AND cause_id = ?", id, causeID).Limit(1).Find(&applied)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if out, err = decodeEvents(applied.Events); err != nil {
				return err
			}
			if g.Empty() {
				return tx.Delete(&groupRow{ID: id}).Error
			}
			return nil
		}

		before := g.processInstances()
		evts, err := fn(g)
		if err != nil {
			return err
		}

		if g.Empty() {
			err = tx.Delete(&groupRow{ID: id}).Error
		} else {
			var data []byte
			if data, err = encodeGroup(g); err != nil {
				return err
			}
			err = tx.Save(&groupRow{ID: id, Data: data, UpdatedAt: s.now()}).Error
		}
		if err != nil {
			return err
		}

		add, remove := indexDiff(before, g.processInstances())
		if len(add) > 0 {
			rows := make([]instanceRow, 0, len(add))
			for _, pid := range add {
				rows = append(rows, instanceRow{ProcessInstanceID: pid, GroupID: id})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if err := tx.Where("group_id = ? AND process_instance_id IN ?", id, remove).Delete(&instanceRow{}).Error; err != nil {
				return err
			}
		}

		record, err := encodeEvents(evts)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.Create(&appliedRow{GroupID: id, CauseID: causeID, Events: record, CreatedAt: now}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ? AND created_at < ?", id, now.Add(-s.retention)).Delete(&appliedRow{}).Error; err != nil {
			return err
		}
		out = evts
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("messages/postgres: update %s: %w", id, err)
	}
	return out, nil
}

// maxLockAttempts bounds how often lock starts over after the group it was
// waiting for was deleted by the update holding it.
const maxLockAttempts = 16

// lock makes sure group id has a row and locks it for the rest of tx.
func (s *PostgresStore) lock(tx *gorm.DB, id string) (*groupRow, error) {
	var err error
	for range maxLockAttempts {
		err = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&groupRow{ID: id, Data: []byte("{}"), UpdatedAt: s.now()}).Error
		if err != nil {
			return nil, err
		}
		var row groupRow
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("lock group %s: %w", id, err)
}

func (s *PostgresStore) GroupsOf(ctx context.Context, pid string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&instanceRow{}).
		Where("process_instance_id = ?", pid).
		Order("group_id").
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("messages/postgres: groups of %s: %w", pid, err)
	}
	return ids, nil
}
