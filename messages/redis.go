package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

const keyPrefix = "procview:msg:"

// groupKey holds a group's JSON: procview:msg:group:{id}
func groupKey(id string) string { return keyPrefix + "group:" + id }

// instanceKey is the Set of group ids a process instance waits in.
func instanceKey(pid string) string { return keyPrefix + "instance:" + pid }

// appliedKey records the outcome of one event on one group.
func appliedKey(id, causeID string) string { return keyPrefix + "applied:" + id + ":" + causeID }

// DefaultAppliedRetention is how long applied-event records are kept.
const DefaultAppliedRetention = 24 * time.Hour

const maxUpdateAttempts = 16

// RedisStore keeps groups in Redis. Updates use optimistic WATCH/MULTI
// transactions on the group key.
type RedisStore struct {
	client    goredis.UniversalClient
	retention time.Duration
}

var _ GroupStore = (*RedisStore)(nil)

func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, retention: DefaultAppliedRetention}
}

// SetAppliedRetention sets the expiry of applied-event records.
func (s *RedisStore) SetAppliedRetention(d time.Duration) {
	s.retention = d
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Group, error) {
	data, err := s.client.Get(ctx, groupKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("messages: group %s: %w", id, procview.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("messages/redis: load %s: %w", id, err)
	}
	return decodeGroup(id, data)
}

func (s *RedisStore) Update(ctx context.Context, id, causeID string, fn UpdateFunc) ([]events.Event, error) {
	gk, ak := groupKey(id), appliedKey(id, causeID)

	var out []events.Event
	txf := func(tx *goredis.Tx) error {
		applied, err := tx.Get(ctx, ak).Bytes()
		switch {
		case err == nil:
			out, err = decodeEvents(applied)
			return err
		case !errors.Is(err, goredis.Nil):
			return err
		}

		g := &Group{ID: id}
		data, err := tx.Get(ctx, gk).Bytes()
		switch {
		case err == nil:
			if g, err = decodeGroup(id, data); err != nil {
				return err
			}
		case !errors.Is(err, goredis.Nil):
			return err
		}
		before := g.processInstances()

		evts, err := fn(g)
		if err != nil {
			return err
		}
		record, err := encodeEvents(evts)
		if err != nil {
			return err
		}
		var encoded []byte
		if !g.Empty() {
			if encoded, err = encodeGroup(g); err != nil {
				return err
			}
		}
		add, remove := indexDiff(before, g.processInstances())

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if encoded == nil {
				pipe.Del(ctx, gk)
			} else {
				pipe.Set(ctx, gk, encoded, 0)
			}
			for _, pid := range add {
				pipe.SAdd(ctx, instanceKey(pid), id)
			}
			for _, pid := range remove {
				pipe.SRem(ctx, instanceKey(pid), id)
			}
			pipe.Set(ctx, ak, record, s.retention)
			return nil
		})
		if err == nil {
			out = evts
		}
		return err
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, gk, ak)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("messages/redis: update %s: %w", id, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("messages/redis: update %s: %w", id, procview.ErrConcurrencyConflict)
}

func (s *RedisStore) GroupsOf(ctx context.Context, pid string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, instanceKey(pid)).Result()
	if err != nil {
		return nil, fmt.Errorf("messages/redis: groups of %s: %w", pid, err)
	}
	return ids, nil
}
