package messages

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/events"
)

// MemoryStore is a GroupStore for tests and single-process use.
type MemoryStore struct {
	mu      sync.Mutex
	groups  map[string][]byte
	index   map[string][]string
	applied map[string][]byte
}

var _ GroupStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:  make(map[string][]byte),
		index:   make(map[string][]string),
		applied: make(map[string][]byte),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("messages: group %s: %w", id, procview.ErrNotFound)
	}
	return decodeGroup(id, data)
}

func (s *MemoryStore) Update(_ context.Context, id, causeID string, fn UpdateFunc) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark := id + "\x00" + causeID
	if data, ok := s.applied[mark]; ok {
		return decodeEvents(data)
	}

	g := &Group{ID: id}
	if data, ok := s.groups[id]; ok {
		var err error
		if g, err = decodeGroup(id, data); err != nil {
			return nil, err
		}
	}
	before := g.processInstances()

	out, err := fn(g)
	if err != nil {
		return nil, err
	}

	if g.Empty() {
		delete(s.groups, id)
	} else {
		data, err := encodeGroup(g)
		if err != nil {
			return nil, err
		}
		s.groups[id] = data
	}

	add, remove := indexDiff(before, g.processInstances())
	for _, pid := range add {
		s.index[pid] = append(s.index[pid], id)
	}
	for _, pid := range remove {
		s.index[pid] = slices.DeleteFunc(s.index[pid], func(g string) bool { return g == id })
		if len(s.index[pid]) == 0 {
			delete(s.index, pid)
		}
	}

	applied, err := encodeEvents(out)
	if err != nil {
		return nil, err
	}
	s.applied[mark] = applied
	return out, nil
}

func (s *MemoryStore) GroupsOf(_ context.Context, pid string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.index[pid]), nil
}

// Len returns the number of live groups.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}
