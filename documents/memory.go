package documents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/internal/codecs"
	"github.com/ripkitten-co/procview/internal/meta"
)

type memDoc struct {
	id      string
	data    []byte
	version int
	seq     uint64
}

// MemoryBackend is implemented by MemoryStore and MemoryTx.
type MemoryBackend interface {
	get(collection, id string) (memDoc, bool)
	put(collection, id string, d memDoc)
	del(collection, id string)
	scan(collection string) []memDoc
	nextSeq() uint64
	jsonCodec() codecs.Codec
}

// MemoryStore keeps documents in process memory. It backs handler tests and
// single-node runs without PostgreSQL.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]map[string]memDoc
	seq   uint64
	codec codecs.Codec
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]map[string]memDoc),
		codec: codecs.NewJSONIter(),
	}
}

func (s *MemoryStore) get(collection, id string) (memDoc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[collection][id]
	return d, ok
}

func (s *MemoryStore) put(collection, id string, d memDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(collection, id, d)
}

func (s *MemoryStore) putLocked(collection, id string, d memDoc) {
	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string]memDoc)
		s.data[collection] = docs
	}
	docs[id] = d
}

func (s *MemoryStore) del(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
}

func (s *MemoryStore) scan(collection string) []memDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memDoc, 0, len(s.data[collection]))
	for _, d := range s.data[collection] {
		out = append(out, d)
	}
	return out
}

func (s *MemoryStore) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *MemoryStore) jsonCodec() codecs.Codec { return s.codec }

// Begin starts a transaction whose writes stay private until Commit.
func (s *MemoryStore) Begin() *MemoryTx {
	return &MemoryTx{
		store:   s,
		writes:  make(map[string]map[string]memDoc),
		deletes: make(map[string]map[string]bool),
	}
}

// MemoryTx buffers writes over a MemoryStore.
type MemoryTx struct {
	store   *MemoryStore
	writes  map[string]map[string]memDoc
	deletes map[string]map[string]bool
	done    bool
}

func (t *MemoryTx) get(collection, id string) (memDoc, bool) {
	if t.deletes[collection][id] {
		return memDoc{}, false
	}
	if d, ok := t.writes[collection][id]; ok {
		return d, true
	}
	return t.store.get(collection, id)
}

func (t *MemoryTx) put(collection, id string, d memDoc) {
	if t.writes[collection] == nil {
		t.writes[collection] = make(map[string]memDoc)
	}
	t.writes[collection][id] = d
	delete(t.deletes[collection], id)
}

func (t *MemoryTx) del(collection, id string) {
	if t.deletes[collection] == nil {
		t.deletes[collection] = make(map[string]bool)
	}
	t.deletes[collection][id] = true
	delete(t.writes[collection], id)
}

func (t *MemoryTx) scan(collection string) []memDoc {
	base := make(map[string]memDoc)
	t.store.mu.RLock()
	for id, d := range t.store.data[collection] {
		base[id] = d
	}
	t.store.mu.RUnlock()
	for id := range t.deletes[collection] {
		delete(base, id)
	}
	for id, d := range t.writes[collection] {
		base[id] = d
	}
	out := make([]memDoc, 0, len(base))
	for _, d := range base {
		out = append(out, d)
	}
	return out
}

func (t *MemoryTx) nextSeq() uint64         { return t.store.nextSeq() }
func (t *MemoryTx) jsonCodec() codecs.Codec { return t.store.codec }

// Commit applies buffered writes. Documents changed by someone else since
// they were read are reported as ErrConcurrencyConflict and nothing is applied.
func (t *MemoryTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("documents: memory transaction already closed")
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for collection, docs := range t.writes {
		for id, d := range docs {
			cur, ok := t.store.data[collection][id]
			if ok && cur.version >= d.version {
				return fmt.Errorf("documents: commit %s/%s: %w", collection, id, procview.ErrConcurrencyConflict)
			}
		}
	}
	for collection, ids := range t.deletes {
		for id := range ids {
			delete(t.store.data[collection], id)
		}
	}
	for collection, docs := range t.writes {
		for id, d := range docs {
			t.store.putLocked(collection, id, d)
		}
	}
	return nil
}

// Rollback discards buffered writes. Safe to call after Commit.
func (t *MemoryTx) Rollback(_ context.Context) error {
	t.done = true
	return nil
}

// MemoryCollectionOf is the in-memory Repository implementation.
type MemoryCollectionOf[T any] struct {
	name string
	b    MemoryBackend
}

func MemoryCollection[T any](b MemoryBackend, name string) *MemoryCollectionOf[T] {
	return &MemoryCollectionOf[T]{name: name, b: b}
}

func (c *MemoryCollectionOf[T]) Load(_ context.Context, id string) (*T, error) {
	d, ok := c.b.get(c.name, id)
	if !ok {
		return nil, fmt.Errorf("collection %s: load %s: %w", c.name, id, procview.ErrNotFound)
	}
	return c.decode(d)
}

func (c *MemoryCollectionOf[T]) decode(d memDoc) (*T, error) {
	var doc T
	if err := c.b.jsonCodec().Unmarshal(d.data, &doc); err != nil {
		return nil, fmt.Errorf("collection %s: unmarshal: %w", c.name, err)
	}
	meta.SetVersion(&doc, d.version)
	return &doc, nil
}

func (c *MemoryCollectionOf[T]) Exists(_ context.Context, id string) (bool, error) {
	_, ok := c.b.get(c.name, id)
	return ok, nil
}

func (c *MemoryCollectionOf[T]) Insert(_ context.Context, doc *T) error {
	id, err := meta.ExtractID(doc)
	if err != nil {
		return fmt.Errorf("collection %s: %w", c.name, err)
	}
	if _, ok := c.b.get(c.name, id); ok {
		return fmt.Errorf("collection %s: insert %s: %w", c.name, id, procview.ErrDuplicateID)
	}
	data, err := c.b.jsonCodec().Marshal(doc)
	if err != nil {
		return fmt.Errorf("collection %s: insert %s: marshal: %w", c.name, id, err)
	}
	c.b.put(c.name, id, memDoc{id: id, data: data, version: 1, seq: c.b.nextSeq()})
	meta.SetVersion(doc, 1)
	return nil
}

func (c *MemoryCollectionOf[T]) Update(_ context.Context, doc *T) error {
	id, err := meta.ExtractID(doc)
	if err != nil {
		return fmt.Errorf("collection %s: update: %w", c.name, err)
	}
	cur, ok := c.b.get(c.name, id)
	if !ok {
		return fmt.Errorf("collection %s: update %s: %w", c.name, id, procview.ErrNotFound)
	}
	version, hasVersion := meta.ExtractVersion(doc)
	if hasVersion && version != cur.version {
		return fmt.Errorf("collection %s: update %s: %w", c.name, id, procview.ErrConcurrencyConflict)
	}
	data, err := c.b.jsonCodec().Marshal(doc)
	if err != nil {
		return fmt.Errorf("collection %s: update %s: marshal: %w", c.name, id, err)
	}
	c.b.put(c.name, id, memDoc{id: id, data: data, version: cur.version + 1, seq: cur.seq})
	meta.SetVersion(doc, cur.version+1)
	return nil
}

func (c *MemoryCollectionOf[T]) Upsert(ctx context.Context, doc *T) error {
	if v, ok := meta.ExtractVersion(doc); ok && v > 0 {
		return c.Update(ctx, doc)
	}
	return c.Insert(ctx, doc)
}

func (c *MemoryCollectionOf[T]) Delete(_ context.Context, id string) error {
	if _, ok := c.b.get(c.name, id); !ok {
		return fmt.Errorf("collection %s: delete %s: %w", c.name, id, procview.ErrNotFound)
	}
	c.b.del(c.name, id)
	return nil
}

func (c *MemoryCollectionOf[T]) DeleteAll(_ context.Context) error {
	for _, d := range c.b.scan(c.name) {
		c.b.del(c.name, d.id)
	}
	return nil
}

// Find supports = and != on top-level fields, compared as text the way
// PostgreSQL's ->> operator does.
func (c *MemoryCollectionOf[T]) Find(_ context.Context, filters ...Filter) ([]*T, error) {
	for _, f := range filters {
		if f.Op != "=" && f.Op != "!=" {
			return nil, fmt.Errorf("collection %s: find: unsupported operator %q", c.name, f.Op)
		}
	}

	docs := c.b.scan(c.name)
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	var out []*T
	for _, d := range docs {
		var fields map[string]any
		if err := c.b.jsonCodec().Unmarshal(d.data, &fields); err != nil {
			return nil, fmt.Errorf("collection %s: find: unmarshal: %w", c.name, err)
		}
		if !matches(fields, filters) {
			continue
		}
		doc, err := c.decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func matches(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		equal := ok && v != nil && fmt.Sprint(v) == fmt.Sprint(f.Value)
		if f.Op == "=" && !equal {
			return false
		}
		if f.Op == "!=" && (equal || !ok || v == nil) {
			return false
		}
	}
	return true
}
