// Package documents stores read-model entities as JSONB documents keyed by
// their domain id. Every document carries an optimistic version; writers on
// the same id are serialised by the version check rather than by locks.
package documents

import "context"

// Repository is the entity store seen by projection handlers. CollectionOf
// implements it on PostgreSQL and MemoryCollectionOf in memory.
type Repository[T any] interface {
	Load(ctx context.Context, id string) (*T, error)
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, doc *T) error
	Update(ctx context.Context, doc *T) error
	Upsert(ctx context.Context, doc *T) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, filters ...Filter) ([]*T, error)
	// DeleteAll empties the collection. Intended for test teardown.
	DeleteAll(ctx context.Context) error
}

// Filter is a single predicate on a top-level document field.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "=", Value: value}
}
