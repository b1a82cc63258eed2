package documents

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/internal/codecs"
	"github.com/ripkitten-co/procview/internal/meta"
	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type CollectionOf[T any] struct {
	name    string
	table   string
	exec    pg.Executor
	codec   codecs.Codec
	schema  *schema.Bootstrap
	indexes []meta.IndexMeta
}

func Collection[T any](b procview.Backend, name string) *CollectionOf[T] {
	return &CollectionOf[T]{
		name:    name,
		table:   schema.TableName(name),
		exec:    b.DBExecutor(),
		codec:   b.JSONCodec(),
		schema:  b.SchemaBootstrap(),
		indexes: meta.Analyze[T]().Indexes,
	}
}

func (c *CollectionOf[T]) ensure(ctx context.Context) error {
	if err := c.schema.EnsureCollection(ctx, c.exec, c.name); err != nil {
		return err
	}
	return c.schema.EnsureIndexes(ctx, c.exec, c.name, c.indexes)
}

func (c *CollectionOf[T]) Insert(ctx context.Context, doc *T) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}

	id, err := meta.ExtractID(doc)
	if err != nil {
		return fmt.Errorf("collection %s: %w", c.name, err)
	}

	data, err := c.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("collection %s: insert %s: marshal: %w", c.name, id, err)
	}

	sql, args, err := psql.Insert(c.table).Columns("id", "data").Values(id, data).ToSql()
	if err != nil {
		return fmt.Errorf("collection %s: insert %s: build sql: %w", c.name, id, err)
	}

	_, err = c.exec.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("collection %s: insert %s: %w", c.name, id, procview.ErrDuplicateID)
		}
		return fmt.Errorf("collection %s: insert %s: %w", c.name, id, err)
	}

	meta.SetVersion(doc, 1)
	return nil
}

func (c *CollectionOf[T]) Update(ctx context.Context, doc *T) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}

	id, err := meta.ExtractID(doc)
	if err != nil {
		return fmt.Errorf("collection %s: update: %w", c.name, err)
	}

	currentVersion, hasVersion := meta.ExtractVersion(doc)
	data, err := c.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("collection %s: update %s: marshal: %w", c.name, id, err)
	}

	newVersion := currentVersion + 1
	builder := psql.Update(c.table).
		Set("data", data).
		Set("version", newVersion).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id})

	if hasVersion {
		builder = builder.Where(sq.Eq{"version": currentVersion})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("collection %s: update %s: build sql: %w", c.name, id, err)
	}

	tag, err := c.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("collection %s: update %s: %w", c.name, id, err)
	}

	if tag.RowsAffected() == 0 {
		if hasVersion {
			return fmt.Errorf("collection %s: update %s: %w", c.name, id, procview.ErrConcurrencyConflict)
		}
		return fmt.Errorf("collection %s: update %s: %w", c.name, id, procview.ErrNotFound)
	}

	meta.SetVersion(doc, newVersion)
	return nil
}

// Upsert inserts a document that was never loaded (version 0) and updates
// one that was, keeping the optimistic version check. An insert racing with
// another writer on the same id surfaces as ErrConcurrencyConflict so the
// event can be redelivered and re-applied on top of the winner.
func (c *CollectionOf[T]) Upsert(ctx context.Context, doc *T) error {
	if v, ok := meta.ExtractVersion(doc); ok && v > 0 {
		return c.Update(ctx, doc)
	}
	err := c.Insert(ctx, doc)
	if errors.Is(err, procview.ErrDuplicateID) {
		id, _ := meta.ExtractID(doc)
		return fmt.Errorf("collection %s: upsert %s: %w", c.name, id, procview.ErrConcurrencyConflict)
	}
	return err
}

func (c *CollectionOf[T]) Delete(ctx context.Context, id string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}

	query, args, err := psql.Delete(c.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("collection %s: delete %s: build sql: %w", c.name, id, err)
	}

	tag, err := c.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("collection %s: delete %s: %w", c.name, id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %s: delete %s: %w", c.name, id, procview.ErrNotFound)
	}
	return nil
}

func (c *CollectionOf[T]) DeleteAll(ctx context.Context) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	if _, err := c.exec.Exec(ctx, "DELETE FROM "+c.table); err != nil {
		return fmt.Errorf("collection %s: delete all: %w", c.name, err)
	}
	return nil
}

func (c *CollectionOf[T]) Load(ctx context.Context, id string) (*T, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	sql, args, err := psql.Select("data", "version").From(c.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("collection %s: load %s: build sql: %w", c.name, id, err)
	}

	var data []byte
	var version int
	err = c.exec.QueryRow(ctx, sql, args...).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("collection %s: load %s: %w", c.name, id, procview.ErrNotFound)
		}
		return nil, fmt.Errorf("collection %s: load %s: %w", c.name, id, err)
	}

	var doc T
	if err := c.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("collection %s: load %s: unmarshal: %w", c.name, id, err)
	}

	meta.SetVersion(&doc, version)
	return &doc, nil
}

func (c *CollectionOf[T]) Exists(ctx context.Context, id string) (bool, error) {
	if err := c.ensure(ctx); err != nil {
		return false, err
	}

	var exists bool
	err := c.exec.QueryRow(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", c.table), id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("collection %s: exists %s: %w", c.name, id, err)
	}
	return exists, nil
}

func (c *CollectionOf[T]) Find(ctx context.Context, filters ...Filter) ([]*T, error) {
	q := c.Query()
	for _, f := range filters {
		q = q.Where(f.Field, f.Op, f.Value)
	}
	return q.OrderBy("created_at", Asc).Execute(ctx)
}
