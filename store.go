package procview

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ripkitten-co/procview/internal/codecs"
	"github.com/ripkitten-co/procview/internal/pg"
	"github.com/ripkitten-co/procview/schema"
)

// Store holds the PostgreSQL connection pool shared by the journal, the
// read-model collections and the checkpoint table.
type Store struct {
	pool *pg.Pool
	be   backend
}

// New connects to PostgreSQL and returns a configured Store.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	pool, err := pg.NewPool(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("procview: %w", err)
	}

	s := &Store{
		pool: pool,
		be: backend{
			exec:   pool,
			codec:  cfg.codec,
			schema: schema.New(),
		},
	}
	return s, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) DBExecutor() pg.Executor            { return s.be.exec }
func (s *Store) JSONCodec() codecs.Codec            { return s.be.codec }
func (s *Store) SchemaBootstrap() *schema.Bootstrap { return s.be.schema }

// PgxPool returns the underlying pgxpool.Pool.
func (s *Store) PgxPool() *pgxpool.Pool { return s.pool.PgxPool() }

// SQLDB opens a database/sql handle over the pool for the bun and GORM backed
// stores. Closing it does not close the pool.
func (s *Store) SQLDB() *sql.DB {
	return stdlib.OpenDBFromPool(s.pool.PgxPool())
}
