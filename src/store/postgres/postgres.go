// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/migration"
	"github.com/wumpus-archiver/archiver/src/migration/types"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
)

type Store struct {
	name string
	pool *pgxpool.Pool
}

var _ store.Store = &Store{}

// Open connects to Postgres and migrates the schema to the latest version.
func Open(ctx context.Context, name string, cfg config.PostgresConfig) (*Store, error) {
	pool, err := db.NewConnPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migration.Migrate(ctx, pool, types.MigrationVersion{}); err != nil {
		pool.Close()
		return nil, oops.New(err, "failed to migrate archive database")
	}
	return &Store{name: name, pool: pool}, nil
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Dialect() store.Dialect {
	return store.DialectPostgres
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return inTx(ctx, s.pool, fn)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for maintenance commands.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func inTx(ctx context.Context, conn db.ConnOrTx, fn func(tx store.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(&session{conn: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

type session struct {
	conn db.ConnOrTx
}

// Savepoint relies on pgx turning Begin on a transaction into a savepoint.
func (s *session) Savepoint(ctx context.Context, fn func(tx store.Tx) error) error {
	return inTx(ctx, s.conn, fn)
}

func notFound(err error) error {
	if errors.Is(err, db.NotFound) {
		return store.NotFound
	}
	return err
}
