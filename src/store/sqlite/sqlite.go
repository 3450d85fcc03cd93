// Package sqlite implements store.Store on a SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"gorm.io/gorm"
)

type Store struct {
	name string
	db   *gorm.DB
}

var _ store.Store = &Store{}

// Open opens (creating if needed) the SQLite database at path and brings its
// schema up to date.
func Open(ctx context.Context, name string, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, oops.New(err, "failed to create directory for %s", path)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 newGormLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, oops.New(err, "failed to open sqlite database %s", path)
	}

	// One connection keeps transactions from tripping over SQLite's
	// single-writer lock.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, oops.New(err, "failed to get sqlite connection")
	}
	sqlDB.SetMaxOpenConns(1)

	err = gdb.WithContext(ctx).AutoMigrate(
		&models.Guild{},
		&models.User{},
		&models.Channel{},
		&models.Message{},
		&models.Attachment{},
		&models.Reaction{},
	)
	if err != nil {
		sqlDB.Close()
		return nil, oops.New(err, "failed to migrate sqlite database %s", path)
	}

	return &Store{name: name, db: gdb}, nil
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Dialect() store.Dialect {
	return store.DialectSQLite
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&session{db: tx})
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type session struct {
	db *gorm.DB
}

// Savepoint uses gorm's nested transactions, which are savepoints.
func (s *session) Savepoint(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&session{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.NotFound
	}
	return err
}
