// Package backends registers the concrete store implementations under the
// names the commands accept.
package backends

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/store/postgres"
	"github.com/wumpus-archiver/archiver/src/store/sqlite"
)

const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// NewRegistry registers the SQLite store, plus the Postgres store when a DSN
// is configured.
func NewRegistry(cfg config.StorageConfig) *store.Registry {
	reg := store.NewRegistry()
	reg.Register(SQLite, func(ctx context.Context, name string) (store.Store, error) {
		return sqlite.Open(ctx, name, cfg.SQLitePath)
	})
	if cfg.Postgres.DSN != "" {
		reg.Register(Postgres, func(ctx context.Context, name string) (store.Store, error) {
			return postgres.Open(ctx, name, cfg.Postgres)
		})
	}
	return reg
}
