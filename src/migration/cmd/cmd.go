package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/cli"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/migration"
	"github.com/wumpus-archiver/archiver/src/migration/types"
)

func init() {
	var listMigrations bool
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run Postgres schema migrations",
		Long:  "Migrate the Postgres archive to the given version, or to the latest one. The SQLite store manages its own schema.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config.Storage.Postgres
			if cfg.DSN == "" {
				return errors.New("no Postgres DSN configured (set DATABASE_URL)")
			}

			ctx := context.Background()
			conn, err := db.NewConn(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)

			if listMigrations {
				return migration.ListMigrations(ctx, conn, os.Stdout)
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					return fmt.Errorf("bad version string: %w", err)
				}
			}
			return migration.Migrate(ctx, conn, types.MigrationVersion(targetVersion))
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")
	cli.RootCommand.AddCommand(migrateCommand)
}
