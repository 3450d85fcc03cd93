package migration

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/migration/migrations"
	"github.com/wumpus-archiver/archiver/src/migration/types"
	"github.com/wumpus-archiver/archiver/src/oops"
)

func getSortedMigrationVersions() []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range migrations.All {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

// LatestVersion is the version of the newest registered migration.
func LatestVersion() types.MigrationVersion {
	all := getSortedMigrationVersions()
	return all[len(all)-1]
}

func ensureMigrationTable(ctx context.Context, conn db.ConnOrTx) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS archiver_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	numRows, err := db.QueryOneScalar[int64](ctx, conn, "SELECT COUNT(*) FROM archiver_migration")
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO archiver_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}
	return nil
}

func CurrentVersion(ctx context.Context, conn db.ConnOrTx) (types.MigrationVersion, error) {
	currentVersion, err := db.QueryOneScalar[time.Time](ctx, conn, "SELECT version FROM archiver_migration")
	if err != nil {
		return types.MigrationVersion{}, oops.New(err, "failed to get current migration version")
	}
	return types.MigrationVersion(currentVersion.UTC()), nil
}

// ListMigrations prints every known migration, marking the applied one.
func ListMigrations(ctx context.Context, conn db.ConnOrTx, out io.Writer) error {
	if err := ensureMigrationTable(ctx, conn); err != nil {
		return err
	}
	currentVersion, err := CurrentVersion(ctx, conn)
	if err != nil {
		return err
	}

	for _, version := range getSortedMigrationVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Fprintf(out, "%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
	return nil
}

// Migrate rolls the schema forward or back to targetVersion, one
// transaction per migration. A zero targetVersion means the latest.
func Migrate(ctx context.Context, conn db.ConnOrTx, targetVersion types.MigrationVersion) error {
	log := logging.ExtractLogger(ctx)

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return err
	}
	currentVersion, err := CurrentVersion(ctx, conn)
	if err != nil {
		return err
	}

	allVersions := getSortedMigrationVersions()
	if targetVersion.IsZero() {
		targetVersion = allVersions[len(allVersions)-1]
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range allVersions {
		if currentVersion.Equal(version) {
			currentIndex = i
		}
		if targetVersion.Equal(version) {
			targetIndex = i
		}
	}
	if targetIndex < 0 {
		return oops.New(nil, "could not find migration with version %v", targetVersion)
	}
	if currentIndex < 0 && !currentVersion.IsZero() {
		return oops.New(nil, "database is at unknown migration version %v", currentVersion)
	}

	apply := func(version, newVersion types.MigrationVersion, up bool) error {
		migration := migrations.All[version]

		tx, err := conn.Begin(ctx)
		if err != nil {
			return oops.New(err, "failed to start transaction")
		}
		defer tx.Rollback(ctx)

		if up {
			log.Info().Str("version", version.String()).Str("name", migration.Name()).Msg("Applying migration")
			err = migration.Up(ctx, tx)
		} else {
			log.Info().Str("version", version.String()).Str("name", migration.Name()).Msg("Rolling back migration")
			err = migration.Down(ctx, tx)
		}
		if err != nil {
			return oops.New(err, "migration %v (%s) failed", version, migration.Name())
		}

		_, err = tx.Exec(ctx, "UPDATE archiver_migration SET version = $1", time.Time(newVersion))
		if err != nil {
			return oops.New(err, "failed to update version in migrations table")
		}

		if err := tx.Commit(ctx); err != nil {
			return oops.New(err, "failed to commit migration %v", version)
		}
		return nil
	}

	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			if err := apply(allVersions[i], allVersions[i], true); err != nil {
				return err
			}
		}
	} else if currentIndex > targetIndex {
		for i := currentIndex; i > targetIndex; i-- {
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}
			if err := apply(allVersions[i], previousVersion, false); err != nil {
				return err
			}
		}
	} else {
		log.Debug().Str("version", currentVersion.String()).Msg("Already migrated; nothing to do")
	}
	return nil
}
