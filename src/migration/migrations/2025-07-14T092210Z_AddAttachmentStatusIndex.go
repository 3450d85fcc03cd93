package migrations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wumpus-archiver/archiver/src/migration/types"
)

func init() {
	registerMigration(AddAttachmentStatusIndex{})
}

type AddAttachmentStatusIndex struct{}

func (m AddAttachmentStatusIndex) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2025, 7, 14, 9, 22, 10, 0, time.UTC))
}

func (m AddAttachmentStatusIndex) Name() string {
	return "AddAttachmentStatusIndex"
}

func (m AddAttachmentStatusIndex) Description() string {
	return "Index attachments by download status and constrain the status values"
}

func (m AddAttachmentStatusIndex) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE INDEX attachments_download_status ON attachments (download_status);
		ALTER TABLE attachments
			ADD CONSTRAINT attachments_download_status_valid
			CHECK (download_status IN ('pending', 'downloaded', 'failed', 'skipped'));
		`,
	)
	return err
}

func (m AddAttachmentStatusIndex) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		ALTER TABLE attachments DROP CONSTRAINT attachments_download_status_valid;
		DROP INDEX attachments_download_status;
		`,
	)
	return err
}
