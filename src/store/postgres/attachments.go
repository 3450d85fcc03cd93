package postgres

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
)

func attachmentQuery(qb *db.QueryBuilder, filter store.AttachmentFilter) {
	qb.Add(
		`
		FROM
			attachments AS a
			JOIN messages AS m ON m.id = a.message_id
		WHERE
			m.channel_id = $?
		`,
		filter.ChannelID,
	)
	qb.AddIf(len(filter.Statuses) > 0, `AND a.download_status = ANY($?)`, filter.StatusStrings())
	qb.AddIf(filter.MediaOnly, `AND `+store.MediaPredicate("a"))
}

func (s *session) CountAttachments(ctx context.Context, filter store.AttachmentFilter) (int, error) {
	var qb db.QueryBuilder
	qb.Add(`---- Count attachments`)
	qb.Add(`SELECT COUNT(*)`)
	attachmentQuery(&qb, filter)

	count, err := db.QueryOneScalar[int64](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count attachments in channel %d", filter.ChannelID)
	}
	return int(count), nil
}

func (s *session) ListAttachments(ctx context.Context, filter store.AttachmentFilter, afterID int64, limit int) ([]*models.Attachment, error) {
	var qb db.QueryBuilder
	qb.Add(`---- List attachments`)
	qb.Add(`SELECT $columns{a}`)
	attachmentQuery(&qb, filter)
	qb.Add(`AND a.id > $? ORDER BY a.id LIMIT $?`, afterID, limit)

	atts, err := db.Query[models.Attachment](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to list attachments in channel %d", filter.ChannelID)
	}
	return atts, nil
}

func (s *session) MarkAttachmentDownloaded(ctx context.Context, id int64, localPath, contentHash string) error {
	tag, err := s.conn.Exec(ctx,
		`
		---- Mark attachment downloaded
		UPDATE attachments
		SET
			download_status = $2,
			local_path = $3,
			content_hash = $4
		WHERE id = $1 AND download_status = $5
		`,
		id,
		models.DownloadDownloaded,
		localPath,
		contentHash,
		models.DownloadPending,
	)
	if err != nil {
		return oops.New(err, "failed to mark attachment %d downloaded", id)
	}
	if tag.RowsAffected() == 0 {
		return oops.New(store.NotFound, "no pending attachment %d", id)
	}
	return nil
}

func (s *session) MarkAttachmentStatus(ctx context.Context, id int64, status models.DownloadStatus) error {
	tag, err := s.conn.Exec(ctx,
		`
		---- Mark attachment status
		UPDATE attachments
		SET download_status = $2
		WHERE id = $1 AND download_status = $3
		`,
		id,
		status,
		models.DownloadPending,
	)
	if err != nil {
		return oops.New(err, "failed to mark attachment %d %s", id, status)
	}
	if tag.RowsAffected() == 0 {
		return oops.New(store.NotFound, "no pending attachment %d", id)
	}
	return nil
}
