package sqlite

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"gorm.io/gorm"
)

func (s *session) attachmentQuery(ctx context.Context, filter store.AttachmentFilter) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("attachments AS a").
		Joins("JOIN messages AS m ON m.id = a.message_id").
		Where("m.channel_id = ?", filter.ChannelID)
	if len(filter.Statuses) > 0 {
		q = q.Where("a.download_status IN ?", filter.StatusStrings())
	}
	if filter.MediaOnly {
		q = q.Where(store.MediaPredicate("a"))
	}
	return q
}

func (s *session) CountAttachments(ctx context.Context, filter store.AttachmentFilter) (int, error) {
	var count int64
	if err := s.attachmentQuery(ctx, filter).Count(&count).Error; err != nil {
		return 0, oops.New(err, "failed to count attachments in channel %d", filter.ChannelID)
	}
	return int(count), nil
}

func (s *session) ListAttachments(ctx context.Context, filter store.AttachmentFilter, afterID int64, limit int) ([]*models.Attachment, error) {
	var atts []*models.Attachment
	err := s.attachmentQuery(ctx, filter).
		Select("a.*").
		Where("a.id > ?", afterID).
		Order("a.id").
		Limit(limit).
		Find(&atts).Error
	if err != nil {
		return nil, oops.New(err, "failed to list attachments in channel %d", filter.ChannelID)
	}
	return atts, nil
}

func (s *session) MarkAttachmentDownloaded(ctx context.Context, id int64, localPath, contentHash string) error {
	res := s.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("id = ? AND download_status = ?", id, models.DownloadPending).
		Updates(map[string]interface{}{
			"download_status": models.DownloadDownloaded,
			"local_path":      localPath,
			"content_hash":    contentHash,
		})
	if res.Error != nil {
		return oops.New(res.Error, "failed to mark attachment %d downloaded", id)
	}
	if res.RowsAffected == 0 {
		return oops.New(store.NotFound, "no pending attachment %d", id)
	}
	return nil
}

func (s *session) MarkAttachmentStatus(ctx context.Context, id int64, status models.DownloadStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("id = ? AND download_status = ?", id, models.DownloadPending).
		Update("download_status", status)
	if res.Error != nil {
		return oops.New(res.Error, "failed to mark attachment %d %s", id, status)
	}
	if res.RowsAffected == 0 {
		return oops.New(store.NotFound, "no pending attachment %d", id)
	}
	return nil
}
