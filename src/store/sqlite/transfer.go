package sqlite

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"gorm.io/gorm/clause"
)

func (s *session) CountRows(ctx context.Context, table store.Table) (int64, error) {
	if !table.Valid() {
		return 0, oops.New(nil, "unknown table %q", table)
	}
	var count int64
	if err := s.db.WithContext(ctx).Table(string(table)).Count(&count).Error; err != nil {
		return 0, oops.New(err, "failed to count rows in %s", table)
	}
	return count, nil
}

func (s *session) ReadBatch(ctx context.Context, table store.Table, afterID int64, limit int) (store.Batch, error) {
	batch := store.Batch{Table: table}
	q := s.db.WithContext(ctx).Where("id > ?", afterID).Order("id").Limit(limit)

	var err error
	switch table {
	case store.TableGuilds:
		err = q.Find(&batch.Guilds).Error
	case store.TableUsers:
		err = q.Find(&batch.Users).Error
	case store.TableChannels:
		err = q.Find(&batch.Channels).Error
	case store.TableMessages:
		err = q.Find(&batch.Messages).Error
	case store.TableAttachments:
		err = q.Find(&batch.Attachments).Error
	case store.TableReactions:
		err = q.Find(&batch.Reactions).Error
	default:
		return batch, oops.New(nil, "unknown table %q", table)
	}
	if err != nil {
		return batch, oops.New(err, "failed to read %s after id %d", table, afterID)
	}
	return batch, nil
}

func (s *session) WriteBatch(ctx context.Context, batch store.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	q := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	})

	var err error
	switch batch.Table {
	case store.TableGuilds:
		err = q.Create(batch.Guilds).Error
	case store.TableUsers:
		err = q.Create(batch.Users).Error
	case store.TableChannels:
		err = q.Create(batch.Channels).Error
	case store.TableMessages:
		err = q.Create(batch.Messages).Error
	case store.TableAttachments:
		err = q.Create(batch.Attachments).Error
	case store.TableReactions:
		err = q.Create(batch.Reactions).Error
	default:
		return oops.New(nil, "unknown table %q", batch.Table)
	}
	if err != nil {
		return oops.New(err, "failed to write %d rows to %s", batch.Len(), batch.Table)
	}
	return nil
}

// ResetSequences is a no-op: SQLite's rowid allocation already continues
// from the largest id in the table.
func (s *session) ResetSequences(ctx context.Context) error {
	return nil
}
