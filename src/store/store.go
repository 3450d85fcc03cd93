// Package store defines the transactional entity store the ingestion engines
// write to. Backends live in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/wumpus-archiver/archiver/src/models"
)

var NotFound = errors.New("not found")

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Store interface {
	// Name is the name the store was registered under.
	Name() string
	Dialect() Dialect

	// InTx runs fn in a transaction. The transaction is committed if fn
	// returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

type Tx interface {
	// Savepoint runs fn in a nested transaction. If fn fails, only its own
	// writes are rolled back and the outer transaction stays usable.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error

	GetGuild(ctx context.Context, id int64) (*models.Guild, error)
	// UpsertGuild writes the guild's descriptive fields. Scrape bookkeeping
	// (timestamps, scrape_count) is left alone.
	UpsertGuild(ctx context.Context, guild *models.Guild) error
	// RecordGuildScrape increments scrape_count in place and stamps the
	// scrape timestamps.
	RecordGuildScrape(ctx context.Context, guildID int64, at time.Time) error

	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	// ListChannels returns the channels of one guild, or of every guild when
	// guildID is nil, ordered by guild, position, and id.
	ListChannels(ctx context.Context, guildID *int64) ([]*models.Channel, error)
	// UpsertChannel writes channel metadata. The sync cursor is not touched.
	UpsertChannel(ctx context.Context, channel *models.Channel) error
	AdvanceChannelCursor(ctx context.Context, update CursorUpdate) error

	UpsertUser(ctx context.Context, user *models.User) error
	// UpsertMessage inserts the message or overwrites its mutable fields,
	// reporting whether a new row was created.
	UpsertMessage(ctx context.Context, msg *models.Message) (inserted bool, err error)
	// UpsertAttachment inserts the attachment as pending, or refreshes its
	// metadata. Download state is never reset by an upsert.
	UpsertAttachment(ctx context.Context, att *models.Attachment) error
	// UpsertReaction upserts by (message id, emoji name, emoji id),
	// overwriting the count.
	UpsertReaction(ctx context.Context, reaction *models.Reaction) error

	CountAttachments(ctx context.Context, filter AttachmentFilter) (int, error)
	// ListAttachments pages through matching attachments in id order,
	// starting after afterID.
	ListAttachments(ctx context.Context, filter AttachmentFilter, afterID int64, limit int) ([]*models.Attachment, error)
	// MarkAttachmentDownloaded and MarkAttachmentStatus only move attachments
	// out of the pending state. They return NotFound if the attachment does
	// not exist or is no longer pending.
	MarkAttachmentDownloaded(ctx context.Context, id int64, localPath, contentHash string) error
	MarkAttachmentStatus(ctx context.Context, id int64, status models.DownloadStatus) error

	CountRows(ctx context.Context, table Table) (int64, error)
	ReadBatch(ctx context.Context, table Table, afterID int64, limit int) (Batch, error)
	// WriteBatch upserts every row by primary key, overwriting all columns.
	WriteBatch(ctx context.Context, batch Batch) error
	// ResetSequences moves auto-increment generators past the highest stored
	// id, after rows were written with explicit ids.
	ResetSequences(ctx context.Context) error
}

// CursorUpdate moves a channel's sync cursor forward after a scrape. Nil ids
// leave the stored ids unchanged; stored ids only ever move outward.
type CursorUpdate struct {
	ChannelID      int64
	FirstMessageID *int64
	LastMessageID  *int64
	Added          int
	ScrapedAt      time.Time
}

type AttachmentFilter struct {
	ChannelID int64
	Statuses  []models.DownloadStatus
	MediaOnly bool
}

func (f AttachmentFilter) StatusStrings() []string {
	res := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		res[i] = string(s)
	}
	return res
}
