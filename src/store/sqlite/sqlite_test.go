package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/utils"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, now time.Time) {
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.UpsertGuild(ctx, &models.Guild{ID: 1, Name: "Guild"}))
		require.NoError(t, tx.UpsertChannel(ctx, &models.Channel{ID: 10, GuildID: 1, Name: "general"}))
		require.NoError(t, tx.UpsertUser(ctx, &models.User{ID: 100, Username: "wumpus"}))
		_, err := tx.UpsertMessage(ctx, &models.Message{ID: 500, ChannelID: 10, AuthorID: utils.P(int64(100)), Content: "hi", CreatedAt: now, ScrapedAt: now})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertAttachment(ctx, &models.Attachment{ID: 900, MessageID: 500, Filename: "a.png", URL: "https://cdn/a.png"}))
		require.NoError(t, tx.UpsertAttachment(ctx, &models.Attachment{ID: 901, MessageID: 500, Filename: "notes.txt", URL: "https://cdn/notes.txt"}))
		return nil
	}))
}

func TestUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seed(t, s, now)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		inserted, err := tx.UpsertMessage(ctx, &models.Message{ID: 500, ChannelID: 10, Content: "edited", CreatedAt: now, ScrapedAt: now})
		require.NoError(t, err)
		assert.False(t, inserted)

		inserted, err = tx.UpsertMessage(ctx, &models.Message{ID: 501, ChannelID: 10, CreatedAt: now, ScrapedAt: now})
		require.NoError(t, err)
		assert.True(t, inserted)

		require.NoError(t, tx.UpsertReaction(ctx, &models.Reaction{MessageID: 500, EmojiName: "👍", Count: 2}))
		require.NoError(t, tx.UpsertReaction(ctx, &models.Reaction{MessageID: 500, EmojiName: "👍", Count: 5}))
		require.NoError(t, tx.UpsertReaction(ctx, &models.Reaction{MessageID: 500, EmojiName: "blob", EmojiID: 77, Count: 1}))
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.CountRows(ctx, store.TableReactions)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		batch, err := tx.ReadBatch(ctx, store.TableReactions, 0, 10)
		require.NoError(t, err)
		require.Len(t, batch.Reactions, 2)
		assert.Equal(t, 5, batch.Reactions[0].Count)

		batch, err = tx.ReadBatch(ctx, store.TableMessages, 0, 10)
		require.NoError(t, err)
		require.Len(t, batch.Messages, 2)
		assert.Equal(t, "edited", batch.Messages[0].Content)
		return nil
	}))
}

func TestGuildScrape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seed(t, s, now)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.RecordGuildScrape(ctx, 1, now))
		require.NoError(t, tx.RecordGuildScrape(ctx, 1, now.Add(time.Hour)))
		// Descriptive upserts leave the bookkeeping alone.
		require.NoError(t, tx.UpsertGuild(ctx, &models.Guild{ID: 1, Name: "Renamed"}))

		g, err := tx.GetGuild(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", g.Name)
		assert.Equal(t, 2, g.ScrapeCount)
		require.NotNil(t, g.FirstScrapedAt)
		assert.WithinDuration(t, now, *g.FirstScrapedAt, time.Second)
		assert.WithinDuration(t, now.Add(time.Hour), *g.LastScrapedAt, time.Second)

		assert.ErrorIs(t, tx.RecordGuildScrape(ctx, 2, now), store.NotFound)
		_, err = tx.GetGuild(ctx, 2)
		assert.ErrorIs(t, err, store.NotFound)
		return nil
	}))
}

func TestCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seed(t, s, now)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AdvanceChannelCursor(ctx, store.CursorUpdate{ChannelID: 10, ScrapedAt: now}))
		c, err := tx.GetChannel(ctx, 10)
		require.NoError(t, err)
		assert.Nil(t, c.FirstMessageID)
		assert.Nil(t, c.LastMessageID)
		assert.NotNil(t, c.LastScrapedAt)

		require.NoError(t, tx.AdvanceChannelCursor(ctx, store.CursorUpdate{ChannelID: 10, FirstMessageID: utils.P(int64(500)), LastMessageID: utils.P(int64(500)), Added: 1, ScrapedAt: now}))
		require.NoError(t, tx.AdvanceChannelCursor(ctx, store.CursorUpdate{ChannelID: 10, FirstMessageID: utils.P(int64(600)), LastMessageID: utils.P(int64(400)), ScrapedAt: now}))
		require.NoError(t, tx.AdvanceChannelCursor(ctx, store.CursorUpdate{ChannelID: 10, LastMessageID: utils.P(int64(502)), Added: 2, ScrapedAt: now}))

		// Metadata upserts keep the cursor.
		require.NoError(t, tx.UpsertChannel(ctx, &models.Channel{ID: 10, GuildID: 1, Name: "renamed"}))

		c, err = tx.GetChannel(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, "renamed", c.Name)
		assert.Equal(t, int64(500), *c.FirstMessageID)
		assert.Equal(t, int64(502), *c.LastMessageID)
		assert.Equal(t, 3, c.MessageCount)

		assert.ErrorIs(t, tx.AdvanceChannelCursor(ctx, store.CursorUpdate{ChannelID: 11, ScrapedAt: now}), store.NotFound)
		return nil
	}))
}

func TestAttachments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seed(t, s, now)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		all := store.AttachmentFilter{ChannelID: 10}
		media := store.AttachmentFilter{ChannelID: 10, MediaOnly: true}

		n, err := tx.CountAttachments(ctx, all)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = tx.CountAttachments(ctx, media)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, tx.MarkAttachmentDownloaded(ctx, 900, "10/900_a.png", "abc"))
		assert.ErrorIs(t, tx.MarkAttachmentStatus(ctx, 900, models.DownloadFailed), store.NotFound)
		require.NoError(t, tx.MarkAttachmentStatus(ctx, 901, models.DownloadSkipped))

		// Re-scraping an attachment refreshes metadata without touching the
		// download state.
		require.NoError(t, tx.UpsertAttachment(ctx, &models.Attachment{ID: 900, MessageID: 500, Filename: "a.png", URL: "https://cdn/a2.png"}))

		atts, err := tx.ListAttachments(ctx, media, 0, 10)
		require.NoError(t, err)
		require.Len(t, atts, 1)
		assert.Equal(t, "https://cdn/a2.png", atts[0].URL)
		assert.Equal(t, models.DownloadDownloaded, atts[0].DownloadStatus)
		assert.Equal(t, "10/900_a.png", *atts[0].LocalPath)

		pending, err := tx.ListAttachments(ctx, store.AttachmentFilter{ChannelID: 10, Statuses: []models.DownloadStatus{models.DownloadPending}}, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		atts, err = tx.ListAttachments(ctx, all, 900, 10)
		require.NoError(t, err)
		require.Len(t, atts, 1)
		assert.Equal(t, int64(901), atts[0].ID)
		return nil
	}))
}

func TestSavepoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seed(t, s, now)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		err := tx.Savepoint(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.UpsertUser(ctx, &models.User{ID: 101, Username: "clyde"}))
			return oops.New(nil, "nope")
		})
		assert.Error(t, err)

		require.NoError(t, tx.Savepoint(ctx, func(tx store.Tx) error {
			return tx.UpsertUser(ctx, &models.User{ID: 102, Username: "nelly"})
		}))
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		batch, err := tx.ReadBatch(ctx, store.TableUsers, 0, 10)
		require.NoError(t, err)
		var ids []int64
		for _, u := range batch.Users {
			ids = append(ids, u.ID)
		}
		assert.Equal(t, []int64{100, 102}, ids)
		return nil
	}))
}

func TestWriteBatch(t *testing.T) {
	src := openTestStore(t)
	dst := openTestStore(t)
	ctx := context.Background()
	seed(t, src, time.Now().UTC())

	for _, table := range store.Tables {
		var batch store.Batch
		require.NoError(t, src.InTx(ctx, func(tx store.Tx) error {
			var err error
			batch, err = tx.ReadBatch(ctx, table, 0, 100)
			return err
		}))
		// Twice, to check that rewriting is harmless.
		for i := 0; i < 2; i++ {
			require.NoError(t, dst.InTx(ctx, func(tx store.Tx) error {
				return tx.WriteBatch(ctx, batch)
			}))
		}
	}

	require.NoError(t, dst.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.ResetSequences(ctx))
		for table, want := range map[store.Table]int64{
			store.TableGuilds:      1,
			store.TableChannels:    1,
			store.TableUsers:       1,
			store.TableMessages:    1,
			store.TableAttachments: 2,
			store.TableReactions:   0,
		} {
			n, err := tx.CountRows(ctx, table)
			require.NoError(t, err)
			assert.Equal(t, want, n, "%s", table)
		}
		_, err := tx.CountRows(ctx, store.Table("sqlite_master"))
		assert.Error(t, err)
		return nil
	}))
}
