package scrape

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/remote/remotetest"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/store/sqlite"
	"github.com/wumpus-archiver/archiver/src/utils"
)

const (
	guildID   = 1
	generalID = 10
	secretID  = 11
	forumID   = 12
	emptyID   = 13
	category  = 14
	threadID  = 20
	archiveID = 21
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newClient() *remotetest.Client {
	c := remotetest.NewClient(remote.GuildDescriptor{ID: guildID, Name: "Wumpus Fan Club"})
	c.Channels = []remote.ChannelDescriptor{
		{ID: category, GuildID: guildID, Name: "Text Channels", Type: models.ChannelTypeCategory},
		{ID: generalID, GuildID: guildID, Name: "general", Type: models.ChannelTypeText, Position: 1, ParentID: utils.P(int64(category))},
	}
	return c
}

func msg(id int64) remote.Message {
	return remote.Message{
		ID:        id,
		Author:    &remote.Author{ID: 100, Username: "wumpus"},
		Content:   "message",
		CreatedAt: time.Unix(1700000000+id, 0).UTC(),
	}
}

func run(t *testing.T, o *Orchestrator, params Params) Snapshot {
	t.Helper()
	snap, err := o.Start(params)
	require.NoError(t, err)
	select {
	case <-o.Jobs().Finished():
	case <-time.After(10 * time.Second):
		t.Fatal("scrape did not finish")
	}
	final, ok := o.Jobs().Lookup(snap.ID)
	require.True(t, ok)
	return final
}

func getChannel(t *testing.T, s store.Store, id int64) *models.Channel {
	t.Helper()
	var ch *models.Channel
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		ch, err = tx.GetChannel(context.Background(), id)
		return err
	}))
	return ch
}

func countRows(t *testing.T, s store.Store, table store.Table) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		n, err = tx.CountRows(context.Background(), table)
		return err
	}))
	return n
}

func getGuild(t *testing.T, s store.Store) *models.Guild {
	t.Helper()
	var g *models.Guild
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		g, err = tx.GetGuild(context.Background(), guildID)
		return err
	}))
	return g
}

func TestIncrementalScrape(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.AddMessages(generalID, msg(500))
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	first := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, first.Status, first.Error)
	assert.Equal(t, 1, first.Result.MessagesScraped)

	ch := getChannel(t, s, generalID)
	require.NotNil(t, ch.LastMessageID)
	assert.Equal(t, int64(500), *ch.LastMessageID)
	assert.Equal(t, 1, ch.MessageCount)

	client.AddMessages(generalID, msg(501), msg(502))
	second := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, second.Status, second.Error)
	assert.Equal(t, 2, second.Result.MessagesScraped)
	assert.Equal(t, 1, second.Result.ChannelsScraped)

	ch = getChannel(t, s, generalID)
	assert.Equal(t, int64(502), *ch.LastMessageID)
	assert.Equal(t, int64(500), *ch.FirstMessageID)
	assert.Equal(t, 3, ch.MessageCount)
	assert.NotNil(t, ch.LastScrapedAt)

	g := getGuild(t, s)
	assert.Equal(t, 2, g.ScrapeCount)
	assert.True(t, client.Closed)
}

func TestFullScrapePaging(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.PageSize = 30
	for id := int64(1); id <= 250; id++ {
		client.AddMessages(generalID, msg(id))
	}
	o := NewOrchestrator(s, client.Dialer(), "token", Options{BatchSize: 100})

	snap := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, 250, snap.Result.MessagesScraped)
	assert.Equal(t, 250, snap.Progress.MessagesScraped)

	ch := getChannel(t, s, generalID)
	assert.Equal(t, int64(1), *ch.FirstMessageID)
	assert.Equal(t, int64(250), *ch.LastMessageID)
	assert.Equal(t, 250, ch.MessageCount)
	assert.Equal(t, int64(250), countRows(t, s, store.TableMessages))
}

func TestRescrapeIsIdempotent(t *testing.T) {
	s := openStore(t)
	client := newClient()
	m := msg(500)
	m.Attachments = []remote.Attachment{{ID: 900, Filename: "cat.png", URL: "https://cdn/cat.png", Size: 3}}
	m.Reactions = []remote.Reaction{{EmojiName: "👍", Count: 2}, {EmojiName: "blob", EmojiID: 7, Count: 1}}
	client.AddMessages(generalID, m, msg(501))
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	first := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, first.Status, first.Error)
	assert.Equal(t, 1, first.Result.AttachmentsFound)

	counts := map[store.Table]int64{}
	for _, table := range store.Tables {
		counts[table] = countRows(t, s, table)
	}
	assert.Equal(t, int64(2), counts[store.TableReactions])

	second := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, second.Status, second.Error)
	assert.Equal(t, 0, second.Result.MessagesScraped)
	for _, table := range store.Tables {
		assert.Equal(t, counts[table], countRows(t, s, table), "%s", table)
	}
	assert.Equal(t, 2, getChannel(t, s, generalID).MessageCount)

	// Wiping the cursor forces a full rescrape, which still adds no rows.
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.WriteBatch(context.Background(), store.Batch{
			Table:    store.TableChannels,
			Channels: []*models.Channel{{ID: generalID, GuildID: guildID, Name: "general"}},
		})
	}))
	third := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, third.Status, third.Error)
	assert.Equal(t, 2, third.Result.MessagesScraped)
	for _, table := range store.Tables {
		assert.Equal(t, counts[table], countRows(t, s, table), "%s", table)
	}
}

func TestChannelErrors(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.Channels = append(client.Channels,
		remote.ChannelDescriptor{ID: secretID, GuildID: guildID, Name: "secret", Type: models.ChannelTypeText, Position: 2},
		remote.ChannelDescriptor{ID: emptyID, GuildID: guildID, Name: "empty", Type: models.ChannelTypeText, Position: 3},
	)
	client.AddMessages(generalID, msg(500))
	client.HistoryErrors[secretID] = oops.New(remote.ErrForbidden, "403")
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	snap := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, []string{"No permission to scrape #secret"}, snap.Result.Errors)
	assert.Equal(t, 2, snap.Result.ChannelsScraped)
	assert.Equal(t, 3, snap.Progress.ChannelsDone)

	t.Run("empty channels are still marked checked", func(t *testing.T) {
		ch := getChannel(t, s, emptyID)
		assert.NotNil(t, ch.LastScrapedAt)
		assert.Nil(t, ch.LastMessageID)
		assert.Equal(t, 0, ch.MessageCount)
	})

	t.Run("metadata is saved for unreadable channels", func(t *testing.T) {
		ch := getChannel(t, s, secretID)
		assert.Equal(t, "secret", ch.Name)
		assert.Nil(t, ch.LastMessageID)
	})
}

func TestUnauthorizedIsFatal(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.HistoryErrors[generalID] = oops.New(remote.ErrUnauthorized, "401")
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	snap := run(t, o, Params{GuildID: guildID})
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, 0, getGuild(t, s).ScrapeCount)
	assert.True(t, client.Closed)
}

func TestDialFailure(t *testing.T) {
	s := openStore(t)
	dial := func(ctx context.Context, token string) (remote.Client, error) {
		return nil, oops.New(remote.ErrUnauthorized, "bad token")
	}
	o := NewOrchestrator(s, dial, "token", Options{})
	snap := run(t, o, Params{GuildID: guildID})
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "bad token")
}

func TestCancelScrape(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.PageSize = 10
	for id := int64(1); id <= 50; id++ {
		client.AddMessages(generalID, msg(id))
	}
	o := NewOrchestrator(s, client.Dialer(), "token", Options{BatchSize: 10})

	pages := 0
	client.OnPage = func(channelID int64) {
		pages++
		if pages == 2 {
			o.Cancel()
		}
	}

	snap := run(t, o, Params{GuildID: guildID})
	assert.Equal(t, jobs.StatusCancelled, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 20, snap.Result.MessagesScraped)

	// Nothing counts as a completed scrape, and the partial full scrape left
	// no cursor behind.
	assert.Equal(t, 0, getGuild(t, s).ScrapeCount)
	ch := getChannel(t, s, generalID)
	assert.Nil(t, ch.LastMessageID)
	assert.Equal(t, 20, ch.MessageCount)
	assert.Equal(t, int64(20), countRows(t, s, store.TableMessages))

	// The next run starts over and picks up the rest.
	client.OnPage = nil
	snap = run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	ch = getChannel(t, s, generalID)
	assert.Equal(t, int64(50), *ch.LastMessageID)
	assert.Equal(t, 50, ch.MessageCount)
	assert.Equal(t, 1, getGuild(t, s).ScrapeCount)
}

func TestThreads(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.Channels = append(client.Channels,
		remote.ChannelDescriptor{ID: forumID, GuildID: guildID, Name: "help", Type: models.ChannelTypeForum, Position: 5},
	)
	thread := remote.ChannelDescriptor{ID: threadID, GuildID: guildID, Name: "how do i", Type: models.ChannelTypePublicThread, ParentID: utils.P(int64(forumID))}
	archived := remote.ChannelDescriptor{ID: archiveID, GuildID: guildID, Name: "old question", Type: models.ChannelTypePublicThread, ParentID: utils.P(int64(forumID))}
	client.Threads[forumID] = []remote.ChannelDescriptor{thread}
	// Listed by both endpoints; scraped once.
	client.ArchivedThreads[forumID] = []remote.ChannelDescriptor{archived, thread}
	client.AddMessages(generalID, msg(1))
	client.AddMessages(threadID, msg(2))
	client.AddMessages(archiveID, msg(3))
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	t.Run("subset", func(t *testing.T) {
		snap := run(t, o, Params{GuildID: guildID, ChannelIDs: []int64{forumID, 999}})
		require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
		assert.Equal(t, 2, snap.Result.ChannelsScraped)
		assert.Equal(t, 2, snap.Result.MessagesScraped)
		assert.Equal(t, []string{"Channel 999 not found in guild"}, snap.Result.Errors)
	})

	t.Run("whole guild", func(t *testing.T) {
		snap := run(t, o, Params{GuildID: guildID})
		require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
		// general plus two threads; the forum and the category hold no
		// messages of their own.
		assert.Equal(t, 3, snap.Result.ChannelsScraped)
		assert.Equal(t, 3, snap.Progress.ChannelsTotal)
		assert.Equal(t, int64(3), countRows(t, s, store.TableChannels))
	})
}

func TestPreconditions(t *testing.T) {
	s := openStore(t)
	client := newClient()

	_, err := NewOrchestrator(s, client.Dialer(), "", Options{}).Start(Params{GuildID: guildID})
	assert.ErrorIs(t, err, jobs.ErrPrecondition)

	_, err = NewOrchestrator(s, client.Dialer(), "token", Options{}).Start(Params{})
	assert.ErrorIs(t, err, jobs.ErrPrecondition)
}

func TestSingleFlight(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.AddMessages(generalID, msg(1))
	release := make(chan struct{})
	client.OnPage = func(int64) { <-release }
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	_, err := o.Start(Params{GuildID: guildID})
	require.NoError(t, err)
	_, err = o.Start(Params{GuildID: guildID})
	assert.ErrorIs(t, err, jobs.ErrAlreadyRunning)

	close(release)
	<-o.Jobs().Finished()
	assert.Len(t, o.History(), 1)
}

// faultyStore fails UpsertMessage for one message id and lets tests hook the
// final guild bookkeeping.
type faultyStore struct {
	store.Store
	failMessage int64
	onRecord    func()
}

func (s *faultyStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	store.Tx
	s *faultyStore
}

func (tx *faultyTx) Savepoint(ctx context.Context, fn func(tx store.Tx) error) error {
	return tx.Tx.Savepoint(ctx, func(inner store.Tx) error {
		return fn(&faultyTx{Tx: inner, s: tx.s})
	})
}

func (tx *faultyTx) UpsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.ID == tx.s.failMessage {
		return false, errors.New("boom")
	}
	return tx.Tx.UpsertMessage(ctx, msg)
}

func (tx *faultyTx) RecordGuildScrape(ctx context.Context, guildID int64, at time.Time) error {
	if tx.s.onRecord != nil {
		tx.s.onRecord()
	}
	return tx.Tx.RecordGuildScrape(ctx, guildID, at)
}

func TestFailedMessageIsIsolated(t *testing.T) {
	s := &faultyStore{Store: openStore(t), failMessage: 501}
	client := newClient()
	client.AddMessages(generalID, msg(500), msg(501), msg(502))
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	snap := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, []string{"Failed to save message 501 in #general: boom"}, snap.Result.Errors)
	assert.Equal(t, 2, snap.Result.MessagesScraped)
	assert.Equal(t, int64(2), countRows(t, s, store.TableMessages))

	ch := getChannel(t, s, generalID)
	assert.Equal(t, int64(500), utils.Deref(ch.FirstMessageID))
	assert.Equal(t, int64(502), utils.Deref(ch.LastMessageID))
	assert.Equal(t, 2, ch.MessageCount)
	assert.Equal(t, 1, getGuild(t, s).ScrapeCount)
}

func TestLateCancelIsIgnored(t *testing.T) {
	s := &faultyStore{Store: openStore(t)}
	client := newClient()
	client.AddMessages(generalID, msg(500))
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	cancelled := true
	s.onRecord = func() {
		cancelled = o.Cancel()
	}

	snap := run(t, o, Params{GuildID: guildID})
	assert.False(t, cancelled)
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, 1, getGuild(t, s).ScrapeCount)
}

func TestArchivedThreadsForbidden(t *testing.T) {
	s := openStore(t)
	client := newClient()
	client.AddMessages(generalID, msg(500))
	client.ArchivedThreadErrors[generalID] = oops.New(remote.ErrForbidden, "403")
	o := NewOrchestrator(s, client.Dialer(), "token", Options{})

	snap := run(t, o, Params{GuildID: guildID})
	require.Equal(t, jobs.StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, []string{"No permission to list archived threads in #general"}, snap.Result.Errors)
	assert.Equal(t, 1, snap.Result.MessagesScraped)
}
