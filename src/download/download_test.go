package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wumpus-archiver/archiver/src/assets"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/remote/remotetest"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/store/sqlite"
	"github.com/wumpus-archiver/archiver/src/utils"
)

const channelID = 10

type fixture struct {
	store   store.Store
	fetcher *remotetest.Fetcher
	root    string
}

func newFixture(t *testing.T, atts ...*models.Attachment) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.UpsertGuild(ctx, &models.Guild{ID: 1, Name: "G"}))
		require.NoError(t, tx.UpsertGuild(ctx, &models.Guild{ID: 2, Name: "Other"}))
		require.NoError(t, tx.UpsertChannel(ctx, &models.Channel{ID: channelID, GuildID: 1, Name: "general"}))
		require.NoError(t, tx.UpsertChannel(ctx, &models.Channel{ID: 20, GuildID: 2, Name: "elsewhere"}))
		_, err := tx.UpsertMessage(ctx, &models.Message{ID: 500, ChannelID: channelID, CreatedAt: now, ScrapedAt: now})
		require.NoError(t, err)
		_, err = tx.UpsertMessage(ctx, &models.Message{ID: 600, ChannelID: 20, CreatedAt: now, ScrapedAt: now})
		require.NoError(t, err)
		for _, att := range atts {
			if att.MessageID == 0 {
				att.MessageID = 500
			}
			require.NoError(t, tx.UpsertAttachment(ctx, att))
		}
		return nil
	}))

	return &fixture{
		store:   s,
		fetcher: remotetest.NewFetcher(),
		root:    t.TempDir(),
	}
}

func (f *fixture) run(t *testing.T, opts Options, params Params) Snapshot {
	t.Helper()
	opts.Root = f.root
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	o := NewOrchestrator(f.store, f.fetcher, opts)
	snap, err := o.Start(params)
	require.NoError(t, err)
	select {
	case <-o.Jobs().Finished():
	case <-time.After(10 * time.Second):
		t.Fatal("download did not finish")
	}
	final, ok := o.Jobs().Lookup(snap.ID)
	require.True(t, ok)
	require.NotEqual(t, jobs.StatusFailed, final.Status, final.Error)
	return final
}

func (f *fixture) attachment(t *testing.T, id int64) *models.Attachment {
	t.Helper()
	var res *models.Attachment
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		batch, err := tx.ReadBatch(context.Background(), store.TableAttachments, id-1, 1)
		if err != nil {
			return err
		}
		require.Len(t, batch.Attachments, 1)
		res = batch.Attachments[0]
		return nil
	}))
	return res
}

func image(id int64, url string) *models.Attachment {
	return &models.Attachment{ID: id, Filename: "cat.png", ContentType: utils.P("image/png"), URL: url}
}

func ok(body string) remotetest.Response {
	return remotetest.Response{Status: 200, Body: []byte(body)}
}

var serverError = remotetest.Response{Status: 500}

func TestRetryCeiling(t *testing.T) {
	script := []remotetest.Response{serverError, serverError, serverError, ok("meow")}

	t.Run("three attempts fail", func(t *testing.T) {
		f := newFixture(t, image(900, "https://cdn/cat.png"))
		f.fetcher.Script("https://cdn/cat.png", script...)

		snap := f.run(t, Options{MaxAttempts: 3}, Params{})
		assert.Equal(t, 1, snap.Result.Failed)
		assert.Equal(t, 3, f.fetcher.Calls("https://cdn/cat.png"))
		assert.Len(t, snap.Result.Errors, 1)
		assert.Equal(t, models.DownloadFailed, f.attachment(t, 900).DownloadStatus)
	})

	t.Run("four attempts succeed", func(t *testing.T) {
		f := newFixture(t, image(900, "https://cdn/cat.png"))
		f.fetcher.Script("https://cdn/cat.png", script...)

		snap := f.run(t, Options{MaxAttempts: 4}, Params{})
		assert.Equal(t, 1, snap.Result.Downloaded)
		assert.Equal(t, int64(4), snap.Result.Bytes)
		assert.Equal(t, 4, f.fetcher.Calls("https://cdn/cat.png"))

		att := f.attachment(t, 900)
		assert.Equal(t, models.DownloadDownloaded, att.DownloadStatus)
		assert.Equal(t, "10/900_cat.png", *att.LocalPath)
		assert.Equal(t, assets.Hash([]byte("meow")), *att.ContentHash)

		content, err := os.ReadFile(filepath.Join(f.root, "10", "900_cat.png"))
		require.NoError(t, err)
		assert.Equal(t, "meow", string(content))
	})
}

func TestNotFoundIsTerminal(t *testing.T) {
	f := newFixture(t, image(900, "https://cdn/gone.png"))
	f.fetcher.Script("https://cdn/gone.png", remotetest.Response{Status: 404})

	snap := f.run(t, Options{}, Params{})
	assert.Equal(t, 1, snap.Result.Skipped)
	assert.Equal(t, 1, f.fetcher.Calls("https://cdn/gone.png"))
	assert.Equal(t, models.DownloadSkipped, f.attachment(t, 900).DownloadStatus)

	snap = f.run(t, Options{}, Params{})
	assert.Equal(t, 0, snap.Result.Total)
	assert.Equal(t, 1, f.fetcher.TotalCalls())
}

func TestResumable(t *testing.T) {
	f := newFixture(t, image(900, "https://cdn/cat.png"), image(901, "https://cdn/cat2.png"))
	f.fetcher.Script("https://cdn/cat.png", ok("meow"))
	f.fetcher.Script("https://cdn/cat2.png", ok("purr"))

	snap := f.run(t, Options{}, Params{})
	assert.Equal(t, 2, snap.Result.Downloaded)
	hash := *f.attachment(t, 900).ContentHash

	snap = f.run(t, Options{}, Params{})
	assert.Equal(t, 2, snap.Result.AlreadyCached)
	assert.Equal(t, 0, snap.Result.Downloaded)
	assert.Equal(t, 2, f.fetcher.TotalCalls())
	assert.Equal(t, hash, *f.attachment(t, 900).ContentHash)

	t.Run("missing files are reported, not refetched", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(f.root, "10", "901_cat.png")))
		snap := f.run(t, Options{}, Params{})
		assert.Equal(t, 1, snap.Result.AlreadyCached)
		assert.Equal(t, 1, snap.Result.Skipped)
		assert.Equal(t, 2, f.fetcher.TotalCalls())
		assert.Equal(t, models.DownloadDownloaded, f.attachment(t, 901).DownloadStatus)
	})
}

func TestAdoptsExistingFile(t *testing.T) {
	f := newFixture(t, image(900, "https://cdn/cat.png"))
	require.NoError(t, assets.WriteFile(f.root, "10/900_cat.png", []byte("from last time")))

	snap := f.run(t, Options{}, Params{})
	assert.Equal(t, 1, snap.Result.AlreadyCached)
	assert.Equal(t, 0, f.fetcher.TotalCalls())

	att := f.attachment(t, 900)
	assert.Equal(t, models.DownloadDownloaded, att.DownloadStatus)
	assert.Equal(t, assets.Hash([]byte("from last time")), *att.ContentHash)
}

func TestProxyFallback(t *testing.T) {
	att := image(900, "https://cdn/cat.png")
	att.ProxyURL = utils.P("https://media/cat.png")
	f := newFixture(t, att)
	f.fetcher.Script("https://cdn/cat.png", serverError)
	f.fetcher.Script("https://media/cat.png", ok("meow"))

	snap := f.run(t, Options{}, Params{})
	assert.Equal(t, 1, snap.Result.Downloaded)
	assert.Equal(t, 1, f.fetcher.Calls("https://cdn/cat.png"))
	assert.Equal(t, 1, f.fetcher.Calls("https://media/cat.png"))
}

func TestOnlyMedia(t *testing.T) {
	f := newFixture(t,
		image(900, "https://cdn/cat.png"),
		&models.Attachment{ID: 901, Filename: "notes.txt", URL: "https://cdn/notes.txt"},
		&models.Attachment{ID: 902, Filename: "clip.MP4", URL: "https://cdn/clip.mp4"},
	)
	f.fetcher.Script("https://cdn/cat.png", ok("meow"))
	f.fetcher.Script("https://cdn/clip.mp4", ok("frames"))

	snap := f.run(t, Options{}, Params{})
	assert.Equal(t, 2, snap.Result.Total)
	assert.Equal(t, 2, snap.Result.Downloaded)
	assert.Equal(t, 0, f.fetcher.Calls("https://cdn/notes.txt"))
	assert.Equal(t, models.DownloadPending, f.attachment(t, 901).DownloadStatus)
}

func TestGuildScope(t *testing.T) {
	other := image(950, "https://cdn/other.png")
	other.MessageID = 600
	f := newFixture(t, image(900, "https://cdn/cat.png"), other)
	f.fetcher.Script("https://cdn/cat.png", ok("meow"))
	f.fetcher.Script("https://cdn/other.png", ok("woof"))

	snap := f.run(t, Options{}, Params{GuildID: utils.P(int64(1))})
	assert.Equal(t, 1, snap.Result.Downloaded)
	assert.Equal(t, 0, f.fetcher.Calls("https://cdn/other.png"))
	assert.Equal(t, 1, snap.Progress.ChannelsTotal)

	snap = f.run(t, Options{}, Params{})
	assert.Equal(t, 1, snap.Result.Downloaded)
	assert.Equal(t, 1, snap.Result.AlreadyCached)
}

type memorySink struct {
	mu      sync.Mutex
	objects map[string]string
}

func (s *memorySink) Put(ctx context.Context, key string, content []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = contentType + ":" + string(content)
	return nil
}

func TestMirror(t *testing.T) {
	f := newFixture(t, image(900, "https://cdn/cat.png"))
	f.fetcher.Script("https://cdn/cat.png", ok("meow"))
	sink := &memorySink{objects: map[string]string{}}

	f.run(t, Options{Mirror: sink}, Params{})
	assert.Equal(t, map[string]string{"10/900_cat.png": "image/png:meow"}, sink.objects)
}

func TestConcurrentBatches(t *testing.T) {
	var atts []*models.Attachment
	for id := int64(1000); id < 1025; id++ {
		att := image(id, "https://cdn/"+string(rune('a'+id-1000))+".png")
		atts = append(atts, att)
	}
	f := newFixture(t, atts...)
	for _, att := range atts {
		f.fetcher.Script(att.URL, ok("x"))
	}

	snap := f.run(t, Options{Concurrency: 3, BatchSize: 10}, Params{})
	assert.Equal(t, 25, snap.Result.Total)
	assert.Equal(t, 25, snap.Result.Downloaded)
	assert.Equal(t, 25, snap.Progress.Processed())
}

func TestPrecondition(t *testing.T) {
	f := newFixture(t)
	_, err := NewOrchestrator(f.store, f.fetcher, Options{}).Start(Params{})
	assert.ErrorIs(t, err, jobs.ErrPrecondition)
}
