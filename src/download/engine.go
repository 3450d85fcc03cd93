package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/jpillora/backoff"
	"github.com/sourcegraph/conc/pool"
	"github.com/wumpus-archiver/archiver/src/assets"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/utils"
)

var errGone = errors.New("attachment no longer exists remotely")

type outcomeKind int

const (
	// The file was fetched and written.
	outcomeDownloaded outcomeKind = iota
	// Already downloaded and still on disk. Nothing to do.
	outcomeCached
	// Still pending, but a previous run left the file on disk.
	outcomeAdopted
	// Marked downloaded, but the file has since disappeared.
	outcomeMissing
	outcomeGone
	outcomeFailed
)

type outcome struct {
	att       *models.Attachment
	kind      outcomeKind
	localPath string
	hash      string
	size      int
	err       error
}

type engine struct {
	store   store.Store
	fetcher remote.Fetcher
	opts    Options
	update  func(func(p *Progress))
}

func (e *engine) run(ctx context.Context, params Params) error {
	log := logging.ExtractLogger(ctx)

	var channels []*models.Channel
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		channels, err = tx.ListChannels(ctx, params.GuildID)
		return err
	})
	if err != nil {
		return oops.New(err, "failed to list channels")
	}
	log.Info().Int("channels", len(channels)).Msg("Downloading attachments")
	e.update(func(p *Progress) {
		p.ChannelsTotal = len(channels)
	})

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.update(func(p *Progress) {
			p.CurrentChannel = "#" + ch.Name
		})
		if err := e.downloadChannel(ctx, ch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Int64("channel", ch.ID).Msg("failed to download channel attachments")
			e.addError("Error downloading attachments of #%s: %v", ch.Name, err)
		}
		e.update(func(p *Progress) {
			p.ChannelsDone++
		})
	}
	e.update(func(p *Progress) {
		p.CurrentChannel = ""
	})
	return nil
}

func (e *engine) addError(format string, args ...any) {
	e.update(func(p *Progress) {
		p.Errors.Add(format, args...)
	})
}

func (e *engine) downloadChannel(ctx context.Context, ch *models.Channel) error {
	log := logging.ExtractLogger(ctx).With().Int64("channel", ch.ID).Logger()
	filter := store.AttachmentFilter{
		ChannelID: ch.ID,
		Statuses:  []models.DownloadStatus{models.DownloadPending, models.DownloadDownloaded},
		MediaOnly: true,
	}

	var total int
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		total, err = tx.CountAttachments(ctx, filter)
		return err
	})
	if err != nil {
		return oops.New(err, "failed to count attachments")
	}
	if total == 0 {
		return nil
	}
	log.Info().Int("attachments", total).Msg("Processing channel")
	e.update(func(p *Progress) {
		p.Total += total
	})

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*models.Attachment
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			batch, err = tx.ListAttachments(ctx, filter, afterID, e.opts.BatchSize)
			return err
		})
		if err != nil {
			return oops.New(err, "failed to list attachments after %d", afterID)
		}
		if len(batch) == 0 {
			return nil
		}
		afterID = batch[len(batch)-1].ID

		p := pool.NewWithResults[outcome]().WithMaxGoroutines(e.opts.Concurrency)
		for _, att := range batch {
			p.Go(func() outcome {
				return e.process(ctx, ch.ID, att)
			})
		}
		outcomes := p.Wait()

		// Files fetched before a cancellation are still recorded.
		if err := e.apply(context.WithoutCancel(ctx), outcomes); err != nil {
			return err
		}
	}
}

func (e *engine) process(ctx context.Context, channelID int64, att *models.Attachment) outcome {
	log := logging.ExtractLogger(ctx).With().Int64("attachment", att.ID).Str("filename", att.Filename).Logger()
	rel := assets.RelativePath(channelID, att.ID, att.Filename)

	if att.DownloadStatus == models.DownloadDownloaded {
		existing := utils.OrDefault(utils.Deref(att.LocalPath), rel)
		if assets.Exists(e.opts.Root, existing) {
			return outcome{att: att, kind: outcomeCached}
		}
		log.Warn().Str("path", existing).Msg("downloaded file is missing from disk; reset its status to fetch it again")
		return outcome{att: att, kind: outcomeMissing}
	}

	if assets.Exists(e.opts.Root, rel) {
		hash, err := assets.HashFile(assets.FullPath(e.opts.Root, rel))
		if err != nil {
			return outcome{att: att, kind: outcomeFailed, err: err}
		}
		return outcome{att: att, kind: outcomeAdopted, localPath: rel, hash: hash}
	}

	content, err := e.fetch(ctx, att)
	if errors.Is(err, errGone) {
		log.Warn().Msg("File not found (404)")
		return outcome{att: att, kind: outcomeGone}
	} else if err != nil {
		return outcome{att: att, kind: outcomeFailed, err: err}
	}

	if err := assets.WriteFile(e.opts.Root, rel, content); err != nil {
		return outcome{att: att, kind: outcomeFailed, err: err}
	}
	if e.opts.Mirror != nil {
		if err := e.opts.Mirror.Put(ctx, rel, content, utils.Deref(att.ContentType)); err != nil {
			log.Warn().Err(err).Msg("failed to mirror attachment")
		}
	}
	log.Debug().Int("bytes", len(content)).Msg("Downloaded attachment")

	return outcome{
		att:       att,
		kind:      outcomeDownloaded,
		localPath: rel,
		hash:      assets.Hash(content),
		size:      len(content),
	}
}

// fetch tries the url and then the proxy url, up to MaxAttempts rounds,
// backing off exponentially between rounds. A 404 from either ends it.
func (e *engine) fetch(ctx context.Context, att *models.Attachment) ([]byte, error) {
	log := logging.ExtractLogger(ctx)

	urls := []string{att.URL}
	if att.ProxyURL != nil && *att.ProxyURL != "" && *att.ProxyURL != att.URL {
		urls = append(urls, *att.ProxyURL)
	}

	b := &backoff.Backoff{
		Min:    e.opts.RetryDelay,
		Max:    e.opts.RetryDelay * 32,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		for _, url := range urls {
			status, content, err := e.fetcher.FetchBinary(ctx, url)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				lastErr = err
				log.Warn().Err(err).Int("attempt", attempt).Str("url", url).Msg("download error")
			case status == 404:
				return nil, errGone
			case 200 <= status && status <= 299:
				return content, nil
			default:
				lastErr = fmt.Errorf("HTTP %d", status)
				log.Warn().Int("status", status).Int("attempt", attempt).Str("url", url).Msg("bad status downloading attachment")
			}
		}

		if attempt < e.opts.MaxAttempts {
			if err := utils.SleepContext(ctx, b.Duration()); err != nil {
				return nil, ctx.Err()
			}
		}
	}
	return nil, oops.New(lastErr, "failed after %d attempts", e.opts.MaxAttempts)
}

// apply records a batch's outcomes in one transaction.
func (e *engine) apply(ctx context.Context, outcomes []outcome) error {
	log := logging.ExtractLogger(ctx)

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		for _, o := range outcomes {
			var err error
			switch o.kind {
			case outcomeDownloaded, outcomeAdopted:
				err = tx.MarkAttachmentDownloaded(ctx, o.att.ID, o.localPath, o.hash)
			case outcomeGone:
				err = tx.MarkAttachmentStatus(ctx, o.att.ID, models.DownloadSkipped)
			case outcomeFailed:
				if errors.Is(o.err, context.Canceled) {
					continue
				}
				err = tx.MarkAttachmentStatus(ctx, o.att.ID, models.DownloadFailed)
			}
			if errors.Is(err, store.NotFound) {
				log.Warn().Int64("attachment", o.att.ID).Msg("attachment changed state during download")
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return oops.New(err, "failed to record download results")
	}

	e.update(func(p *Progress) {
		for _, o := range outcomes {
			switch o.kind {
			case outcomeDownloaded:
				p.Downloaded++
				p.Bytes += int64(o.size)
			case outcomeCached, outcomeAdopted:
				p.AlreadyCached++
			case outcomeMissing, outcomeGone:
				p.Skipped++
			case outcomeFailed:
				if errors.Is(o.err, context.Canceled) {
					continue
				}
				p.Failed++
				p.Errors.Add("%s: %v", o.att.Filename, o.err)
			}
		}
	})
	return nil
}
