package scrape

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/store"
)

type engine struct {
	client remote.Client
	store  store.Store
	opts   Options
	update func(func(p *Progress))
	// seal stops cancel requests from taking effect. It reports false if the
	// scrape was cancelled first.
	seal func() bool

	channelsScraped int
}

func (e *engine) addError(format string, args ...any) {
	e.update(func(p *Progress) {
		p.Errors.Add(format, args...)
	})
}

func (e *engine) scrapeGuild(ctx context.Context, params Params) error {
	log := logging.ExtractLogger(ctx)

	guild, err := e.client.Guild(ctx, params.GuildID)
	if err != nil {
		return oops.New(err, "failed to fetch guild %d", params.GuildID)
	}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.UpsertGuild(ctx, guild.Model())
	})
	if err != nil {
		return oops.New(err, "failed to save guild %d", params.GuildID)
	}
	log.Info().Str("guild", guild.Name).Msg("Scraping guild")

	e.logAccess(ctx, params.GuildID)

	targets, err := e.targets(ctx, params)
	if err != nil {
		return err
	}
	e.update(func(p *Progress) {
		p.ChannelsTotal = len(targets)
	})

	for _, ch := range targets {
		if ctx.Err() != nil {
			break
		}

		e.update(func(p *Progress) {
			p.CurrentChannel = "#" + ch.Name
		})
		err := e.scrapeChannel(ctx, ch)
		e.update(func(p *Progress) {
			p.ChannelsDone++
		})

		switch {
		case err == nil:
			e.channelsScraped++
		case ctx.Err() != nil:
			// Cancelled mid-channel. Whatever was saved stays saved.
		case errors.Is(err, remote.ErrUnauthorized):
			return err
		case errors.Is(err, remote.ErrForbidden):
			log.Warn().Int64("channel", ch.ID).Str("name", ch.Name).Msg("no permission to read channel history")
			e.addError("No permission to scrape #%s", ch.Name)
		default:
			log.Error().Err(err).Int64("channel", ch.ID).Msg("failed to scrape channel")
			e.addError("Error scraping #%s: %v", ch.Name, err)
		}
	}

	e.update(func(p *Progress) {
		p.CurrentChannel = ""
	})
	if !e.seal() {
		return context.Canceled
	}

	// Past this point the scrape completes or fails, never cancels.
	final := context.WithoutCancel(ctx)
	err = e.store.InTx(final, func(tx store.Tx) error {
		return tx.RecordGuildScrape(final, params.GuildID, time.Now().UTC())
	})
	if err != nil {
		return oops.New(err, "failed to record scrape of guild %d", params.GuildID)
	}
	return nil
}

// logAccess reports what the credential can see. It never stops the scrape.
func (e *engine) logAccess(ctx context.Context, guildID int64) {
	log := logging.ExtractLogger(ctx)

	report, err := e.client.Access(ctx, guildID)
	if err != nil {
		log.Warn().Err(err).Msg("could not check permissions")
		return
	}
	if report.Elevated {
		log.Info().Msg("Bot has elevated access to the guild")
		return
	}
	for _, ch := range report.Unreadable {
		log.Info().Int64("channel", ch.ID).Str("name", ch.Name).Msg("Channel is visible but its history cannot be read")
	}
	log.Info().Int("unreadable", len(report.Unreadable)).Msg("Checked channel permissions")
}

// targets lists the channels to scrape: channels with a history of their own,
// each followed by its active and archived threads.
func (e *engine) targets(ctx context.Context, params Params) ([]remote.ChannelDescriptor, error) {
	log := logging.ExtractLogger(ctx)

	channels, err := e.client.ListChannels(ctx, params.GuildID)
	if err != nil {
		return nil, oops.New(err, "failed to list channels of guild %d", params.GuildID)
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Position < channels[j].Position
	})

	wanted := make(map[int64]bool, len(params.ChannelIDs))
	for _, id := range params.ChannelIDs {
		wanted[id] = true
	}
	all := len(wanted) == 0

	seen := make(map[int64]bool)
	found := make(map[int64]bool)
	var res []remote.ChannelDescriptor
	add := func(ch remote.ChannelDescriptor) {
		if !seen[ch.ID] {
			seen[ch.ID] = true
			res = append(res, ch)
		}
	}

	for _, ch := range channels {
		if ch.Type == models.ChannelTypeCategory {
			continue
		}
		if !all && !wanted[ch.ID] {
			continue
		}
		found[ch.ID] = true
		if ch.Type.HasHistory() {
			add(ch)
		}
		if !ch.Type.HasThreads() {
			continue
		}

		active, err := e.client.ListThreads(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int64("channel", ch.ID).Msg("failed to list active threads")
			e.addError("Could not list threads in #%s: %v", ch.Name, err)
		}
		archived, err := e.client.ListArchivedThreads(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, remote.ErrForbidden) {
				log.Info().Int64("channel", ch.ID).Msg("no access to archived threads")
				e.addError("No permission to list archived threads in #%s", ch.Name)
			} else {
				log.Warn().Err(err).Int64("channel", ch.ID).Msg("failed to list archived threads")
				e.addError("Could not list archived threads in #%s: %v", ch.Name, err)
			}
		}
		for _, thread := range append(active, archived...) {
			add(thread)
		}
	}

	for _, id := range params.ChannelIDs {
		if !found[id] {
			e.addError("Channel %d not found in guild", id)
		}
	}
	return res, nil
}

// channelStats accumulates what was persisted from one channel.
type channelStats struct {
	first, last *int64
	saved       int
	inserted    int
	attachments int
}

func (s *channelStats) merge(o channelStats) {
	if o.first != nil && (s.first == nil || *o.first < *s.first) {
		s.first = o.first
	}
	if o.last != nil && (s.last == nil || *o.last > *s.last) {
		s.last = o.last
	}
	s.saved += o.saved
	s.inserted += o.inserted
	s.attachments += o.attachments
}

func (s *channelStats) observe(id int64) {
	if s.first == nil || id < *s.first {
		s.first = &id
	}
	if s.last == nil || id > *s.last {
		s.last = &id
	}
}

func (e *engine) scrapeChannel(ctx context.Context, ch remote.ChannelDescriptor) error {
	log := logging.ExtractLogger(ctx).With().Int64("channel", ch.ID).Str("name", ch.Name).Logger()

	// The channel row is committed before any messages so that its
	// metadata is current even if the history fetch fails.
	var cursor *int64
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetChannel(ctx, ch.ID)
		if err == nil {
			cursor = existing.LastMessageID
		} else if !errors.Is(err, store.NotFound) {
			return err
		}
		return tx.UpsertChannel(ctx, ch.Model())
	})
	if err != nil {
		return oops.New(err, "failed to save channel %d", ch.ID)
	}

	dir := remote.NewestFirst
	if cursor != nil {
		dir = remote.OldestFirst
	}
	log.Debug().Stringer("direction", dir).Interface("after", cursor).Msg("Fetching history")

	var stats channelStats
	var pending []remote.Message
	flush := func(ctx context.Context) error {
		if len(pending) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			// Kept for the final flush below.
			return err
		}
		batch, err := e.saveBatch(ctx, ch, pending)
		pending = pending[:0]
		if err != nil {
			return err
		}
		stats.merge(batch)
		e.update(func(p *Progress) {
			p.MessagesScraped += batch.saved
			p.AttachmentsFound += batch.attachments
		})
		return nil
	}

	pager := e.client.ChannelHistory(ch.ID, cursor, dir)
	var fetchErr error
	for {
		if err := ctx.Err(); err != nil {
			fetchErr = err
			break
		}
		page, err := pager.Next(ctx)
		if err != nil {
			fetchErr = err
			break
		}
		if len(page) == 0 {
			break
		}
		pending = append(pending, page...)
		if len(pending) >= e.opts.BatchSize {
			if err := flush(ctx); err != nil {
				fetchErr = err
				break
			}
		}
	}

	// Messages already fetched are saved even if the scrape was cancelled
	// meanwhile.
	bookkeeping := context.WithoutCancel(ctx)
	if err := flush(bookkeeping); err != nil && fetchErr == nil {
		fetchErr = err
	}

	update := store.CursorUpdate{
		ChannelID: ch.ID,
		Added:     stats.inserted,
		ScrapedAt: time.Now().UTC(),
	}
	// A full scrape walks backwards from the newest message, so a partial
	// one must not leave a cursor behind or the older history would never
	// be fetched.
	if fetchErr == nil || dir == remote.OldestFirst {
		update.FirstMessageID = stats.first
		update.LastMessageID = stats.last
	}
	err = e.store.InTx(bookkeeping, func(tx store.Tx) error {
		return tx.AdvanceChannelCursor(bookkeeping, update)
	})
	if err != nil {
		return oops.New(err, "failed to update cursor of channel %d", ch.ID)
	}

	if fetchErr != nil {
		return oops.New(fetchErr, "failed to fetch history of channel %d", ch.ID)
	}
	log.Info().Int("messages", stats.saved).Int("new", stats.inserted).Msg("Scraped channel")
	return nil
}

// saveBatch writes messages in one transaction, giving each its own
// savepoint so one bad message does not lose the rest.
func (e *engine) saveBatch(ctx context.Context, ch remote.ChannelDescriptor, msgs []remote.Message) (channelStats, error) {
	log := logging.ExtractLogger(ctx)
	now := time.Now().UTC()

	var stats channelStats
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		stats = channelStats{}
		for _, msg := range msgs {
			var inserted bool
			err := tx.Savepoint(ctx, func(tx store.Tx) error {
				var err error
				inserted, err = saveMessage(ctx, tx, ch.ID, msg, now)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.Error().Err(err).Int64("message", msg.ID).Msg("failed to save message")
				e.addError("Failed to save message %d in #%s: %v", msg.ID, ch.Name, err)
				continue
			}

			stats.observe(msg.ID)
			stats.saved++
			stats.attachments += len(msg.Attachments)
			if inserted {
				stats.inserted++
			}
		}
		return nil
	})
	if err != nil {
		return channelStats{}, oops.New(err, "failed to save messages of channel %d", ch.ID)
	}
	return stats, nil
}

func saveMessage(ctx context.Context, tx store.Tx, channelID int64, msg remote.Message, now time.Time) (bool, error) {
	if msg.Author != nil {
		if err := tx.UpsertUser(ctx, msg.Author.Model()); err != nil {
			return false, err
		}
	}

	msg.ChannelID = channelID
	inserted, err := tx.UpsertMessage(ctx, msg.Model(now))
	if err != nil {
		return false, err
	}

	for _, att := range msg.Attachments {
		if err := tx.UpsertAttachment(ctx, att.Model(msg.ID)); err != nil {
			return false, err
		}
	}
	for _, r := range msg.Reactions {
		if err := tx.UpsertReaction(ctx, r.Model(msg.ID)); err != nil {
			return false, err
		}
	}
	return inserted, nil
}
