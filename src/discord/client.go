// Package discord implements remote.Client on top of discordgo's REST API.
// The gateway is never opened; everything the archiver needs is available
// over REST.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"go.uber.org/ratelimit"
)

const (
	BotName = "WumpusArchiver"

	UserAgentURL     = "https://github.com/wumpus-archiver/archiver"
	UserAgentVersion = "1.0"

	// Largest page the messages and archived threads endpoints return.
	pageSize = 100
)

var UserAgent = fmt.Sprintf("DiscordBot (%s, %s) %s", UserAgentURL, UserAgentVersion, BotName)

type Client struct {
	s       *discordgo.Session
	self    *discordgo.User
	limiter ratelimit.Limiter
}

var _ remote.Client = &Client{}

// NewDialer returns a dialer for bot tokens. requestDelay is the minimum
// spacing of history and thread page requests, on top of discordgo's own
// bucket handling.
func NewDialer(requestDelay time.Duration) remote.Dialer {
	return func(ctx context.Context, token string) (remote.Client, error) {
		return Dial(ctx, token, requestDelay)
	}
}

func Dial(ctx context.Context, token string, requestDelay time.Duration) (*Client, error) {
	if token == "" {
		return nil, oops.New(remote.ErrUnauthorized, "no bot token configured")
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, oops.New(err, "failed to create Discord session")
	}
	s.UserAgent = UserAgent
	s.Client = &http.Client{Timeout: 30 * time.Second}

	self, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, oops.New(mapError(err), "failed to authenticate with Discord")
	}
	logging.ExtractLogger(ctx).Info().
		Str("user", self.Username).
		Str("id", self.ID).
		Msg("Connected to Discord")

	limiter := ratelimit.NewUnlimited()
	if requestDelay > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(requestDelay), ratelimit.WithoutSlack)
	}

	return &Client{s: s, self: self, limiter: limiter}, nil
}

func (c *Client) Guild(ctx context.Context, guildID int64) (remote.GuildDescriptor, error) {
	g, err := c.s.GuildWithCounts(formatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return remote.GuildDescriptor{}, oops.New(mapError(err), "failed to fetch guild %d", guildID)
	}
	return convertGuild(g)
}

func (c *Client) ListChannels(ctx context.Context, guildID int64) ([]remote.ChannelDescriptor, error) {
	channels, err := c.s.GuildChannels(formatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, oops.New(mapError(err), "failed to list channels of guild %d", guildID)
	}
	return convertChannels(channels)
}

// ListThreads filters the guild's active threads down to those under
// parent. Discord only offers the listing per guild.
func (c *Client) ListThreads(ctx context.Context, parent remote.ChannelDescriptor) ([]remote.ChannelDescriptor, error) {
	c.limiter.Take()
	list, err := c.s.GuildThreadsActive(formatID(parent.GuildID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, oops.New(mapError(err), "failed to list active threads of guild %d", parent.GuildID)
	}

	parentID := formatID(parent.ID)
	var threads []*discordgo.Channel
	for _, t := range list.Threads {
		if t.ParentID == parentID {
			threads = append(threads, t)
		}
	}
	return convertChannels(threads)
}

func (c *Client) ListArchivedThreads(ctx context.Context, parent remote.ChannelDescriptor) ([]remote.ChannelDescriptor, error) {
	var threads []*discordgo.Channel
	var before *time.Time
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.limiter.Take()
		list, err := c.s.ThreadsArchived(formatID(parent.ID), before, pageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, oops.New(mapError(err), "failed to list archived threads of channel %d", parent.ID)
		}
		threads = append(threads, list.Threads...)

		if !list.HasMore || len(list.Threads) == 0 {
			break
		}
		last := list.Threads[len(list.Threads)-1]
		if last.ThreadMetadata == nil {
			break
		}
		archivedAt := last.ThreadMetadata.ArchiveTimestamp
		before = &archivedAt
	}
	return convertChannels(threads)
}

func (c *Client) ChannelHistory(channelID int64, after *int64, dir remote.Direction) remote.HistoryPager {
	return &historyPager{
		c:         c,
		channelID: formatID(channelID),
		after:     after,
		dir:       dir,
	}
}

func (c *Client) Close() error {
	return c.s.Close()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
