// Package remotetest provides an in-memory remote.Client for engine tests.
package remotetest

import (
	"context"
	"sort"
	"sync"

	"github.com/wumpus-archiver/archiver/src/remote"
)

type Client struct {
	mu sync.Mutex

	GuildInfo remote.GuildDescriptor
	Channels  []remote.ChannelDescriptor
	// Threads and ArchivedThreads are keyed by parent channel id.
	Threads         map[int64][]remote.ChannelDescriptor
	ArchivedThreads map[int64][]remote.ChannelDescriptor
	Messages        map[int64][]remote.Message
	Report          remote.AccessReport

	// HistoryErrors makes every history page of a channel fail.
	HistoryErrors map[int64]error
	// ArchivedThreadErrors makes listing a parent's archived threads fail.
	ArchivedThreadErrors map[int64]error
	PageSize      int

	// OnPage runs before every history page is served.
	OnPage func(channelID int64)

	Closed       bool
	HistoryCalls int
}

var _ remote.Client = &Client{}

func NewClient(guild remote.GuildDescriptor) *Client {
	return &Client{
		GuildInfo:       guild,
		Threads:         make(map[int64][]remote.ChannelDescriptor),
		ArchivedThreads: make(map[int64][]remote.ChannelDescriptor),
		Messages:        make(map[int64][]remote.Message),
		HistoryErrors:   make(map[int64]error),
		PageSize:        100,

		ArchivedThreadErrors: make(map[int64]error),
	}
}

// Dialer returns a dialer that hands out c regardless of token.
func (c *Client) Dialer() remote.Dialer {
	return func(ctx context.Context, token string) (remote.Client, error) {
		return c, nil
	}
}

// AddMessages appends messages to a channel's history.
func (c *Client) AddMessages(channelID int64, msgs ...remote.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		m.ChannelID = channelID
		c.Messages[channelID] = append(c.Messages[channelID], m)
	}
}

func (c *Client) Guild(ctx context.Context, guildID int64) (remote.GuildDescriptor, error) {
	if guildID != c.GuildInfo.ID {
		return remote.GuildDescriptor{}, remote.ErrNotFound
	}
	return c.GuildInfo, nil
}

func (c *Client) ListChannels(ctx context.Context, guildID int64) ([]remote.ChannelDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]remote.ChannelDescriptor, len(c.Channels))
	for i, ch := range c.Channels {
		ch.LastMessageID = c.lastMessageID(ch.ID)
		res[i] = ch
	}
	return res, nil
}

func (c *Client) lastMessageID(channelID int64) *int64 {
	var last *int64
	for _, m := range c.Messages[channelID] {
		if last == nil || m.ID > *last {
			id := m.ID
			last = &id
		}
	}
	return last
}

func (c *Client) ListThreads(ctx context.Context, parent remote.ChannelDescriptor) ([]remote.ChannelDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.ChannelDescriptor(nil), c.Threads[parent.ID]...), nil
}

func (c *Client) ListArchivedThreads(ctx context.Context, parent remote.ChannelDescriptor) ([]remote.ChannelDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ArchivedThreadErrors[parent.ID]; err != nil {
		return nil, err
	}
	return append([]remote.ChannelDescriptor(nil), c.ArchivedThreads[parent.ID]...), nil
}

func (c *Client) ChannelHistory(channelID int64, after *int64, dir remote.Direction) remote.HistoryPager {
	return &pager{client: c, channelID: channelID, after: after, dir: dir}
}

func (c *Client) Access(ctx context.Context, guildID int64) (remote.AccessReport, error) {
	return c.Report, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

type pager struct {
	client    *Client
	channelID int64
	after     *int64
	dir       remote.Direction
	done      bool

	// Bound of the previous page: messages older than this for
	// NewestFirst, newer for OldestFirst.
	cursor *int64
}

func (p *pager) Next(ctx context.Context) ([]remote.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.client.OnPage != nil {
		p.client.OnPage(p.channelID)
	}

	c := p.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HistoryCalls++

	if err := c.HistoryErrors[p.channelID]; err != nil {
		return nil, err
	}
	if p.done {
		return nil, nil
	}

	var eligible []remote.Message
	for _, m := range c.Messages[p.channelID] {
		if p.after != nil && m.ID <= *p.after {
			continue
		}
		if p.cursor != nil {
			if p.dir == remote.NewestFirst && m.ID >= *p.cursor {
				continue
			}
			if p.dir == remote.OldestFirst && m.ID <= *p.cursor {
				continue
			}
		}
		eligible = append(eligible, m)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if p.dir == remote.NewestFirst {
			return eligible[i].ID > eligible[j].ID
		}
		return eligible[i].ID < eligible[j].ID
	})

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if len(eligible) <= pageSize {
		p.done = true
	} else {
		eligible = eligible[:pageSize]
	}
	if len(eligible) > 0 {
		last := eligible[len(eligible)-1].ID
		p.cursor = &last
	}
	return eligible, nil
}
