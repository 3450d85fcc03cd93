package discord

import (
	"context"
	"sort"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
)

type historyPager struct {
	c         *Client
	channelID string
	after     *int64
	dir       remote.Direction

	// cursor is the id to page from: "before" when fetching newest first,
	// "after" when fetching oldest first.
	cursor string
	done   bool
}

func (p *historyPager) Next(ctx context.Context) ([]remote.Message, error) {
	if p.done {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var before, after string
	switch p.dir {
	case remote.OldestFirst:
		after = p.cursor
		if after == "" {
			after = "0"
			if p.after != nil {
				after = formatID(*p.after)
			}
		}
	default:
		before = p.cursor
	}

	p.c.limiter.Take()
	msgs, err := p.c.s.ChannelMessages(p.channelID, pageSize, before, after, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, oops.New(mapError(err), "failed to fetch messages of channel %s", p.channelID)
	}
	if len(msgs) < pageSize {
		p.done = true
	}

	res := make([]remote.Message, 0, len(msgs))
	for _, msg := range msgs {
		m, err := convertMessage(msg)
		if err != nil {
			logging.ExtractLogger(ctx).Warn().Err(err).Str("message", msg.ID).Msg("skipping unreadable message")
			continue
		}
		if p.after != nil && m.ID <= *p.after {
			p.done = true
			continue
		}
		res = append(res, m)
	}

	// Discord returns pages newest first regardless of the query.
	sort.Slice(res, func(i, j int) bool {
		if p.dir == remote.OldestFirst {
			return res[i].ID < res[j].ID
		}
		return res[i].ID > res[j].ID
	})

	if len(msgs) > 0 {
		p.cursor = boundary(msgs, p.dir)
		if p.cursor == "" {
			p.done = true
		}
	}
	return res, nil
}

// boundary returns the id to continue paging from: the smallest id of the
// page when walking backwards and the largest when walking forwards.
func boundary(msgs []*discordgo.Message, dir remote.Direction) string {
	var best int64
	var bestStr string
	for _, msg := range msgs {
		id, err := strconv.ParseInt(msg.ID, 10, 64)
		if err != nil {
			continue
		}
		if bestStr == "" || (dir == remote.OldestFirst && id > best) || (dir != remote.OldestFirst && id < best) {
			best = id
			bestStr = msg.ID
		}
	}
	return bestStr
}
