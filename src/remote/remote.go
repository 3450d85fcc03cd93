// Package remote describes what the ingestion engines need from the chat
// platform, independent of any client library.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/wumpus-archiver/archiver/src/models"
)

var (
	// ErrForbidden means the credential cannot see or read the resource.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	// ErrUnauthorized means the credential itself was rejected. Nothing
	// else will work with it, so engines treat it as fatal.
	ErrUnauthorized = errors.New("unauthorized")
)

type GuildDescriptor struct {
	ID          int64
	Name        string
	IconURL     *string
	OwnerID     *int64
	MemberCount *int
}

type ChannelDescriptor struct {
	ID       int64
	GuildID  int64
	Name     string
	Type     models.ChannelType
	Topic    *string
	Position int
	ParentID *int64

	// LastMessageID is the platform's id of the newest message, if known.
	LastMessageID *int64
}

type Author struct {
	ID            int64
	Username      string
	Discriminator *string
	DisplayName   *string
	AvatarURL     *string
	Bot           bool
}

type Message struct {
	ID           int64
	ChannelID    int64
	Author       *Author
	Content      string
	CleanContent string

	CreatedAt time.Time
	EditedAt  *time.Time

	Pinned          bool
	TTS             bool
	MentionEveryone bool

	// Embeds is the JSON encoding of the message's embeds, or nil if it has
	// none.
	Embeds      *string
	ReferenceID *int64

	Attachments []Attachment
	Reactions   []Reaction
}

type Attachment struct {
	ID          int64
	Filename    string
	ContentType *string
	Size        int
	URL         string
	ProxyURL    *string
	Width       *int
	Height      *int
}

type Reaction struct {
	EmojiName string
	// EmojiID is 0 for unicode emoji.
	EmojiID  int64
	Animated bool
	Count    int
}

type Direction int

const (
	NewestFirst Direction = iota
	OldestFirst
)

func (d Direction) String() string {
	if d == OldestFirst {
		return "oldest-first"
	}
	return "newest-first"
}

// A HistoryPager walks a channel's history one page at a time. Next returns
// an empty page once the history is exhausted.
type HistoryPager interface {
	Next(ctx context.Context) ([]Message, error)
}

// AccessReport describes what the credential can see in a guild.
type AccessReport struct {
	// Elevated is true for administrators and the guild owner.
	Elevated bool
	// Unreadable lists channels that are visible but whose history cannot
	// be read.
	Unreadable []ChannelDescriptor
}

type Client interface {
	Guild(ctx context.Context, guildID int64) (GuildDescriptor, error)
	ListChannels(ctx context.Context, guildID int64) ([]ChannelDescriptor, error)
	// ListThreads returns the active threads under a channel.
	ListThreads(ctx context.Context, parent ChannelDescriptor) ([]ChannelDescriptor, error)
	ListArchivedThreads(ctx context.Context, parent ChannelDescriptor) ([]ChannelDescriptor, error)
	// ChannelHistory pages through messages strictly after the given id, or
	// through the entire history if after is nil.
	ChannelHistory(channelID int64, after *int64, dir Direction) HistoryPager
	Access(ctx context.Context, guildID int64) (AccessReport, error)
	Close() error
}

type Dialer func(ctx context.Context, token string) (Client, error)

type Fetcher interface {
	// FetchBinary performs a GET. A non-2xx status is not an error.
	FetchBinary(ctx context.Context, url string) (status int, body []byte, err error)
}
