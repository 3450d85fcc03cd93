package models

import "time"

// ChannelType uses the platform's numeric channel types.
type ChannelType int

const (
	ChannelTypeText          ChannelType = 0
	ChannelTypeVoice         ChannelType = 2
	ChannelTypeCategory      ChannelType = 4
	ChannelTypeNews          ChannelType = 5
	ChannelTypeNewsThread    ChannelType = 10
	ChannelTypePublicThread  ChannelType = 11
	ChannelTypePrivateThread ChannelType = 12
	ChannelTypeStage         ChannelType = 13
	ChannelTypeForum         ChannelType = 15
	ChannelTypeMedia         ChannelType = 16
)

func (t ChannelType) IsThread() bool {
	return t == ChannelTypeNewsThread || t == ChannelTypePublicThread || t == ChannelTypePrivateThread
}

// HasHistory reports whether channels of this type carry a message history
// of their own. Forum and media channels only hold threads.
func (t ChannelType) HasHistory() bool {
	switch t {
	case ChannelTypeText, ChannelTypeVoice, ChannelTypeNews, ChannelTypeStage:
		return true
	}
	return t.IsThread()
}

// HasThreads reports whether threads can be created under channels of this
// type.
func (t ChannelType) HasThreads() bool {
	return t == ChannelTypeText || t == ChannelTypeNews || t == ChannelTypeForum || t == ChannelTypeMedia
}

func (t ChannelType) String() string {
	switch t {
	case ChannelTypeText:
		return "text"
	case ChannelTypeVoice:
		return "voice"
	case ChannelTypeCategory:
		return "category"
	case ChannelTypeNews:
		return "news"
	case ChannelTypeStage:
		return "stage"
	case ChannelTypeForum:
		return "forum"
	case ChannelTypeMedia:
		return "media"
	}
	if t.IsThread() {
		return "thread"
	}
	return "unknown"
}

type Channel struct {
	ID       int64       `db:"id" gorm:"primaryKey;autoIncrement:false"`
	GuildID  int64       `db:"guild_id" gorm:"not null;index"`
	Name     string      `db:"name" gorm:"not null"`
	Type     ChannelType `db:"type" gorm:"not null"`
	Topic    *string     `db:"topic"`
	Position int         `db:"position" gorm:"not null"`
	ParentID *int64      `db:"parent_id"`

	// FirstMessageID, LastMessageID and MessageCount form the incremental
	// sync cursor. They are only ever moved forward by AdvanceChannelCursor.
	FirstMessageID *int64     `db:"first_message_id"`
	LastMessageID  *int64     `db:"last_message_id"`
	MessageCount   int        `db:"message_count" gorm:"not null"`
	LastScrapedAt  *time.Time `db:"last_scraped_at"`
}

func (Channel) TableName() string { return "channels" }
