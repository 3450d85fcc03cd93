package models

import "time"

type Message struct {
	ID           int64  `db:"id" gorm:"primaryKey;autoIncrement:false"`
	ChannelID    int64  `db:"channel_id" gorm:"not null;index"`
	AuthorID     *int64 `db:"author_id" gorm:"index"`
	Content      string `db:"content" gorm:"not null"`
	CleanContent string `db:"clean_content" gorm:"not null"`

	CreatedAt time.Time  `db:"created_at" gorm:"column:created_at;not null;autoCreateTime:false"`
	EditedAt  *time.Time `db:"edited_at"`

	Pinned          bool `db:"pinned" gorm:"not null"`
	TTS             bool `db:"tts" gorm:"column:tts;not null"`
	MentionEveryone bool `db:"mention_everyone" gorm:"not null"`

	// JSON array of embed objects as the platform sent them.
	Embeds      *string   `db:"embeds"`
	ReferenceID *int64    `db:"reference_id"`
	ScrapedAt   time.Time `db:"scraped_at" gorm:"not null"`
}

func (Message) TableName() string { return "messages" }
