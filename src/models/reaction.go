package models

// Reaction holds the aggregate count for one emoji on one message. EmojiID is
// 0 for unicode emoji.
type Reaction struct {
	ID        int64  `db:"id" gorm:"primaryKey;autoIncrement"`
	MessageID int64  `db:"message_id" gorm:"not null;uniqueIndex:reactions_message_emoji"`
	EmojiName string `db:"emoji_name" gorm:"not null;uniqueIndex:reactions_message_emoji"`
	EmojiID   int64  `db:"emoji_id" gorm:"not null;uniqueIndex:reactions_message_emoji"`
	Animated  bool   `db:"animated" gorm:"not null"`
	Count     int    `db:"count" gorm:"not null"`
}

func (Reaction) TableName() string { return "reactions" }
