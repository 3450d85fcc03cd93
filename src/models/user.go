package models

type User struct {
	ID            int64   `db:"id" gorm:"primaryKey;autoIncrement:false"`
	Username      string  `db:"username" gorm:"not null"`
	Discriminator *string `db:"discriminator"`
	DisplayName   *string `db:"display_name"`
	AvatarURL     *string `db:"avatar_url"`
	Bot           bool    `db:"bot" gorm:"not null"`
}

func (User) TableName() string { return "users" }
