package models

import "time"

type Guild struct {
	ID             int64      `db:"id" gorm:"primaryKey;autoIncrement:false"`
	Name           string     `db:"name" gorm:"not null"`
	IconURL        *string    `db:"icon_url"`
	OwnerID        *int64     `db:"owner_id"`
	MemberCount    *int       `db:"member_count"`
	FirstScrapedAt *time.Time `db:"first_scraped_at"`
	LastScrapedAt  *time.Time `db:"last_scraped_at"`
	ScrapeCount    int        `db:"scrape_count" gorm:"not null"`
}

func (Guild) TableName() string { return "guilds" }
