package sqlite

import (
	"context"
	"time"

	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func upsertOn(columns []string, updates ...string) clause.OnConflict {
	conflict := clause.OnConflict{DoUpdates: clause.AssignmentColumns(updates)}
	for _, col := range columns {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: col})
	}
	return conflict
}

func (s *session) GetGuild(ctx context.Context, id int64) (*models.Guild, error) {
	var guild models.Guild
	if err := s.db.WithContext(ctx).Take(&guild, "id = ?", id).Error; err != nil {
		return nil, oops.New(notFound(err), "failed to fetch guild %d", id)
	}
	return &guild, nil
}

func (s *session) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	row := models.Guild{
		ID:          guild.ID,
		Name:        guild.Name,
		IconURL:     guild.IconURL,
		OwnerID:     guild.OwnerID,
		MemberCount: guild.MemberCount,
	}
	err := s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"id"}, "name", "icon_url", "owner_id", "member_count")).
		Create(&row).Error
	if err != nil {
		return oops.New(err, "failed to upsert guild %d", guild.ID)
	}
	return nil
}

func (s *session) RecordGuildScrape(ctx context.Context, guildID int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Guild{}).Where("id = ?", guildID).Updates(map[string]interface{}{
		"scrape_count":     gorm.Expr("scrape_count + 1"),
		"first_scraped_at": gorm.Expr("COALESCE(first_scraped_at, ?)", at),
		"last_scraped_at":  at,
	})
	if res.Error != nil {
		return oops.New(res.Error, "failed to record scrape of guild %d", guildID)
	}
	if res.RowsAffected == 0 {
		return oops.New(store.NotFound, "guild %d does not exist", guildID)
	}
	return nil
}

func (s *session) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	var channel models.Channel
	if err := s.db.WithContext(ctx).Take(&channel, "id = ?", id).Error; err != nil {
		return nil, oops.New(notFound(err), "failed to fetch channel %d", id)
	}
	return &channel, nil
}

func (s *session) ListChannels(ctx context.Context, guildID *int64) ([]*models.Channel, error) {
	q := s.db.WithContext(ctx).Order("guild_id, position, id")
	if guildID != nil {
		q = q.Where("guild_id = ?", *guildID)
	}
	var channels []*models.Channel
	if err := q.Find(&channels).Error; err != nil {
		return nil, oops.New(err, "failed to list channels")
	}
	return channels, nil
}

func (s *session) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	row := models.Channel{
		ID:       channel.ID,
		GuildID:  channel.GuildID,
		Name:     channel.Name,
		Type:     channel.Type,
		Topic:    channel.Topic,
		Position: channel.Position,
		ParentID: channel.ParentID,
	}
	err := s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"id"}, "guild_id", "name", "type", "topic", "position", "parent_id")).
		Create(&row).Error
	if err != nil {
		return oops.New(err, "failed to upsert channel %d", channel.ID)
	}
	return nil
}

func (s *session) AdvanceChannelCursor(ctx context.Context, update store.CursorUpdate) error {
	// SQLite's two-argument MIN/MAX return NULL if either side is NULL, so
	// fall back to whichever side is present.
	res := s.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", update.ChannelID).Updates(map[string]interface{}{
		"first_message_id": gorm.Expr("COALESCE(MIN(first_message_id, ?), first_message_id, ?)", update.FirstMessageID, update.FirstMessageID),
		"last_message_id":  gorm.Expr("COALESCE(MAX(last_message_id, ?), last_message_id, ?)", update.LastMessageID, update.LastMessageID),
		"message_count":    gorm.Expr("message_count + ?", update.Added),
		"last_scraped_at":  update.ScrapedAt,
	})
	if res.Error != nil {
		return oops.New(res.Error, "failed to advance cursor of channel %d", update.ChannelID)
	}
	if res.RowsAffected == 0 {
		return oops.New(store.NotFound, "channel %d does not exist", update.ChannelID)
	}
	return nil
}

func (s *session) UpsertUser(ctx context.Context, user *models.User) error {
	row := *user
	err := s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"id"}, "username", "discriminator", "display_name", "avatar_url", "bot")).
		Create(&row).Error
	if err != nil {
		return oops.New(err, "failed to upsert user %d", user.ID)
	}
	return nil
}

func (s *session) UpsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	var existing int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", msg.ID).Count(&existing).Error
	if err != nil {
		return false, oops.New(err, "failed to look up message %d", msg.ID)
	}

	row := *msg
	err = s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"id"},
			"author_id", "content", "clean_content", "edited_at", "pinned", "tts",
			"mention_everyone", "embeds", "reference_id", "scraped_at",
		)).
		Create(&row).Error
	if err != nil {
		return false, oops.New(err, "failed to upsert message %d", msg.ID)
	}
	return existing == 0, nil
}

func (s *session) UpsertAttachment(ctx context.Context, att *models.Attachment) error {
	row := *att
	row.LocalPath = nil
	row.ContentHash = nil
	row.DownloadStatus = models.DownloadPending
	err := s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"id"}, "filename", "content_type", "size", "url", "proxy_url", "width", "height")).
		Create(&row).Error
	if err != nil {
		return oops.New(err, "failed to upsert attachment %d", att.ID)
	}
	return nil
}

func (s *session) UpsertReaction(ctx context.Context, reaction *models.Reaction) error {
	row := *reaction
	row.ID = 0
	err := s.db.WithContext(ctx).
		Clauses(upsertOn([]string{"message_id", "emoji_name", "emoji_id"}, "animated", "count")).
		Create(&row).Error
	if err != nil {
		return oops.New(err, "failed to upsert reaction on message %d", reaction.MessageID)
	}
	return nil
}
