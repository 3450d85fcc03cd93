package postgres

import (
	"context"
	"time"

	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/utils"
)

func (s *session) GetGuild(ctx context.Context, id int64) (*models.Guild, error) {
	guild, err := db.QueryOne[models.Guild](ctx, s.conn, `SELECT $columns FROM guilds WHERE id = $1`, id)
	if err != nil {
		return nil, oops.New(notFound(err), "failed to fetch guild %d", id)
	}
	return guild, nil
}

func (s *session) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Upsert guild
		INSERT INTO guilds (id, name, icon_url, owner_id, member_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			icon_url = EXCLUDED.icon_url,
			owner_id = EXCLUDED.owner_id,
			member_count = EXCLUDED.member_count
		`,
		guild.ID,
		guild.Name,
		guild.IconURL,
		guild.OwnerID,
		guild.MemberCount,
	)
	if err != nil {
		return oops.New(err, "failed to upsert guild %d", guild.ID)
	}
	return nil
}

func (s *session) RecordGuildScrape(ctx context.Context, guildID int64, at time.Time) error {
	tag, err := s.conn.Exec(ctx,
		`
		---- Record guild scrape
		UPDATE guilds
		SET
			scrape_count = scrape_count + 1,
			first_scraped_at = COALESCE(first_scraped_at, $2),
			last_scraped_at = $2
		WHERE id = $1
		`,
		guildID,
		at,
	)
	if err != nil {
		return oops.New(err, "failed to record scrape of guild %d", guildID)
	}
	if tag.RowsAffected() == 0 {
		return oops.New(store.NotFound, "guild %d does not exist", guildID)
	}
	return nil
}

func (s *session) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	channel, err := db.QueryOne[models.Channel](ctx, s.conn, `SELECT $columns FROM channels WHERE id = $1`, id)
	if err != nil {
		return nil, oops.New(notFound(err), "failed to fetch channel %d", id)
	}
	return channel, nil
}

func (s *session) ListChannels(ctx context.Context, guildID *int64) ([]*models.Channel, error) {
	var qb db.QueryBuilder
	qb.Add(`SELECT $columns FROM channels WHERE TRUE`)
	qb.AddIf(guildID != nil, `AND guild_id = $?`, utils.Deref(guildID))
	qb.Add(`ORDER BY guild_id, position, id`)

	channels, err := db.Query[models.Channel](ctx, s.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to list channels")
	}
	return channels, nil
}

func (s *session) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Upsert channel
		INSERT INTO channels (id, guild_id, name, type, topic, position, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			guild_id = EXCLUDED.guild_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			topic = EXCLUDED.topic,
			position = EXCLUDED.position,
			parent_id = EXCLUDED.parent_id
		`,
		channel.ID,
		channel.GuildID,
		channel.Name,
		channel.Type,
		channel.Topic,
		channel.Position,
		channel.ParentID,
	)
	if err != nil {
		return oops.New(err, "failed to upsert channel %d", channel.ID)
	}
	return nil
}

func (s *session) AdvanceChannelCursor(ctx context.Context, update store.CursorUpdate) error {
	// LEAST and GREATEST ignore NULLs, so a missing side keeps the other.
	tag, err := s.conn.Exec(ctx,
		`
		---- Advance channel cursor
		UPDATE channels
		SET
			first_message_id = LEAST(first_message_id, $2::BIGINT),
			last_message_id = GREATEST(last_message_id, $3::BIGINT),
			message_count = message_count + $4,
			last_scraped_at = $5
		WHERE id = $1
		`,
		update.ChannelID,
		update.FirstMessageID,
		update.LastMessageID,
		update.Added,
		update.ScrapedAt,
	)
	if err != nil {
		return oops.New(err, "failed to advance cursor of channel %d", update.ChannelID)
	}
	if tag.RowsAffected() == 0 {
		return oops.New(store.NotFound, "channel %d does not exist", update.ChannelID)
	}
	return nil
}

func (s *session) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Upsert user
		INSERT INTO users (id, username, discriminator, display_name, avatar_url, bot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			discriminator = EXCLUDED.discriminator,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			bot = EXCLUDED.bot
		`,
		user.ID,
		user.Username,
		user.Discriminator,
		user.DisplayName,
		user.AvatarURL,
		user.Bot,
	)
	if err != nil {
		return oops.New(err, "failed to upsert user %d", user.ID)
	}
	return nil
}

func (s *session) UpsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	// xmax is zero only for freshly inserted row versions.
	inserted, err := db.QueryOneScalar[bool](ctx, s.conn,
		`
		---- Upsert message
		INSERT INTO messages (
			id, channel_id, author_id, content, clean_content, created_at, edited_at,
			pinned, tts, mention_everyone, embeds, reference_id, scraped_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			content = EXCLUDED.content,
			clean_content = EXCLUDED.clean_content,
			edited_at = EXCLUDED.edited_at,
			pinned = EXCLUDED.pinned,
			tts = EXCLUDED.tts,
			mention_everyone = EXCLUDED.mention_everyone,
			embeds = EXCLUDED.embeds,
			reference_id = EXCLUDED.reference_id,
			scraped_at = EXCLUDED.scraped_at
		RETURNING (xmax = 0)
		`,
		msg.ID,
		msg.ChannelID,
		msg.AuthorID,
		msg.Content,
		msg.CleanContent,
		msg.CreatedAt,
		msg.EditedAt,
		msg.Pinned,
		msg.TTS,
		msg.MentionEveryone,
		msg.Embeds,
		msg.ReferenceID,
		msg.ScrapedAt,
	)
	if err != nil {
		return false, oops.New(err, "failed to upsert message %d", msg.ID)
	}
	return inserted, nil
}

func (s *session) UpsertAttachment(ctx context.Context, att *models.Attachment) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Upsert attachment
		INSERT INTO attachments (
			id, message_id, filename, content_type, size, url, proxy_url, width, height, download_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			url = EXCLUDED.url,
			proxy_url = EXCLUDED.proxy_url,
			width = EXCLUDED.width,
			height = EXCLUDED.height
		`,
		att.ID,
		att.MessageID,
		att.Filename,
		att.ContentType,
		att.Size,
		att.URL,
		att.ProxyURL,
		att.Width,
		att.Height,
		models.DownloadPending,
	)
	if err != nil {
		return oops.New(err, "failed to upsert attachment %d", att.ID)
	}
	return nil
}

func (s *session) UpsertReaction(ctx context.Context, reaction *models.Reaction) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Upsert reaction
		INSERT INTO reactions (message_id, emoji_name, emoji_id, animated, count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, emoji_name, emoji_id) DO UPDATE SET
			animated = EXCLUDED.animated,
			count = EXCLUDED.count
		`,
		reaction.MessageID,
		reaction.EmojiName,
		reaction.EmojiID,
		reaction.Animated,
		reaction.Count,
	)
	if err != nil {
		return oops.New(err, "failed to upsert reaction on message %d", reaction.MessageID)
	}
	return nil
}
