package migrations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wumpus-archiver/archiver/src/migration/types"
)

func init() {
	registerMigration(CreateArchiveTables{})
}

type CreateArchiveTables struct{}

func (m CreateArchiveTables) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2025, 6, 2, 18, 15, 0, 0, time.UTC))
}

func (m CreateArchiveTables) Name() string {
	return "CreateArchiveTables"
}

func (m CreateArchiveTables) Description() string {
	return "Create the guild, user, channel, message, attachment, and reaction tables"
}

func (m CreateArchiveTables) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE guilds (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			icon_url TEXT,
			owner_id BIGINT,
			member_count INTEGER,
			first_scraped_at TIMESTAMP WITH TIME ZONE,
			last_scraped_at TIMESTAMP WITH TIME ZONE,
			scrape_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			discriminator TEXT,
			display_name TEXT,
			avatar_url TEXT,
			bot BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE channels (
			id BIGINT PRIMARY KEY,
			guild_id BIGINT NOT NULL REFERENCES guilds (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			type INTEGER NOT NULL,
			topic TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			parent_id BIGINT,
			first_message_id BIGINT,
			last_message_id BIGINT,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_scraped_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX channels_guild_id ON channels (guild_id);

		CREATE TABLE messages (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL REFERENCES channels (id) ON DELETE CASCADE,
			author_id BIGINT REFERENCES users (id) ON DELETE SET NULL,
			content TEXT NOT NULL DEFAULT '',
			clean_content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			edited_at TIMESTAMP WITH TIME ZONE,
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			tts BOOLEAN NOT NULL DEFAULT FALSE,
			mention_everyone BOOLEAN NOT NULL DEFAULT FALSE,
			embeds TEXT,
			reference_id BIGINT,
			scraped_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX messages_channel_id ON messages (channel_id);
		CREATE INDEX messages_author_id ON messages (author_id);

		CREATE TABLE attachments (
			id BIGINT PRIMARY KEY,
			message_id BIGINT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			content_type TEXT,
			size INTEGER NOT NULL DEFAULT 0,
			url TEXT NOT NULL,
			proxy_url TEXT,
			width INTEGER,
			height INTEGER,
			local_path TEXT,
			download_status TEXT NOT NULL DEFAULT 'pending',
			content_hash TEXT
		);
		CREATE INDEX attachments_message_id ON attachments (message_id);

		CREATE TABLE reactions (
			id BIGSERIAL PRIMARY KEY,
			message_id BIGINT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
			emoji_name TEXT NOT NULL,
			emoji_id BIGINT NOT NULL DEFAULT 0,
			animated BOOLEAN NOT NULL DEFAULT FALSE,
			count INTEGER NOT NULL DEFAULT 0,
			CONSTRAINT reactions_message_emoji UNIQUE (message_id, emoji_name, emoji_id)
		);
		`,
	)
	return err
}

func (m CreateArchiveTables) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE reactions;
		DROP TABLE attachments;
		DROP TABLE messages;
		DROP TABLE channels;
		DROP TABLE users;
		DROP TABLE guilds;
		`,
	)
	return err
}
