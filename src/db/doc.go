/*
This package contains lowish-level APIs for making queries to the Postgres
archive store. It streamlines the process of mapping query results to Go types,
while allowing you to write arbitrary SQL queries.

Arguments are provided using placeholders like $1, $2, etc. and are passed
straight through to pgx.

	ids, err := db.QueryScalar[int64](ctx, conn,
		`
		SELECT id
		FROM channels
		WHERE guild_id = $1 AND last_scraped_at IS NULL
		`,
		guildID,
	)

To query multiple columns at once, use a struct type with `db:"column_name"`
tags, and the special $columns placeholder:

	channels, err := db.Query[models.Channel](ctx, conn, `SELECT $columns FROM channels`)
	// Resulting query:
	// SELECT id, guild_id, name, ... FROM channels

When a JOIN makes column names ambiguous, give the placeholder a table prefix
with $columns{prefix}:

	atts, err := db.Query[models.Attachment](ctx, conn,
		`
		SELECT $columns{a}
		FROM attachments AS a JOIN messages AS m ON m.id = a.message_id
		WHERE m.channel_id = $1
		`,
		channelID,
	)

Struct rows are scanned with pgx.RowToAddrOfStructByName, so every tagged
field must have a matching column in the result.

For queries built up piece by piece, QueryBuilder numbers `$?` placeholders in
the order the chunks are added.
*/
package db
