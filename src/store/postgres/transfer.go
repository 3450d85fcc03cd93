package postgres

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/wumpus-archiver/archiver/src/db"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
)

func (s *session) CountRows(ctx context.Context, table store.Table) (int64, error) {
	if !table.Valid() {
		return 0, oops.New(nil, "unknown table %q", table)
	}
	count, err := db.QueryOneScalar[int64](ctx, s.conn, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
	if err != nil {
		return 0, oops.New(err, "failed to count rows in %s", table)
	}
	return count, nil
}

func (s *session) ReadBatch(ctx context.Context, table store.Table, afterID int64, limit int) (store.Batch, error) {
	batch := store.Batch{Table: table}
	var err error
	switch table {
	case store.TableGuilds:
		batch.Guilds, err = readPage[models.Guild](ctx, s.conn, table, afterID, limit)
	case store.TableUsers:
		batch.Users, err = readPage[models.User](ctx, s.conn, table, afterID, limit)
	case store.TableChannels:
		batch.Channels, err = readPage[models.Channel](ctx, s.conn, table, afterID, limit)
	case store.TableMessages:
		batch.Messages, err = readPage[models.Message](ctx, s.conn, table, afterID, limit)
	case store.TableAttachments:
		batch.Attachments, err = readPage[models.Attachment](ctx, s.conn, table, afterID, limit)
	case store.TableReactions:
		batch.Reactions, err = readPage[models.Reaction](ctx, s.conn, table, afterID, limit)
	default:
		return batch, oops.New(nil, "unknown table %q", table)
	}
	if err != nil {
		return batch, oops.New(err, "failed to read %s after id %d", table, afterID)
	}
	return batch, nil
}

func readPage[T any](ctx context.Context, conn db.ConnOrTx, table store.Table, afterID int64, limit int) ([]*T, error) {
	return db.Query[T](ctx, conn,
		fmt.Sprintf(`SELECT $columns FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, table),
		afterID,
		limit,
	)
}

func (s *session) WriteBatch(ctx context.Context, batch store.Batch) error {
	var err error
	switch batch.Table {
	case store.TableGuilds:
		err = putRows(ctx, s.conn, batch.Table, batch.Guilds)
	case store.TableUsers:
		err = putRows(ctx, s.conn, batch.Table, batch.Users)
	case store.TableChannels:
		err = putRows(ctx, s.conn, batch.Table, batch.Channels)
	case store.TableMessages:
		err = putRows(ctx, s.conn, batch.Table, batch.Messages)
	case store.TableAttachments:
		err = putRows(ctx, s.conn, batch.Table, batch.Attachments)
	case store.TableReactions:
		err = putRows(ctx, s.conn, batch.Table, batch.Reactions)
	default:
		return oops.New(nil, "unknown table %q", batch.Table)
	}
	if err != nil {
		return oops.New(err, "failed to write %d rows to %s", batch.Len(), batch.Table)
	}
	return nil
}

// putRows upserts rows by id, overwriting every column. The statements are
// sent as one pgx batch.
func putRows[T any](ctx context.Context, conn db.ConnOrTx, table store.Table, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}

	sql := upsertSQL(table, db.ColumnNames(reflect.TypeOf((*T)(nil)).Elem()))
	var batch pgx.Batch
	for _, row := range rows {
		batch.Queue(sql, db.ColumnValues(row)...)
	}

	results := conn.SendBatch(ctx, &batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	return results.Close()
}

func upsertSQL(table store.Table, columns []string) string {
	placeholders := make([]string, len(columns))
	var updates []string
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

func (s *session) ResetSequences(ctx context.Context) error {
	_, err := s.conn.Exec(ctx,
		`
		---- Reset reaction id sequence
		SELECT setval(
			pg_get_serial_sequence('reactions', 'id'),
			COALESCE((SELECT MAX(id) FROM reactions), 0) + 1,
			false
		)
		`,
	)
	if err != nil {
		return oops.New(err, "failed to reset reactions id sequence")
	}
	return nil
}
