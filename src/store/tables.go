package store

import (
	"github.com/wumpus-archiver/archiver/src/models"
)

type Table string

const (
	TableGuilds      Table = "guilds"
	TableUsers       Table = "users"
	TableChannels    Table = "channels"
	TableMessages    Table = "messages"
	TableAttachments Table = "attachments"
	TableReactions   Table = "reactions"
)

// Tables lists every table in foreign key order: each table only references
// tables before it.
var Tables = []Table{
	TableGuilds,
	TableUsers,
	TableChannels,
	TableMessages,
	TableAttachments,
	TableReactions,
}

func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Batch carries rows of a single table between stores. Only the slice
// matching Table is populated.
type Batch struct {
	Table Table

	Guilds      []*models.Guild
	Users       []*models.User
	Channels    []*models.Channel
	Messages    []*models.Message
	Attachments []*models.Attachment
	Reactions   []*models.Reaction
}

func (b Batch) Len() int {
	switch b.Table {
	case TableGuilds:
		return len(b.Guilds)
	case TableUsers:
		return len(b.Users)
	case TableChannels:
		return len(b.Channels)
	case TableMessages:
		return len(b.Messages)
	case TableAttachments:
		return len(b.Attachments)
	case TableReactions:
		return len(b.Reactions)
	}
	return 0
}

// LastID is the primary key of the final row, for keyset pagination.
func (b Batch) LastID() int64 {
	n := b.Len()
	if n == 0 {
		return 0
	}
	switch b.Table {
	case TableGuilds:
		return b.Guilds[n-1].ID
	case TableUsers:
		return b.Users[n-1].ID
	case TableChannels:
		return b.Channels[n-1].ID
	case TableMessages:
		return b.Messages[n-1].ID
	case TableAttachments:
		return b.Attachments[n-1].ID
	case TableReactions:
		return b.Reactions[n-1].ID
	}
	return 0
}
