package scrape

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/store"
)

type SyncStatus string

const (
	SyncNew            SyncStatus = "new"
	SyncNeverScraped   SyncStatus = "never_scraped"
	SyncHasNewMessages SyncStatus = "has_new_messages"
	SyncUpToDate       SyncStatus = "up_to_date"
)

func (s SyncStatus) NeedsSync() bool {
	return s != SyncUpToDate
}

type ChannelSync struct {
	ID     int64
	Name   string
	Type   models.ChannelType
	Status SyncStatus

	StoredLastMessageID *int64
	LiveLastMessageID   *int64
	MessageCount        int
}

type Analysis struct {
	GuildID   int64
	Channels  []ChannelSync
	Summary   map[SyncStatus]int
	NeedsSync []int64
}

// Analyze reports, per channel, whether the store is behind the platform.
// Categories and channels without a history of their own are left out.
func Analyze(ctx context.Context, client remote.Client, st store.Store, guildID int64) (Analysis, error) {
	live, err := client.ListChannels(ctx, guildID)
	if err != nil {
		return Analysis{}, oops.New(err, "failed to list channels of guild %d", guildID)
	}

	stored := make(map[int64]*models.Channel)
	err = st.InTx(ctx, func(tx store.Tx) error {
		channels, err := tx.ListChannels(ctx, &guildID)
		if err != nil {
			return err
		}
		for _, ch := range channels {
			stored[ch.ID] = ch
		}
		return nil
	})
	if err != nil {
		return Analysis{}, oops.New(err, "failed to load stored channels of guild %d", guildID)
	}

	res := Analysis{
		GuildID: guildID,
		Summary: map[SyncStatus]int{
			SyncNew:            0,
			SyncNeverScraped:   0,
			SyncHasNewMessages: 0,
			SyncUpToDate:       0,
		},
	}
	for _, ch := range live {
		if !ch.Type.HasHistory() {
			continue
		}

		row := ChannelSync{
			ID:                ch.ID,
			Name:              ch.Name,
			Type:              ch.Type,
			LiveLastMessageID: ch.LastMessageID,
		}
		if existing, ok := stored[ch.ID]; ok {
			row.StoredLastMessageID = existing.LastMessageID
			row.MessageCount = existing.MessageCount
			row.Status = syncStatus(existing, ch)
		} else {
			row.Status = SyncNew
		}

		res.Channels = append(res.Channels, row)
		res.Summary[row.Status]++
		if row.Status.NeedsSync() {
			res.NeedsSync = append(res.NeedsSync, ch.ID)
		}
	}
	return res, nil
}

func syncStatus(stored *models.Channel, live remote.ChannelDescriptor) SyncStatus {
	if stored.LastScrapedAt == nil {
		return SyncNeverScraped
	}
	if live.LastMessageID == nil {
		return SyncUpToDate
	}
	if stored.LastMessageID == nil || *live.LastMessageID > *stored.LastMessageID {
		return SyncHasNewMessages
	}
	return SyncUpToDate
}
