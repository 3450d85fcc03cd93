package remote

import (
	"time"

	"github.com/wumpus-archiver/archiver/src/models"
)

func (g GuildDescriptor) Model() *models.Guild {
	return &models.Guild{
		ID:          g.ID,
		Name:        g.Name,
		IconURL:     g.IconURL,
		OwnerID:     g.OwnerID,
		MemberCount: g.MemberCount,
	}
}

func (c ChannelDescriptor) Model() *models.Channel {
	return &models.Channel{
		ID:       c.ID,
		GuildID:  c.GuildID,
		Name:     c.Name,
		Type:     c.Type,
		Topic:    c.Topic,
		Position: c.Position,
		ParentID: c.ParentID,
	}
}

func (a Author) Model() *models.User {
	return &models.User{
		ID:            a.ID,
		Username:      a.Username,
		Discriminator: a.Discriminator,
		DisplayName:   a.DisplayName,
		AvatarURL:     a.AvatarURL,
		Bot:           a.Bot,
	}
}

func (m Message) Model(scrapedAt time.Time) *models.Message {
	msg := &models.Message{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		Content:         m.Content,
		CleanContent:    m.CleanContent,
		CreatedAt:       m.CreatedAt,
		EditedAt:        m.EditedAt,
		Pinned:          m.Pinned,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
		Embeds:          m.Embeds,
		ReferenceID:     m.ReferenceID,
		ScrapedAt:       scrapedAt,
	}
	if m.Author != nil {
		id := m.Author.ID
		msg.AuthorID = &id
	}
	return msg
}

func (a Attachment) Model(messageID int64) *models.Attachment {
	return &models.Attachment{
		ID:             a.ID,
		MessageID:      messageID,
		Filename:       a.Filename,
		ContentType:    a.ContentType,
		Size:           a.Size,
		URL:            a.URL,
		ProxyURL:       a.ProxyURL,
		Width:          a.Width,
		Height:         a.Height,
		DownloadStatus: models.DownloadPending,
	}
}

func (r Reaction) Model(messageID int64) *models.Reaction {
	return &models.Reaction{
		MessageID: messageID,
		EmojiName: r.EmojiName,
		EmojiID:   r.EmojiID,
		Animated:  r.Animated,
		Count:     r.Count,
	}
}
