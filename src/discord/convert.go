package discord

import (
	"encoding/json"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/utils"
)

func parseID(id string) (int64, error) {
	res, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, oops.New(err, "invalid snowflake %q", id)
	}
	return res, nil
}

// optionalID treats the empty string as "no id".
func optionalID(id string) (*int64, error) {
	if id == "" {
		return nil, nil
	}
	res, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return utils.P(res), nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return utils.P(s)
}

func optionalInt(i int) *int {
	if i == 0 {
		return nil
	}
	return utils.P(i)
}

func convertGuild(g *discordgo.Guild) (remote.GuildDescriptor, error) {
	id, err := parseID(g.ID)
	if err != nil {
		return remote.GuildDescriptor{}, err
	}
	ownerID, err := optionalID(g.OwnerID)
	if err != nil {
		return remote.GuildDescriptor{}, err
	}

	res := remote.GuildDescriptor{
		ID:      id,
		Name:    g.Name,
		OwnerID: ownerID,
	}
	if g.Icon != "" {
		res.IconURL = optionalString(discordgo.EndpointGuildIcon(g.ID, g.Icon))
	}
	if g.ApproximateMemberCount != 0 {
		res.MemberCount = optionalInt(g.ApproximateMemberCount)
	} else {
		res.MemberCount = optionalInt(g.MemberCount)
	}
	return res, nil
}

func convertChannel(ch *discordgo.Channel) (remote.ChannelDescriptor, error) {
	id, err := parseID(ch.ID)
	if err != nil {
		return remote.ChannelDescriptor{}, err
	}
	guildID, err := parseID(ch.GuildID)
	if err != nil {
		return remote.ChannelDescriptor{}, err
	}
	parentID, err := optionalID(ch.ParentID)
	if err != nil {
		return remote.ChannelDescriptor{}, err
	}
	lastMessageID, err := optionalID(ch.LastMessageID)
	if err != nil {
		return remote.ChannelDescriptor{}, err
	}

	return remote.ChannelDescriptor{
		ID:            id,
		GuildID:       guildID,
		Name:          ch.Name,
		Type:          models.ChannelType(ch.Type),
		Topic:         optionalString(ch.Topic),
		Position:      ch.Position,
		ParentID:      parentID,
		LastMessageID: lastMessageID,
	}, nil
}

func convertChannels(channels []*discordgo.Channel) ([]remote.ChannelDescriptor, error) {
	res := make([]remote.ChannelDescriptor, 0, len(channels))
	for _, ch := range channels {
		desc, err := convertChannel(ch)
		if err != nil {
			return nil, oops.New(err, "failed to read channel %s", ch.ID)
		}
		res = append(res, desc)
	}
	return res, nil
}

func convertAuthor(u *discordgo.User) (*remote.Author, error) {
	if u == nil {
		return nil, nil
	}
	id, err := parseID(u.ID)
	if err != nil {
		return nil, err
	}

	author := &remote.Author{
		ID:          id,
		Username:    u.Username,
		DisplayName: optionalString(u.GlobalName),
		Bot:         u.Bot,
	}
	// "0" marks accounts migrated to unique usernames.
	if u.Discriminator != "" && u.Discriminator != "0" {
		author.Discriminator = optionalString(u.Discriminator)
	}
	if u.Avatar != "" {
		author.AvatarURL = optionalString(u.AvatarURL(""))
	}
	return author, nil
}

func convertMessage(msg *discordgo.Message) (remote.Message, error) {
	id, err := parseID(msg.ID)
	if err != nil {
		return remote.Message{}, err
	}
	channelID, err := parseID(msg.ChannelID)
	if err != nil {
		return remote.Message{}, err
	}
	author, err := convertAuthor(msg.Author)
	if err != nil {
		return remote.Message{}, err
	}

	res := remote.Message{
		ID:              id,
		ChannelID:       channelID,
		Author:          author,
		Content:         msg.Content,
		CleanContent:    msg.ContentWithMentionsReplaced(),
		CreatedAt:       msg.Timestamp,
		EditedAt:        msg.EditedTimestamp,
		Pinned:          msg.Pinned,
		TTS:             msg.TTS,
		MentionEveryone: msg.MentionEveryone,
	}

	if len(msg.Embeds) > 0 {
		embeds, err := json.Marshal(msg.Embeds)
		if err != nil {
			return remote.Message{}, oops.New(err, "failed to encode embeds of message %s", msg.ID)
		}
		res.Embeds = optionalString(string(embeds))
	}
	if msg.MessageReference != nil {
		res.ReferenceID, err = optionalID(msg.MessageReference.MessageID)
		if err != nil {
			return remote.Message{}, err
		}
	}

	for _, a := range msg.Attachments {
		attID, err := parseID(a.ID)
		if err != nil {
			return remote.Message{}, err
		}
		res.Attachments = append(res.Attachments, remote.Attachment{
			ID:          attID,
			Filename:    a.Filename,
			ContentType: optionalString(a.ContentType),
			Size:        a.Size,
			URL:         a.URL,
			ProxyURL:    optionalString(a.ProxyURL),
			Width:       optionalInt(a.Width),
			Height:      optionalInt(a.Height),
		})
	}

	for _, r := range msg.Reactions {
		if r.Emoji == nil {
			continue
		}
		var emojiID int64
		if r.Emoji.ID != "" {
			emojiID, err = parseID(r.Emoji.ID)
			if err != nil {
				return remote.Message{}, err
			}
		}
		res.Reactions = append(res.Reactions, remote.Reaction{
			EmojiName: r.Emoji.Name,
			EmojiID:   emojiID,
			Animated:  r.Emoji.Animated,
			Count:     r.Count,
		})
	}

	return res, nil
}
