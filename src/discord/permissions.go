package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/wumpus-archiver/archiver/src/models"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
)

const readPermissions = discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory

func (c *Client) Access(ctx context.Context, guildID int64) (remote.AccessReport, error) {
	gid := formatID(guildID)

	guild, err := c.s.Guild(gid, discordgo.WithContext(ctx))
	if err != nil {
		return remote.AccessReport{}, oops.New(mapError(err), "failed to fetch guild %d", guildID)
	}
	member, err := c.s.GuildMember(gid, c.self.ID, discordgo.WithContext(ctx))
	if err != nil {
		return remote.AccessReport{}, oops.New(mapError(err), "failed to fetch bot membership in guild %d", guildID)
	}
	channels, err := c.s.GuildChannels(gid, discordgo.WithContext(ctx))
	if err != nil {
		return remote.AccessReport{}, oops.New(mapError(err), "failed to list channels of guild %d", guildID)
	}

	base := basePermissions(guild, c.self.ID, member.Roles)
	report := remote.AccessReport{
		Elevated: guild.OwnerID == c.self.ID || base&discordgo.PermissionAdministrator != 0,
	}
	if report.Elevated {
		return report, nil
	}

	for _, ch := range channels {
		if !models.ChannelType(ch.Type).HasHistory() {
			continue
		}
		perms := channelPermissions(base, guild.ID, ch, c.self.ID, member.Roles)
		// Channels the bot cannot see at all do not show up in the
		// listing anyway.
		if perms&discordgo.PermissionViewChannel != 0 && perms&readPermissions != readPermissions {
			desc, err := convertChannel(ch)
			if err != nil {
				return remote.AccessReport{}, err
			}
			report.Unreadable = append(report.Unreadable, desc)
		}
	}
	return report, nil
}

// basePermissions combines the @everyone role, whose id is the guild id, with
// the member's roles.
func basePermissions(guild *discordgo.Guild, userID string, memberRoles []string) int64 {
	if guild.OwnerID == userID {
		return discordgo.PermissionAll
	}

	roles := make(map[string]int64, len(guild.Roles))
	for _, r := range guild.Roles {
		roles[r.ID] = r.Permissions
	}

	perms := roles[guild.ID]
	for _, id := range memberRoles {
		perms |= roles[id]
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}

// channelPermissions applies a channel's overwrites in Discord's order:
// @everyone, then all role overwrites together, then the member overwrite.
func channelPermissions(base int64, guildID string, ch *discordgo.Channel, userID string, memberRoles []string) int64 {
	if base&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}

	hasRole := make(map[string]bool, len(memberRoles))
	for _, id := range memberRoles {
		hasRole[id] = true
	}

	perms := base
	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeRole && o.ID == guildID {
			perms &^= o.Deny
			perms |= o.Allow
		}
	}

	var allow, deny int64
	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeRole && hasRole[o.ID] {
			allow |= o.Allow
			deny |= o.Deny
		}
	}
	perms &^= deny
	perms |= allow

	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeMember && o.ID == userID {
			perms &^= o.Deny
			perms |= o.Allow
		}
	}
	return perms
}
