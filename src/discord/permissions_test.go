package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestPermissions(t *testing.T) {
	const (
		guildID = "1"
		botID   = "100"
		modRole = "50"
	)
	guild := &discordgo.Guild{
		ID:      guildID,
		OwnerID: "999",
		Roles: []*discordgo.Role{
			{ID: guildID, Permissions: discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory},
			{ID: modRole, Permissions: discordgo.PermissionManageMessages},
		},
	}

	base := basePermissions(guild, botID, []string{modRole})
	assert.NotZero(t, base&discordgo.PermissionViewChannel)
	assert.NotZero(t, base&discordgo.PermissionManageMessages)
	assert.Zero(t, base&discordgo.PermissionAdministrator)

	t.Run("everyone deny is lifted by role allow", func(t *testing.T) {
		ch := &discordgo.Channel{PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
			{ID: modRole, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
		}}
		perms := channelPermissions(base, guildID, ch, botID, []string{modRole})
		assert.NotZero(t, perms&discordgo.PermissionViewChannel)
	})

	t.Run("member deny wins over role allow", func(t *testing.T) {
		ch := &discordgo.Channel{PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: modRole, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionReadMessageHistory},
			{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Deny: discordgo.PermissionReadMessageHistory},
		}}
		perms := channelPermissions(base, guildID, ch, botID, []string{modRole})
		assert.NotZero(t, perms&discordgo.PermissionViewChannel)
		assert.Zero(t, perms&discordgo.PermissionReadMessageHistory)
	})

	t.Run("administrators ignore overwrites", func(t *testing.T) {
		guild.Roles[1].Permissions |= discordgo.PermissionAdministrator
		base := basePermissions(guild, botID, []string{modRole})
		ch := &discordgo.Channel{PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Deny: discordgo.PermissionViewChannel},
		}}
		assert.Equal(t, int64(discordgo.PermissionAll), channelPermissions(base, guildID, ch, botID, nil))
	})

	t.Run("owner has everything", func(t *testing.T) {
		assert.Equal(t, int64(discordgo.PermissionAll), basePermissions(guild, "999", nil))
	})
}
