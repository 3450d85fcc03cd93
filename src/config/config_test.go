package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		require.NoError(t, Load(""))
		assert.Equal(t, Defaults(), Config)
	})
	t.Run("historical environment names", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DISCORD_BOT_TOKEN", "secret")
		t.Setenv("GUILD_ID", "123456789012345678")
		t.Setenv("RATE_LIMIT_DELAY", "0.25")
		t.Setenv("MAX_RETRIES", "7")
		t.Setenv("ATTACHMENTS_PATH", "/srv/attachments")
		t.Setenv("LOG_LEVEL", "DEBUG")

		require.NoError(t, Load(""))
		assert.Equal(t, "secret", Config.Discord.BotToken)
		assert.Equal(t, int64(123456789012345678), Config.Discord.GuildID)
		assert.Equal(t, 250*time.Millisecond, Config.Discord.RequestDelay)
		assert.Equal(t, 7, Config.Downloads.MaxAttempts)
		assert.Equal(t, "/srv/attachments", Config.Downloads.Path)
		assert.Equal(t, zerolog.DebugLevel, Config.LogLevel)
	})
	t.Run("config file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		file := filepath.Join(dir, "archiver.yaml")
		require.NoError(t, os.WriteFile(file, []byte(`
storage:
  default: postgres
downloads:
  concurrency: 9
  retrydelay: 1s
  s3:
    bucket: mirror
schedule:
  guildids: ["11", "22"]
`), 0o644))

		require.NoError(t, Load(""))
		assert.Equal(t, "postgres", Config.Storage.Default)
		assert.Equal(t, 9, Config.Downloads.Concurrency)
		assert.Equal(t, time.Second, Config.Downloads.RetryDelay)
		assert.True(t, Config.Downloads.S3.Enabled())
		assert.Equal(t, []int64{11, 22}, Config.Schedule.GuildIDs)
	})
	t.Run("missing explicit file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.Error(t, Load("does-not-exist.yaml"))
	})
	t.Cleanup(func() { Config = Defaults() })
}
