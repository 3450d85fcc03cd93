package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/wumpus-archiver/archiver/src/oops"
)

// Config is the active configuration. It holds the defaults until Load is
// called.
var Config = Defaults()

func Defaults() ArchiverConfig {
	return ArchiverConfig{
		Env:      Dev,
		LogLevel: zerolog.InfoLevel,
		Discord: DiscordConfig{
			RequestDelay: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Default:    "sqlite",
			SQLitePath: "archive.db",
			Postgres: PostgresConfig{
				LogLevel: tracelog.LogLevelWarn,
				MinConn:  1,
				MaxConn:  4,
			},
		},
		Scrape: ScrapeConfig{
			BatchSize: 100,
			MaxErrors: 50,
		},
		Downloads: DownloadConfig{
			Path:        "attachments",
			Concurrency: 5,
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
			Timeout:     30 * time.Second,
			BatchSize:   100,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Transfer: TransferConfig{
			BatchSize: 1000,
		},
		Schedule: ScheduleConfig{
			Cron:            "@hourly",
			DownloadAfter:   true,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Environment variables recognized under their historical names, in
// addition to the ARCHIVER_-prefixed form of every key.
var legacyEnv = map[string]string{
	"discord.bottoken":      "DISCORD_BOT_TOKEN",
	"discord.guildid":       "GUILD_ID",
	"discord.requestdelay":  "RATE_LIMIT_DELAY",
	"storage.postgres.dsn":  "DATABASE_URL",
	"scrape.batchsize":      "BATCH_SIZE",
	"downloads.maxattempts": "MAX_RETRIES",
	"downloads.path":        "ATTACHMENTS_PATH",
	"loglevel":              "LOG_LEVEL",
}

// Load reads configuration from an optional .env file, an optional
// archiver.{yaml,toml,json} file, and the environment, and installs the
// result as Config.
func Load(configFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return oops.New(err, "failed to read .env file")
	}

	v := viper.New()
	setDefaults(v, Defaults())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("archiver")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return oops.New(err, "failed to read config file")
		}
	}

	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "ARCHIVER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return oops.New(err, "failed to bind environment variable %s", env)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return err
	}
	Config = cfg
	return nil
}

func setDefaults(v *viper.Viper, d ArchiverConfig) {
	v.SetDefault("env", string(d.Env))
	v.SetDefault("loglevel", d.LogLevel.String())
	v.SetDefault("discord.bottoken", d.Discord.BotToken)
	v.SetDefault("discord.guildid", d.Discord.GuildID)
	v.SetDefault("discord.requestdelay", d.Discord.RequestDelay.String())
	v.SetDefault("storage.default", d.Storage.Default)
	v.SetDefault("storage.sqlitepath", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres.dsn", d.Storage.Postgres.DSN)
	v.SetDefault("storage.postgres.loglevel", d.Storage.Postgres.LogLevel.String())
	v.SetDefault("storage.postgres.minconn", d.Storage.Postgres.MinConn)
	v.SetDefault("storage.postgres.maxconn", d.Storage.Postgres.MaxConn)
	v.SetDefault("scrape.batchsize", d.Scrape.BatchSize)
	v.SetDefault("scrape.maxerrors", d.Scrape.MaxErrors)
	v.SetDefault("downloads.path", d.Downloads.Path)
	v.SetDefault("downloads.concurrency", d.Downloads.Concurrency)
	v.SetDefault("downloads.maxattempts", d.Downloads.MaxAttempts)
	v.SetDefault("downloads.retrydelay", d.Downloads.RetryDelay.String())
	v.SetDefault("downloads.timeout", d.Downloads.Timeout.String())
	v.SetDefault("downloads.batchsize", d.Downloads.BatchSize)
	v.SetDefault("downloads.s3.endpoint", "")
	v.SetDefault("downloads.s3.region", d.Downloads.S3.Region)
	v.SetDefault("downloads.s3.bucket", "")
	v.SetDefault("downloads.s3.accesskey", "")
	v.SetDefault("downloads.s3.secretkey", "")
	v.SetDefault("transfer.batchsize", d.Transfer.BatchSize)
	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.guildids", []string{})
	v.SetDefault("schedule.downloadafter", d.Schedule.DownloadAfter)
	v.SetDefault("schedule.shutdowntimeout", d.Schedule.ShutdownTimeout.String())
}

func fromViper(v *viper.Viper) (ArchiverConfig, error) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(v.GetString("loglevel")))
	if err != nil {
		return ArchiverConfig{}, oops.New(err, "invalid log level")
	}
	pgLogLevel, err := tracelog.LogLevelFromString(strings.ToLower(v.GetString("storage.postgres.loglevel")))
	if err != nil {
		return ArchiverConfig{}, oops.New(err, "invalid postgres log level")
	}

	guildIDs, err := parseIDs(v.GetStringSlice("schedule.guildids"))
	if err != nil {
		return ArchiverConfig{}, oops.New(err, "invalid schedule.guildids")
	}

	return ArchiverConfig{
		Env:      Environment(v.GetString("env")),
		LogLevel: logLevel,
		Discord: DiscordConfig{
			BotToken:     v.GetString("discord.bottoken"),
			GuildID:      v.GetInt64("discord.guildid"),
			RequestDelay: durationOrSeconds(v, "discord.requestdelay"),
		},
		Storage: StorageConfig{
			Default:    v.GetString("storage.default"),
			SQLitePath: v.GetString("storage.sqlitepath"),
			Postgres: PostgresConfig{
				DSN:      v.GetString("storage.postgres.dsn"),
				LogLevel: pgLogLevel,
				MinConn:  v.GetInt32("storage.postgres.minconn"),
				MaxConn:  v.GetInt32("storage.postgres.maxconn"),
			},
		},
		Scrape: ScrapeConfig{
			BatchSize: v.GetInt("scrape.batchsize"),
			MaxErrors: v.GetInt("scrape.maxerrors"),
		},
		Downloads: DownloadConfig{
			Path:        v.GetString("downloads.path"),
			Concurrency: v.GetInt("downloads.concurrency"),
			MaxAttempts: v.GetInt("downloads.maxattempts"),
			RetryDelay:  durationOrSeconds(v, "downloads.retrydelay"),
			Timeout:     durationOrSeconds(v, "downloads.timeout"),
			BatchSize:   v.GetInt("downloads.batchsize"),
			S3: S3Config{
				Endpoint:  v.GetString("downloads.s3.endpoint"),
				Region:    v.GetString("downloads.s3.region"),
				Bucket:    v.GetString("downloads.s3.bucket"),
				AccessKey: v.GetString("downloads.s3.accesskey"),
				SecretKey: v.GetString("downloads.s3.secretkey"),
			},
		},
		Transfer: TransferConfig{
			BatchSize: v.GetInt("transfer.batchsize"),
		},
		Schedule: ScheduleConfig{
			Cron:            v.GetString("schedule.cron"),
			GuildIDs:        guildIDs,
			DownloadAfter:   v.GetBool("schedule.downloadafter"),
			ShutdownTimeout: durationOrSeconds(v, "schedule.shutdowntimeout"),
		},
	}, nil
}

// RATE_LIMIT_DELAY and friends have historically been plain numbers of
// seconds ("0.5"), so bare numbers are accepted alongside Go durations.
func durationOrSeconds(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs := v.GetFloat64(key); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return v.GetDuration(key)
}
