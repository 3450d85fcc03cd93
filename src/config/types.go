package config

import (
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Dev  Environment = "dev"
)

type ArchiverConfig struct {
	Env      Environment
	LogLevel zerolog.Level

	Discord   DiscordConfig
	Storage   StorageConfig
	Scrape    ScrapeConfig
	Downloads DownloadConfig
	Transfer  TransferConfig
	Schedule  ScheduleConfig
}

type DiscordConfig struct {
	BotToken string
	GuildID  int64

	// Minimum delay between history page requests. Zero disables pacing
	// beyond what discordgo's own bucket limiter does.
	RequestDelay time.Duration
}

type StorageConfig struct {
	// Name of the store the engines read and write by default.
	Default string

	SQLitePath string
	Postgres   PostgresConfig
}

type PostgresConfig struct {
	DSN      string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

type ScrapeConfig struct {
	BatchSize int
	MaxErrors int
}

type DownloadConfig struct {
	Path        string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	BatchSize   int

	S3 S3Config
}

// S3Config points at an S3-compatible bucket that downloaded files are
// mirrored to. Mirroring is off when Bucket is empty.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type TransferConfig struct {
	BatchSize int
}

type ScheduleConfig struct {
	Cron            string
	GuildIDs        []int64
	DownloadAfter   bool
	ShutdownTimeout time.Duration
}
