// Package cli holds the root command and the wiring the subcommands share.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/assets"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/discord"
	"github.com/wumpus-archiver/archiver/src/download"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/scrape"
	"github.com/wumpus-archiver/archiver/src/store"
	"github.com/wumpus-archiver/archiver/src/store/backends"
	"github.com/wumpus-archiver/archiver/src/utils"
)

var configFile string

var RootCommand = &cobra.Command{
	Use:           "archiver",
	Short:         "Archive Discord guilds into a local or Postgres database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configFile); err != nil {
			return err
		}
		logging.Init(config.Config.LogLevel, config.Config.Env == config.Dev || isatty.IsTerminal(os.Stderr.Fd()))
		return nil
	},
}

func init() {
	RootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (default ./archiver.yaml if present)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCommand.Execute(); err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// ParseID parses a snowflake given on the command line.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", s)
	}
	return id, nil
}

// GuildArg returns the guild named by the first argument, falling back to the
// configured default guild.
func GuildArg(args []string) (int64, error) {
	if len(args) > 0 {
		return ParseID(args[0])
	}
	if config.Config.Discord.GuildID != 0 {
		return config.Config.Discord.GuildID, nil
	}
	return 0, fmt.Errorf("no guild id given and none configured")
}

func Registry() *store.Registry {
	return backends.NewRegistry(config.Config.Storage)
}

// DefaultStore opens the store the engines use unless told otherwise.
func DefaultStore(ctx context.Context, reg *store.Registry) (store.Store, error) {
	return reg.Get(ctx, config.Config.Storage.Default)
}

func NewScraper(st store.Store) *scrape.Orchestrator {
	cfg := config.Config
	return scrape.NewOrchestrator(
		st,
		discord.NewDialer(cfg.Discord.RequestDelay),
		cfg.Discord.BotToken,
		scrape.Options{
			BatchSize: cfg.Scrape.BatchSize,
			MaxErrors: cfg.Scrape.MaxErrors,
		},
	)
}

// NewDownloader fetches from the Discord CDN, mirroring to S3 if a bucket is
// configured.
func NewDownloader(ctx context.Context, st store.Store) (*download.Orchestrator, error) {
	cfg := config.Config.Downloads
	opts := download.Options{
		Root:        cfg.Path,
		Concurrency: cfg.Concurrency,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		BatchSize:   cfg.BatchSize,
	}
	if cfg.S3.Enabled() {
		sink, err := assets.NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		opts.Mirror = sink
	}
	return download.NewOrchestrator(st, discord.NewCDN(cfg.Timeout), opts), nil
}

// InterruptContext is cancelled on the first SIGINT. A second SIGINT exits
// immediately.
func InterruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt)
	go func() {
		select {
		case <-signals:
			logging.Info().Msg("Interrupted, stopping (press Ctrl-C again to force quit)")
			cancel()
		case <-ctx.Done():
			signal.Stop(signals)
			return
		}
		<-signals
		logging.Warn().Msg("Forcibly quit")
		os.Exit(1)
	}()
	return ctx, cancel
}

// Follow logs the job's progress every interval until it is archived. If ctx
// ends first, the job is cancelled and Follow keeps waiting for it to wind
// down.
func Follow[P, R any](ctx context.Context, m *jobs.Manager[P, R], id string, interval time.Duration, describe func(e *zerolog.Event, p P)) (jobs.Snapshot[P, R], error) {
	ticker := utils.NewInstaTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	var final jobs.Snapshot[P, R]
	var err error
	go func() {
		defer close(done)
		final, err = m.Wait(context.Background(), id)
	}()

	interrupted := ctx.Done()
	for {
		select {
		case <-done:
			return final, err
		case <-interrupted:
			interrupted = nil
			m.Cancel()
		case <-ticker.C:
			snap, ok := m.Lookup(id)
			if !ok || snap.Status.Terminal() {
				continue
			}
			e := logging.Info().Str("status", string(snap.Status))
			describe(e, snap.Progress)
			e.Msg("Progress")
		}
	}
}

// Report logs a finished job and returns an error if it did not complete.
func Report[P, R any](snap jobs.Snapshot[P, R], describe func(e *zerolog.Event, r R)) error {
	e := logging.Info().Str("job id", snap.ID).Str("status", string(snap.Status))
	if snap.CompletedAt != nil {
		e = e.Dur("took", snap.CompletedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}
	if snap.Result != nil {
		describe(e, *snap.Result)
	}
	e.Msgf("%s job finished", snap.Kind)

	switch snap.Status {
	case jobs.StatusCompleted:
		return nil
	case jobs.StatusCancelled:
		return fmt.Errorf("%s job was cancelled", snap.Kind)
	default:
		return fmt.Errorf("%s job failed: %s", snap.Kind, snap.Error)
	}
}
