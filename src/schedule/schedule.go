// Package schedule re-syncs configured guilds on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/download"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/scrape"
)

// Scheduler runs an incremental scrape of every configured guild on each
// tick, optionally followed by a download of that guild's attachments.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	scraper    *scrape.Orchestrator
	downloader *download.Orchestrator
	cfg        config.ScheduleConfig
}

// New validates the schedule. downloader may be nil, in which case ticks
// only scrape.
func New(cfg config.ScheduleConfig, scraper *scrape.Orchestrator, downloader *download.Orchestrator) (*Scheduler, error) {
	if len(cfg.GuildIDs) == 0 {
		return nil, errors.New("no guilds configured for scheduled sync")
	}

	logger := logging.With().Str("module", "schedule").Logger()
	ctx, cancel := context.WithCancel(logging.AttachLoggerToContext(&logger, context.Background()))
	cronLog := cronLogger{&logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		ctx:        ctx,
		cancel:     cancel,
		scraper:    scraper,
		downloader: downloader,
		cfg:        cfg,
	}
	if _, err := s.cron.AddFunc(cfg.Cron, func() { s.Tick(s.ctx) }); err != nil {
		cancel()
		return nil, oops.New(err, "invalid cron expression %q", cfg.Cron)
	}
	return s, nil
}

// Start begins firing ticks. Cancelling the returned task stops the schedule
// and finishes once any tick in progress has returned.
func (s *Scheduler) Start() *jobs.Task {
	var once sync.Once
	var task *jobs.Task
	task = jobs.NewTask("schedule", func() {
		once.Do(func() {
			s.cancel()
			stopped := s.cron.Stop()
			go func() {
				<-stopped.Done()
				task.Finish()
			}()
		})
	})
	s.cron.Start()
	logging.ExtractLogger(s.ctx).Info().Str("cron", s.cfg.Cron).Ints64("guilds", s.cfg.GuildIDs).Msg("Scheduled sync started")
	return task
}

// Tick syncs every configured guild once. If a scrape is already running,
// the whole tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	log := logging.ExtractLogger(ctx)

	for _, guildID := range s.cfg.GuildIDs {
		if ctx.Err() != nil {
			return
		}
		log := log.With().Int64("guild", guildID).Logger()

		snap, err := s.scraper.Start(scrape.Params{GuildID: guildID})
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			log.Info().Str("running", snap.ID).Msg("Scrape already running, skipping this tick")
			return
		} else if err != nil {
			log.Error().Err(err).Msg("Failed to start scheduled scrape")
			continue
		}

		scraped, err := s.scraper.Jobs().Wait(ctx, snap.ID)
		if err != nil {
			return
		}
		if scraped.Status != jobs.StatusCompleted {
			log.Warn().Str("status", string(scraped.Status)).Str("error", scraped.Error).Msg("Scheduled scrape did not complete")
			continue
		}

		if !s.cfg.DownloadAfter || s.downloader == nil {
			continue
		}
		dsnap, err := s.downloader.Start(download.Params{GuildID: &guildID})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start scheduled download")
			continue
		}
		downloaded, err := s.downloader.Jobs().Wait(ctx, dsnap.ID)
		if err != nil {
			return
		}
		if downloaded.Status != jobs.StatusCompleted {
			log.Warn().Str("status", string(downloaded.Status)).Str("error", downloaded.Error).Msg("Scheduled download did not complete")
		}
	}
}

type cronLogger struct {
	l *zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
