package cmd

import (
	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/cli"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/schedule"
)

func init() {
	watchCommand := &cobra.Command{
		Use:   "watch",
		Short: "Keep the configured guilds in sync on a schedule",
		Long:  "Run incremental scrapes of schedule.guildids on the schedule.cron schedule until interrupted, downloading new attachments after each scrape if schedule.downloadafter is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cli.InterruptContext()
			defer cancel()
			reg := cli.Registry()
			defer reg.Close()
			st, err := cli.DefaultStore(ctx, reg)
			if err != nil {
				return err
			}

			cfg := config.Config.Schedule
			scraper := cli.NewScraper(st)
			downloader, err := cli.NewDownloader(ctx, st)
			if err != nil {
				return err
			}
			scheduler, err := schedule.New(cfg, scraper, downloader)
			if err != nil {
				return err
			}

			backgroundJobs := jobs.Jobs{
				scheduler.Start(),
				scraper.Jobs(),
				downloader.Jobs(),
			}

			<-ctx.Done()
			logging.Info().Msg("Shutting down background jobs...")
			unfinished := backgroundJobs.CancelAndWait(cfg.ShutdownTimeout)
			if len(unfinished) == 0 {
				logging.Info().Msg("Background jobs closed gracefully")
			} else {
				logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
			}
			return nil
		},
	}
	cli.RootCommand.AddCommand(watchCommand)
}
