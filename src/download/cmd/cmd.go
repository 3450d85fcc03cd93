package cmd

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/cli"
	"github.com/wumpus-archiver/archiver/src/download"
)

func init() {
	var guild string
	downloadCommand := &cobra.Command{
		Use:   "download",
		Short: "Download stored image and video attachments",
		Long:  "Download every pending image and video attachment in the default store. Files already on disk are verified and not fetched again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var params download.Params
			if guild != "" {
				id, err := cli.ParseID(guild)
				if err != nil {
					return err
				}
				params.GuildID = &id
			}

			ctx, cancel := cli.InterruptContext()
			defer cancel()
			reg := cli.Registry()
			defer reg.Close()
			st, err := cli.DefaultStore(ctx, reg)
			if err != nil {
				return err
			}

			downloader, err := cli.NewDownloader(ctx, st)
			if err != nil {
				return err
			}
			snap, err := downloader.Start(params)
			if err != nil {
				return err
			}
			final, err := cli.Follow(ctx, downloader.Jobs(), snap.ID, 5*time.Second, func(e *zerolog.Event, p download.Progress) {
				e.Str("channel", p.CurrentChannel).
					Int("processed", p.Processed()).
					Int("total", p.Total).
					Int("downloaded", p.Downloaded).
					Int("cached", p.AlreadyCached).
					Int("failed", p.Failed).
					Int64("bytes", p.Bytes)
			})
			if err != nil {
				return err
			}
			return cli.Report(final, func(e *zerolog.Event, r download.Result) {
				e.Int("total", r.Total).
					Int("downloaded", r.Downloaded).
					Int("cached", r.AlreadyCached).
					Int("skipped", r.Skipped).
					Int("failed", r.Failed).
					Int64("bytes", r.Bytes).
					Strs("errors", r.Errors).
					Int("errors dropped", r.ErrorsDropped)
			})
		},
	}
	downloadCommand.Flags().StringVar(&guild, "guild", "", "Only download attachments from this guild")
	cli.RootCommand.AddCommand(downloadCommand)
}
