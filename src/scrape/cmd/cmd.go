package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/cli"
	"github.com/wumpus-archiver/archiver/src/scrape"
	"github.com/wumpus-archiver/archiver/src/utils"
)

func init() {
	var channelIDs []string
	scrapeCommand := &cobra.Command{
		Use:   "scrape [<guild id>]",
		Short: "Scrape a guild's channels, threads, and messages",
		Long:  "Scrape a guild into the default store. Channels that were scraped before only fetch messages newer than the last stored one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := cli.GuildArg(args)
			if err != nil {
				return err
			}
			params := scrape.Params{GuildID: guildID}
			for _, raw := range channelIDs {
				id, err := cli.ParseID(raw)
				if err != nil {
					return err
				}
				params.ChannelIDs = append(params.ChannelIDs, id)
			}

			ctx, cancel := cli.InterruptContext()
			defer cancel()
			reg := cli.Registry()
			defer reg.Close()
			st, err := cli.DefaultStore(ctx, reg)
			if err != nil {
				return err
			}

			scraper := cli.NewScraper(st)
			snap, err := scraper.Start(params)
			if err != nil {
				return err
			}
			final, err := cli.Follow(ctx, scraper.Jobs(), snap.ID, 5*time.Second, func(e *zerolog.Event, p scrape.Progress) {
				e.Str("channel", p.CurrentChannel).
					Int("channels done", p.ChannelsDone).
					Int("channels", p.ChannelsTotal).
					Int("messages", p.MessagesScraped).
					Int("attachments", p.AttachmentsFound).
					Int("errors", p.Errors.Len())
			})
			if err != nil {
				return err
			}
			return cli.Report(final, func(e *zerolog.Event, r scrape.Result) {
				e.Int("channels", r.ChannelsScraped).
					Int("messages", r.MessagesScraped).
					Int("attachments", r.AttachmentsFound).
					Strs("errors", r.Errors).
					Int("errors dropped", r.ErrorsDropped)
			})
		},
	}
	scrapeCommand.Flags().StringSliceVar(&channelIDs, "channel", nil, "Only scrape these channels and their threads")
	cli.RootCommand.AddCommand(scrapeCommand)

	analyzeCommand := &cobra.Command{
		Use:   "analyze [<guild id>]",
		Short: "Show which channels have messages that are not stored yet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := cli.GuildArg(args)
			if err != nil {
				return err
			}

			ctx := context.Background()
			reg := cli.Registry()
			defer reg.Close()
			st, err := cli.DefaultStore(ctx, reg)
			if err != nil {
				return err
			}

			analysis, err := cli.NewScraper(st).Analyze(ctx, guildID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tID\tSTATUS\tSTORED\tLATEST")
			for _, ch := range analysis.Channels {
				fmt.Fprintf(w, "#%s\t%d\t%s\t%s\t%s\n", ch.Name, ch.ID, ch.Status, formatID(ch.StoredLastMessageID), formatID(ch.LiveLastMessageID))
			}
			w.Flush()

			fmt.Printf("\n%d channels need a sync", len(analysis.NeedsSync))
			for _, status := range []scrape.SyncStatus{scrape.SyncNew, scrape.SyncNeverScraped, scrape.SyncHasNewMessages, scrape.SyncUpToDate} {
				fmt.Printf(", %d %s", analysis.Summary[status], status)
			}
			fmt.Println()
			return nil
		},
	}
	cli.RootCommand.AddCommand(analyzeCommand)
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(utils.Deref(id))
}
