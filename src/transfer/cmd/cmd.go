package cmd

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wumpus-archiver/archiver/src/cli"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/transfer"
)

func init() {
	transferCommand := &cobra.Command{
		Use:   "transfer <source> <target>",
		Short: "Copy the whole archive from one store to another",
		Long:  "Copy every table from one store to another, for example \"transfer sqlite postgres\". Existing rows in the target are overwritten. Known stores: sqlite, and postgres when a DSN is configured.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cli.InterruptContext()
			defer cancel()
			reg := cli.Registry()
			defer reg.Close()

			transferrer := transfer.NewOrchestrator(reg, transfer.Options{BatchSize: config.Config.Transfer.BatchSize})
			snap, err := transferrer.Start(transfer.Params{
				Source: strings.ToLower(args[0]),
				Target: strings.ToLower(args[1]),
			})
			if err != nil {
				return err
			}
			final, err := cli.Follow(ctx, transferrer.Jobs(), snap.ID, 2*time.Second, func(e *zerolog.Event, p transfer.Progress) {
				e.Str("table", string(p.CurrentTable)).
					Int("tables done", p.TablesDone).
					Int("tables", p.TablesTotal).
					Int64("rows", p.RowsTransferred).
					Int64("total rows", p.TotalRows)
			})
			if err != nil {
				return err
			}
			return cli.Report(final, func(e *zerolog.Event, r transfer.Result) {
				e.Int("tables", r.Tables).Int64("rows", r.RowsTransferred)
			})
		},
	}
	cli.RootCommand.AddCommand(transferCommand)
}
