package transfer

import (
	"context"

	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
)

type engine struct {
	source store.Store
	target store.Store
	opts   Options
	update func(func(p *Progress))
	result Result
}

func (e *engine) run(ctx context.Context) error {
	log := logging.ExtractLogger(ctx)
	log.Info().Str("source", e.source.Name()).Str("target", e.target.Name()).Msg("Transfer started")

	var total int64
	err := e.source.InTx(ctx, func(tx store.Tx) error {
		for _, table := range store.Tables {
			n, err := tx.CountRows(ctx, table)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return oops.New(err, "failed to count source rows")
	}
	e.update(func(p *Progress) {
		p.TotalRows = total
	})
	log.Info().Int64("rows", total).Msg("Counted rows to transfer")

	for _, table := range store.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.update(func(p *Progress) {
			p.CurrentTable = table
		})
		if err := e.copyTable(ctx, table); err != nil {
			return err
		}
		e.result.Tables++
		e.update(func(p *Progress) {
			p.TablesDone++
		})
	}
	e.update(func(p *Progress) {
		p.CurrentTable = ""
	})

	err = e.target.InTx(ctx, func(tx store.Tx) error {
		return tx.ResetSequences(ctx)
	})
	if err != nil {
		return oops.New(err, "failed to reset sequences on %s", e.target.Name())
	}

	log.Info().
		Int64("rows", e.result.RowsTransferred).
		Int("tables", e.result.Tables).
		Msg("Transfer completed")
	return nil
}

// copyTable pages through one table by primary key. Each batch is read and
// written in its own transactions, so an interrupted copy keeps whole
// batches and can simply be run again.
func (e *engine) copyTable(ctx context.Context, table store.Table) error {
	log := logging.ExtractLogger(ctx).With().Str("table", string(table)).Logger()

	// A batch that has started is always finished; cancellation is only
	// honored between batches.
	batchCtx := context.WithoutCancel(ctx)

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch store.Batch
		err := e.source.InTx(batchCtx, func(tx store.Tx) error {
			var err error
			batch, err = tx.ReadBatch(batchCtx, table, afterID, e.opts.BatchSize)
			return err
		})
		if err != nil {
			return oops.New(err, "failed to read %s after id %d", table, afterID)
		}
		if batch.Len() == 0 {
			return nil
		}

		err = e.target.InTx(batchCtx, func(tx store.Tx) error {
			return tx.WriteBatch(batchCtx, batch)
		})
		if err != nil {
			return oops.New(err, "failed to write %s after id %d", table, afterID)
		}

		n := int64(batch.Len())
		afterID = batch.LastID()
		e.result.RowsTransferred += n
		e.result.RowsPerTable[table] += n
		e.update(func(p *Progress) {
			p.RowsTransferred += n
		})
		log.Debug().Int64("rows", n).Int64("through id", afterID).Msg("Transferred batch")
	}
}
