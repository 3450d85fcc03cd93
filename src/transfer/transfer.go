// Package transfer copies the whole archive from one store to another, for
// example from a local SQLite file into Postgres.
package transfer

import (
	"context"
	"fmt"

	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/store"
)

const Kind = "transfer"

type Params struct {
	Source string
	Target string
}

type Options struct {
	BatchSize int
}

type Progress struct {
	CurrentTable    store.Table
	TablesDone      int
	TablesTotal     int
	RowsTransferred int64
	TotalRows       int64
}

type Result struct {
	Tables          int
	RowsTransferred int64
	// RowsPerTable counts the rows copied from each table.
	RowsPerTable map[store.Table]int64
}

type Snapshot = jobs.Snapshot[Progress, Result]

type Orchestrator struct {
	jobs     *jobs.Manager[Progress, Result]
	registry *store.Registry
	opts     Options
}

func NewOrchestrator(registry *store.Registry, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Orchestrator{
		jobs:     jobs.NewManager[Progress, Result](Kind),
		registry: registry,
		opts:     opts,
	}
}

// Start checks that both stores are known and differ, then copies in the
// background.
func (o *Orchestrator) Start(params Params) (Snapshot, error) {
	if params.Source == params.Target {
		return Snapshot{}, jobs.Precondition(fmt.Errorf("source and target are both %q", params.Source))
	}
	for _, name := range []string{params.Source, params.Target} {
		if !o.registry.Has(name) {
			return Snapshot{}, jobs.Precondition(oops.New(store.ErrUnknownStore, "no store named %q (known: %v)", name, o.registry.Names()))
		}
	}

	progress := Progress{TablesTotal: len(store.Tables)}
	return o.jobs.Start(progress, func(ctx context.Context, job *jobs.Job[Progress, Result]) (Result, error) {
		return o.run(ctx, job, params)
	})
}

func (o *Orchestrator) Cancel() bool {
	return o.jobs.Cancel()
}

func (o *Orchestrator) Current() (Snapshot, bool) {
	return o.jobs.Current()
}

func (o *Orchestrator) History() []Snapshot {
	return o.jobs.History()
}

func (o *Orchestrator) Jobs() *jobs.Manager[Progress, Result] {
	return o.jobs
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job[Progress, Result], params Params) (Result, error) {
	job.SetStatus(jobs.StatusConnecting)
	source, err := o.registry.Get(ctx, params.Source)
	if err != nil {
		return Result{}, err
	}
	target, err := o.registry.Get(ctx, params.Target)
	if err != nil {
		return Result{}, err
	}

	job.SetStatus(jobs.StatusRunning)
	e := &engine{
		source: source,
		target: target,
		opts:   o.opts,
		update: job.Update,
		result: Result{RowsPerTable: make(map[store.Table]int64)},
	}
	err = e.run(ctx)
	return e.result, err
}
