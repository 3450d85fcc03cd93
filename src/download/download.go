// Package download fetches the binary content of stored attachments to
// local disk, recording where each file went and its content hash.
package download

import (
	"context"
	"errors"
	"time"

	"github.com/wumpus-archiver/archiver/src/assets"
	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/store"
)

const Kind = "download"

type Params struct {
	// GuildID restricts the run to one guild's channels. Nil means every
	// stored channel.
	GuildID *int64
}

type Options struct {
	Root        string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	BatchSize   int
	MaxErrors   int

	// Mirror, if set, receives a copy of every newly downloaded file.
	Mirror assets.Sink
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = 20
	}
	return o
}

type Progress struct {
	CurrentChannel string
	ChannelsTotal  int
	ChannelsDone   int

	// Total is the number of eligible attachments found so far.
	Total         int
	Downloaded    int
	AlreadyCached int
	Skipped       int
	Failed        int
	Bytes         int64
	Errors        jobs.ErrorList
}

func (p Progress) Processed() int {
	return p.Downloaded + p.AlreadyCached + p.Skipped + p.Failed
}

type Result struct {
	Total         int
	Downloaded    int
	AlreadyCached int
	Skipped       int
	Failed        int
	Bytes         int64
	Errors        []string
	ErrorsDropped int
}

type Snapshot = jobs.Snapshot[Progress, Result]

type Orchestrator struct {
	jobs    *jobs.Manager[Progress, Result]
	store   store.Store
	fetcher remote.Fetcher
	opts    Options
}

func NewOrchestrator(st store.Store, fetcher remote.Fetcher, opts Options) *Orchestrator {
	return &Orchestrator{
		jobs:    jobs.NewManager[Progress, Result](Kind),
		store:   st,
		fetcher: fetcher,
		opts:    opts.withDefaults(),
	}
}

func (o *Orchestrator) Start(params Params) (Snapshot, error) {
	if o.opts.Root == "" {
		return Snapshot{}, jobs.Precondition(errors.New("no download directory configured"))
	}

	progress := Progress{Errors: jobs.NewErrorList(o.opts.MaxErrors)}
	return o.jobs.Start(progress, func(ctx context.Context, job *jobs.Job[Progress, Result]) (Result, error) {
		job.SetStatus(jobs.StatusRunning)
		e := &engine{
			store:   o.store,
			fetcher: o.fetcher,
			opts:    o.opts,
			update:  job.Update,
		}
		err := e.run(ctx, params)

		var res Result
		job.Update(func(p *Progress) {
			res = Result{
				Total:         p.Total,
				Downloaded:    p.Downloaded,
				AlreadyCached: p.AlreadyCached,
				Skipped:       p.Skipped,
				Failed:        p.Failed,
				Bytes:         p.Bytes,
				Errors:        p.Errors.Items,
				ErrorsDropped: p.Errors.Dropped,
			}
		})
		return res, err
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
