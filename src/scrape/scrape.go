// Package scrape copies a guild's channels, threads, and message history
// from the remote platform into a store, fetching only what is new on
// repeat runs.
package scrape

import (
	"context"
	"errors"
	"sync"

	"github.com/wumpus-archiver/archiver/src/jobs"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/remote"
	"github.com/wumpus-archiver/archiver/src/store"
)

const Kind = "scrape"

type Params struct {
	GuildID int64
	// ChannelIDs restricts the scrape to these channels and the threads
	// under them. Empty means the whole guild.
	ChannelIDs []int64
}

type Options struct {
	BatchSize int
	MaxErrors int
}

type Progress struct {
	CurrentChannel   string
	ChannelsTotal    int
	ChannelsDone     int
	MessagesScraped  int
	AttachmentsFound int
	Errors           jobs.ErrorList
}

type Result struct {
	ChannelsScraped  int
	MessagesScraped  int
	AttachmentsFound int
	Errors           []string
	ErrorsDropped    int
}

type Snapshot = jobs.Snapshot[Progress, Result]

// Orchestrator runs at most one scrape at a time. It owns the remote
// session of the running scrape and closes it when the scrape ends.
type Orchestrator struct {
	jobs  *jobs.Manager[Progress, Result]
	store store.Store
	dial  remote.Dialer
	token string
	opts  Options

	sessionMu sync.Mutex
	session   remote.Client
}

func NewOrchestrator(st store.Store, dial remote.Dialer, token string, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 50
	}
	return &Orchestrator{
		jobs:  jobs.NewManager[Progress, Result](Kind),
		store: st,
		dial:  dial,
		token: token,
		opts:  opts,
	}
}

func (o *Orchestrator) Start(params Params) (Snapshot, error) {
	if o.token == "" {
		return Snapshot{}, jobs.Precondition(errors.New("no bot token configured"))
	}
	if params.GuildID == 0 {
		return Snapshot{}, jobs.Precondition(errors.New("no guild id given"))
	}

	progress := Progress{Errors: jobs.NewErrorList(o.opts.MaxErrors)}
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

// Jobs exposes the underlying manager for waiting and shutdown.
func (o *Orchestrator) Jobs() *jobs.Manager[Progress, Result] {
	return o.jobs
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job[Progress, Result], params Params) (Result, error) {
	job.SetStatus(jobs.StatusConnecting)
	client, err := o.dial(ctx, o.token)
	if err != nil {
		return Result{}, oops.New(err, "failed to connect to remote")
	}
	o.setSession(client)
	defer func() {
		o.setSession(nil)
		if err := client.Close(); err != nil {
			logging.ExtractLogger(ctx).Warn().Err(err).Msg("failed to close remote session")
		}
	}()

	job.SetStatus(jobs.StatusRunning)
	e := &engine{
		client: client,
		store:  o.store,
		opts:   o.opts,
		update: job.Update,
		seal:   job.Seal,
	}
	err = e.scrapeGuild(ctx, params)

	var res Result
	job.Update(func(p *Progress) {
		res = Result{
			ChannelsScraped:  e.channelsScraped,
			MessagesScraped:  p.MessagesScraped,
			AttachmentsFound: p.AttachmentsFound,
			Errors:           p.Errors.Items,
			ErrorsDropped:    p.Errors.Dropped,
		}
	})
	return res, err
}

func (o *Orchestrator) setSession(client remote.Client) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	o.session = client
}

func (o *Orchestrator) liveSession() remote.Client {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	return o.session
}

// Analyze compares the guild's live channels with what is stored. It borrows
// the running scrape's session if there is one and opens a short-lived one
// otherwise.
func (o *Orchestrator) Analyze(ctx context.Context, guildID int64) (Analysis, error) {
	if client := o.liveSession(); client != nil {
		return Analyze(ctx, client, o.store, guildID)
	}
	if o.token == "" {
		return Analysis{}, jobs.Precondition(errors.New("no bot token configured"))
	}
	client, err := o.dial(ctx, o.token)
	if err != nil {
		return Analysis{}, oops.New(err, "failed to connect to remote")
	}
	defer client.Close()

	return Analyze(ctx, client, o.store, guildID)
}
