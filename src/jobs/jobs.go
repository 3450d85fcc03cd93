package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/utils"
)

/*
 * This package runs the archiver's engines as background jobs. A Manager owns
 * at most one live job of its kind; callers start it, poll its progress
 * snapshots, and cancel it. Cancellation is cooperative: the engine sees its
 * context canceled and is expected to stop at the next network or database
 * call.
 */

type Status string

const (
	StatusPending    Status = "pending"
	StatusConnecting Status = "connecting"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrAlreadyRunning = errors.New("a job of this kind is already running")
	// ErrPrecondition wraps problems with a job's inputs that are detected
	// before the job starts, such as missing credentials.
	ErrPrecondition = errors.New("job precondition failed")
)

// Precondition returns an error that matches both ErrPrecondition and err.
func Precondition(err error) error {
	return fmt.Errorf("%w: %w", ErrPrecondition, err)
}

// HistoryLimit is how many finished jobs a Manager remembers.
const HistoryLimit = 50

// ErrorList keeps the first few errors a job runs into and counts the rest.
// Items is only ever appended to, so snapshots may share it.
type ErrorList struct {
	Items   []string
	Dropped int
	limit   int
}

func NewErrorList(limit int) ErrorList {
	return ErrorList{limit: limit}
}

func (l *ErrorList) Add(format string, args ...any) {
	if l.limit > 0 && len(l.Items) >= l.limit {
		l.Dropped++
		return
	}
	l.Items = append(l.Items, fmt.Sprintf(format, args...))
}

func (l *ErrorList) Len() int {
	return len(l.Items) + l.Dropped
}

// Snapshot is a consistent copy of a job's state at one moment.
type Snapshot[P, R any] struct {
	ID          string
	Kind        string
	Status      Status
	Progress    P
	Result      *R
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// A Job is one run of an engine. The engine reports through Update and
// SetStatus; everyone else reads Snapshot.
type Job[P, R any] struct {
	ID     string
	Kind   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}

	mu          sync.Mutex
	sealed      bool
	status      Status
	progress    P
	result      *R
	errMsg      string
	startedAt   time.Time
	completedAt *time.Time
}

func newJob[P, R any](kind string, progress P) *Job[P, R] {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	logger := logging.With().Str("job", kind).Str("job id", id).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job[P, R]{
		ID:        id,
		Kind:      kind,
		Ctx:       ctx,
		Logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusPending,
		progress:  progress,
		startedAt: time.Now(),
	}
}

// Update applies fn to the job's progress under the job's lock.
func (j *Job[P, R]) Update(fn func(p *P)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.progress)
}

// SetStatus moves the job into a non-terminal phase. It does nothing once
// the job has been cancelled or has finished.
func (j *Job[P, R]) SetStatus(status Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() || status.Terminal() {
		return
	}
	j.status = status
}

func (j *Job[P, R]) Snapshot() Snapshot[P, R] {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot[P, R]{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.status,
		Progress:    j.progress,
		Result:      j.result,
		Error:       j.errMsg,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}

// Finished is closed once the engine has returned and the job is archived.
func (j *Job[P, R]) Finished() <-chan struct{} {
	return j.done
}

// Seal makes the job ignore further cancel requests, so the engine can
// commit its final bookkeeping and report completion. It reports false if
// the job was already cancelled.
func (j *Job[P, R]) Seal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return false
	}
	j.sealed = true
	return true
}

func (j *Job[P, R]) markCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() || j.sealed {
		return false
	}
	now := time.Now()
	j.status = StatusCancelled
	j.completedAt = &now
	j.cancel()
	return true
}

func (j *Job[P, R]) finish(result R, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.cancel()

	if j.completedAt == nil {
		now := time.Now()
		j.completedAt = &now
	}
	// Cancelled jobs keep whatever they got done.
	j.result = &result

	switch {
	case j.status == StatusCancelled:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, utils.ErrSleepInterrupted) {
			j.errMsg = err.Error()
		}
		j.Logger.Info().Msg("Job cancelled")
	case err != nil:
		j.status = StatusFailed
		j.errMsg = err.Error()
		j.Logger.Error().Err(err).Msg("Job failed")
	default:
		j.status = StatusCompleted
		j.Logger.Info().Dur("took", j.completedAt.Sub(j.startedAt)).Msg("Job completed")
	}
}

type RunFunc[P, R any] func(ctx context.Context, job *Job[P, R]) (R, error)

// Manager runs jobs of one kind, one at a time.
type Manager[P, R any] struct {
	kind string

	mu      sync.Mutex
	current *Job[P, R]
	history []Snapshot[P, R]
}

func NewManager[P, R any](kind string) *Manager[P, R] {
	return &Manager[P, R]{kind: kind}
}

func (m *Manager[P, R]) Name() string {
	return m.kind
}

// Start launches run in the background with initial as its progress. It
// fails with ErrAlreadyRunning while a previous job is live, including a
// cancelled one whose engine has not returned yet.
func (m *Manager[P, R]) Start(initial P, run RunFunc[P, R]) (Snapshot[P, R], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.Snapshot(), ErrAlreadyRunning
	}

	job := newJob[P, R](m.kind, initial)
	m.current = job
	job.Logger.Info().Msg("Starting job")

	go func() {
		defer close(job.done)

		var result R
		var err error
		func() {
			defer utils.RecoverPanicAsError(&err)
			result, err = run(job.Ctx, job)
		}()

		job.finish(result, err)
		m.archive(job)
	}()

	return job.Snapshot(), nil
}

func (m *Manager[P, R]) archive(job *Job[P, R]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append([]Snapshot[P, R]{job.Snapshot()}, m.history...)
	if len(m.history) > HistoryLimit {
		m.history = m.history[:HistoryLimit]
	}
	if m.current == job {
		m.current = nil
	}
}

// Cancel asks the live job to stop. It reports false if there is no job to
// cancel.
func (m *Manager[P, R]) Cancel() bool {
	m.mu.Lock()
	job := m.current
	m.mu.Unlock()

	if job == nil {
		return false
	}
	return job.markCancelled()
}

// Current returns the live job, if any.
func (m *Manager[P, R]) Current() (Snapshot[P, R], bool) {
	m.mu.Lock()
	job := m.current
	m.mu.Unlock()

	if job == nil {
		return Snapshot[P, R]{}, false
	}
	return job.Snapshot(), true
}

// History returns finished jobs, most recent first.
func (m *Manager[P, R]) History() []Snapshot[P, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot[P, R](nil), m.history...)
}

// Lookup finds a job by id, live or finished.
func (m *Manager[P, R]) Lookup(id string) (Snapshot[P, R], bool) {
	if snap, ok := m.Current(); ok && snap.ID == id {
		return snap, true
	}
	for _, snap := range m.History() {
		if snap.ID == id {
			return snap, true
		}
	}
	return Snapshot[P, R]{}, false
}

// Wait blocks until the job with the given id has been archived and returns
// its final snapshot. If ctx ends first, it returns the latest snapshot and
// the context's error.
func (m *Manager[P, R]) Wait(ctx context.Context, id string) (Snapshot[P, R], error) {
	for {
		m.mu.Lock()
		job := m.current
		m.mu.Unlock()

		if job == nil || job.ID != id {
			for _, snap := range m.History() {
				if snap.ID == id {
					return snap, nil
				}
			}
			return Snapshot[P, R]{}, fmt.Errorf("no %s job with id %s", m.kind, id)
		}

		select {
		case <-job.done:
		case <-ctx.Done():
			return job.Snapshot(), ctx.Err()
		}
	}
}

// Finished returns a channel that is closed when the live job has been
// archived. It is already closed if no job is live.
func (m *Manager[P, R]) Finished() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return closedChan
	}
	return m.current.done
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()
