package jobs

import (
	"time"
)

// Tracked is anything with background work that can be asked to stop and
// then waited on.
type Tracked interface {
	Name() string
	Cancel() bool
	Finished() <-chan struct{}
}

// A utility for canceling several pieces of background work at once. Because
// this type is simply a slice, you can construct it using normal slice syntax.
type Jobs []Tracked

// Cancels all tracked jobs, giving them a chance to finish gracefully. Will
// return when all jobs finish or when the timeout expires, whichever comes
// first. Returns a list of all jobs that did not finish on time.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDoneChan := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	finished := make([]<-chan struct{}, len(jobs))
	for i, job := range jobs {
		finished[i] = job.Finished()
	}
	go func() {
		for _, done := range finished {
			<-done
		}
		close(allDoneChan)
	}()

	select {
	case <-timer.C:
		return jobs.listUnfinished()
	case <-allDoneChan:
		return nil
	}
}

func (jobs Jobs) listUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
			continue
		default:
			unfinished = append(unfinished, job.Name())
		}
	}
	return unfinished
}

// Task is a long-lived background loop, such as the scheduler, that is not
// tracked by a Manager.
type Task struct {
	name   string
	cancel func()
	done   chan struct{}
}

// NewTask returns a task whose stop function is cancel. The loop must call
// Finish when it returns.
func NewTask(name string, cancel func()) *Task {
	return &Task{name: name, cancel: cancel, done: make(chan struct{})}
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Cancel() bool {
	t.cancel()
	return true
}

func (t *Task) Finish() {
	close(t.done)
}

func (t *Task) Finished() <-chan struct{} {
	return t.done
}
