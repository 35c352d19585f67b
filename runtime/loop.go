// Package runtime holds the real-time core: connection registry, presence,
// message routing and call signaling, all driven by a single dispatch loop.
package runtime

import (
	"context"
	"fmt"
	"huddle/contract"
	"huddle/errors"
	"log/slog"
	"runtime/debug"
	"time"
)

var (
	_ contract.Worker    = (*Loop)(nil)
	_ contract.Scheduler = (*Loop)(nil)
	_ contract.ILoop     = (*Loop)(nil)
	_ contract.JobRunner = (*Loop)(nil)
)

// Loop is the single cooperative dispatch loop.
// Every mutation of the registry and of the call table runs inside a task posted here.
type Loop struct {
	log   *slog.Logger
	tasks chan func()
	jobs  chan contract.Job
	done  chan struct{}
}

func NewLoop(log *slog.Logger, bufferSize int) *Loop {
	return &Loop{
		log:   log,
		tasks: make(chan func(), bufferSize),
		jobs:  make(chan contract.Job, bufferSize),
		done:  make(chan struct{}),
	}
}

// Run drains tasks until ctx is canceled. A panicking task is logged and skipped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("Context done, stopping dispatch loop")
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Recovered from panic in dispatch task", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Post enqueues fn. It blocks while the queue is full and returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits for its result. It is the entry point of synchronous callers.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
			}
		}()
		result <- fn()
	})
	if !posted {
		return errors.ErrLoopStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Async hands work to the pool workers. When the job queue is full the job
// spills onto its own goroutine so the loop never blocks on it.
func (l *Loop) Async(work func(ctx context.Context) (any, error), then func(any, error)) {
	job := contract.Job{Work: work, Then: then}
	select {
	case l.jobs <- job:
	default:
		l.log.Debug("Job queue full, spilling job")
		go l.RunJob(context.Background(), job)
	}
}

// RunJob executes one job and posts its completion back onto the loop.
func (l *Loop) RunJob(ctx context.Context, job contract.Job) {
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
			}
		}()
		result, err = job.Work(ctx)
	}()
	if !l.Post(func() { job.Then(result, err) }) {
		l.log.Debug("Dispatch loop closed, dropping job completion")
	}
}

// Jobs is drained by the pool workers.
func (l *Loop) Jobs() <-chan contract.Job {
	return l.jobs
}

// After posts fn onto the loop once d has elapsed, unless canceled first.
func (l *Loop) After(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, func() { l.Post(fn) })
	return func() { timer.Stop() }
}

// Backlog samples how full the task and job queues are. Reading len and cap
// of a channel never blocks, so it is safe from any goroutine.
func (l *Loop) Backlog() (tasks, jobs float64) {
	return fill(l.tasks), fill(l.jobs)
}

func fill[T any](ch chan T) float64 {
	if cap(ch) == 0 {
		return 0
	}
	return float64(len(ch)) / float64(cap(ch))
}

// Close rejects further posts. Pending tasks are abandoned.
func (l *Loop) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
