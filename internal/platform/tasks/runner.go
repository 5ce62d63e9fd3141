// Package tasks runs named background jobs on a bounded worker pool. Polling
// work kicked off by API handlers is submitted here instead of spawning bare
// goroutines, so in-flight jobs are logged, counted and drained on shutdown.
package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrClosed    = errors.New("task runner is closed")
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Runner executes submitted jobs on a fixed number of workers.
type Runner struct {
	logger zerolog.Logger
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	inFlight atomic.Int64
}

// NewRunner starts workers goroutines consuming from a buffered queue.
// ctx bounds the execution of every job; cancelling it asks running jobs
// to stop.
func NewRunner(ctx context.Context, logger zerolog.Logger, workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	r := &Runner{
		logger: logger,
		jobs:   make(chan job, queueSize),
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}

	return r
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()
	for j := range r.jobs {
		r.inFlight.Add(1)
		start := time.Now()

		err := func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = errors.New("task panicked")
					r.logger.Error().Str("task", j.name).Interface("panic", rec).Msg("task panic recovered")
				}
			}()
			return j.fn(ctx)
		}()

		evt := r.logger.Info()
		if err != nil {
			evt = r.logger.Error().Err(err)
		}
		evt.Str("task", j.name).Dur("duration", time.Since(start)).Msg("task finished")

		r.inFlight.Add(-1)
	}
}

// Submit enqueues a job. It never blocks: a full queue returns ErrQueueFull
// so the caller can surface the condition instead of silently dropping work.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	select {
	case r.jobs <- job{name: name, fn: fn}:
		r.logger.Debug().Str("task", name).Msg("task queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// InFlight reports how many jobs are currently executing.
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

// Close stops accepting new jobs and waits for queued and running jobs to
// finish, or for ctx to expire.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
