package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Job is one unit of work run by the pool.
type Job func(ctx context.Context) error

// Result describes how a submitted job ended.
type Result struct {
	ID       string
	Err      error         // Error returned by the job, or the reason it was removed
	Removed  bool          // True if the job was pulled from the queue and never started
	Duration time.Duration // Time spent running (zero when removed)
}

const (
	handleQueued int32 = iota
	handleRunning
	handleRemoved
)

// Handle refers to a submitted job.
type Handle struct {
	id     string
	state  atomic.Int32
	cancel context.CancelFunc
}

// ID returns the id the job was submitted with.
func (h *Handle) ID() string {
	return h.id
}

// Started reports whether the job has been dispatched to a worker.
func (h *Handle) Started() bool {
	return h.state.Load() == handleRunning
}

// Cancel removes the job from the queue if it has not started yet.
// Returns true only if the job is guaranteed never to run.
// A job that is already running is not interrupted.
func (h *Handle) Cancel() bool {
	if h.state.CompareAndSwap(handleQueued, handleRemoved) {
		h.cancel()
		return true
	}
	return false
}

// Pool runs jobs with at most limit of them in flight at once.
// Submission never blocks: every job waits for a slot on its own goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	limit  int
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewPool creates a pool. A limit <= 0 defaults to 4.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 4
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Pool{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
		ctx:   ctx,
		stop:  stop,
	}
}

// Limit returns the maximum number of concurrently running jobs.
func (p *Pool) Limit() int {
	return p.limit
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Submit queues job and returns immediately. done is called exactly once, from the
// worker goroutine, when the job finishes or is removed from the queue.
func (p *Pool) Submit(id string, job Job, done func(Result)) *Handle {
	ctx, cancel := context.WithCancel(p.ctx)
	h := &Handle{id: id, cancel: cancel}

	p.wg.Add(1)
	go p.run(ctx, h, job, done)

	return h
}

func (p *Pool) run(ctx context.Context, h *Handle, job Job, done func(Result)) {
	defer p.wg.Done()
	defer h.cancel()

	res := Result{ID: h.id}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		h.state.CompareAndSwap(handleQueued, handleRemoved)
		res.Removed = true
		res.Err = fmt.Errorf("job %q removed before start: %w", h.id, err)
		notify(done, res)
		return
	}

	// Lost the race against Handle.Cancel or Shutdown
	if p.ctx.Err() != nil || !h.state.CompareAndSwap(handleQueued, handleRunning) {
		h.state.CompareAndSwap(handleQueued, handleRemoved)
		p.sem.Release(1)
		res.Removed = true
		res.Err = fmt.Errorf("job %q removed before start: %w", h.id, context.Canceled)
		notify(done, res)
		return
	}

	p.active.Add(1)
	start := time.Now()
	res.Err = execute(ctx, job)
	res.Duration = time.Since(start)
	p.active.Add(-1)
	p.sem.Release(1)

	notify(done, res)
}

// execute runs job, converting a panic into an error.
func execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func notify(done func(Result), res Result) {
	if done != nil {
		done(res)
	}
}

// Shutdown stops dispatching queued jobs, cancels the context of running jobs and
// waits for every worker goroutine to return or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stop()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}
