// Package worker moves blocking I/O off the event loop and hands the
// result back to it.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

// Job runs off the loop. A non-nil continuation it returns is posted back
// and runs on the loop.
type Job func(ctx context.Context) func()

type Runner interface {
	Go(job Job)
}

// Inline runs jobs and their continuations on the caller's goroutine.
type Inline struct{}

func (Inline) Go(job Job) {
	if next := job(context.Background()); next != nil {
		next()
	}
}

// Deferred collects jobs until Drain, so tests can observe the state
// between a mutation and its I/O.
type Deferred struct {
	mu   sync.Mutex
	jobs []Job
}

func (d *Deferred) Go(job Job) {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
}

// Drain runs queued jobs in order, including jobs queued by continuations.
func (d *Deferred) Drain() int {
	n := 0
	for {
		d.mu.Lock()
		if len(d.jobs) == 0 {
			d.mu.Unlock()
			return n
		}
		job := d.jobs[0]
		d.jobs = d.jobs[1:]
		d.mu.Unlock()
		Inline{}.Go(job)
		n++
	}
}

func (d *Deferred) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// Queue runs jobs in FIFO order on a fixed set of goroutines. Each job
// gets its own timeout.
type Queue struct {
	jobs    chan Job
	post    func(func())
	timeout time.Duration
	workers int
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func NewQueue(size, workers int, timeout time.Duration, post func(func())) *Queue {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Queue{
		jobs:    make(chan Job, size),
		post:    post,
		timeout: timeout,
		workers: workers,
		logger:  obslog.Named("worker"),
	}
}

// Go never blocks the caller. When the buffer is full the job runs on its
// own goroutine and loses its place in line.
func (q *Queue) Go(job Job) {
	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("worker_queue_full", zap.Int("capacity", cap(q.jobs)))
		go q.exec(context.Background(), job)
	}
}

// Run starts the workers and blocks until ctx is done and the buffered
// jobs have drained.
func (q *Queue) Run(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case job := <-q.jobs:
					q.exec(ctx, job)
				case <-ctx.Done():
					q.drain()
					return
				}
			}
		}()
	}
	q.wg.Wait()
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			q.exec(context.Background(), job)
		default:
			return
		}
	}
}

func (q *Queue) exec(parent context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("worker_job_panic", zap.Any("panic", r))
		}
	}()
	base := parent
	if base.Err() != nil {
		// shutting down: still give the job a bounded window
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, q.timeout)
	next := job(ctx)
	cancel()
	if next != nil && q.post != nil {
		q.post(next)
	}
}
