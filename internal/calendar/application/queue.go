package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the default capacity of the import queue.
const DefaultQueueSize = 256

// ErrQueueClosed is returned when work is submitted after Close.
var ErrQueueClosed = errors.New("queue closed")

// Job is a unit of work run on the queue.
type Job func(ctx context.Context) error

type queuedJob struct {
	ctx    context.Context
	fn     Job
	result chan error
}

// Queue runs jobs one at a time, in submission order, on a single
// goroutine. It is the single writer for the store. Jobs must not call Do
// or Wait on the queue that runs them.
type Queue struct {
	jobs      chan queuedJob
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewQueue starts a queue with the given buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		jobs:   make(chan queuedJob, size),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

// Submit enqueues fn without waiting for it. Errors from fn are logged.
func (q *Queue) Submit(ctx context.Context, fn Job) error {
	return q.enqueue(ctx, queuedJob{ctx: ctx, fn: fn})
}

// Do enqueues fn and waits for its result.
func (q *Queue) Do(ctx context.Context, fn Job) error {
	job := queuedJob{ctx: ctx, fn: fn, result: make(chan error, 1)}
	if err := q.enqueue(ctx, job); err != nil {
		return err
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		select {
		case err := <-job.result:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

// Wait blocks until every job submitted before the call has run.
func (q *Queue) Wait(ctx context.Context) error {
	return q.Do(ctx, func(context.Context) error { return nil })
}

// Close stops accepting jobs, runs the ones already queued and returns once
// the worker has exited.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
	<-q.done
}

func (q *Queue) enqueue(ctx context.Context, job queuedJob) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case job := <-q.jobs:
			q.exec(job)
		case <-q.closed:
			for {
				select {
				case job := <-q.jobs:
					q.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) exec(job queuedJob) {
	err := job.ctx.Err()
	if err == nil {
		err = q.safeRun(job)
	}
	if job.result != nil {
		job.result <- err
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Error("queued job failed", "error", err)
	}
}

func (q *Queue) safeRun(job queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}
