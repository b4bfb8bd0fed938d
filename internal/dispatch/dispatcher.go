// Package dispatch runs jobs with per-user FIFO ordering and cross-user
// parallelism over a bounded worker pool.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// readyBuffer sizes the scheduling fast path; schedule falls back to a
// goroutine when it overflows.
const readyBuffer = 1024

// Job is one unit of work bound to a user. The context carries the per-job
// deadline; slow work inside must respect it.
type Job func(ctx context.Context)

// userQueue holds pending jobs for a single user. At most one job per user
// is ever in flight, which gives the per-user ordering guarantee.
type userQueue struct {
	userID int64

	mu        sync.Mutex
	jobs      []Job
	scheduled bool
}

// Dispatcher fans events out to a fixed pool of workers while keeping each
// user's jobs strictly sequential. A stalled job for one user can therefore
// never head-of-line-block another user.
type Dispatcher struct {
	workers int
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	queues map[int64]*userQueue

	ready chan *userQueue
	wg    sync.WaitGroup
}

// New constructs a dispatcher with the given pool size and per-job timeout.
func New(workers int, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		workers: workers,
		timeout: timeout,
		log:     log,
		queues:  make(map[int64]*userQueue),
		ready:   make(chan *userQueue, readyBuffer),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work(ctx)
		}()
	}
}

// Wait blocks until all workers have stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Submit enqueues a job for the user. Jobs for the same user run in
// submission order; jobs for different users run concurrently.
func (d *Dispatcher) Submit(userID int64, job Job) {
	d.mu.Lock()
	q, ok := d.queues[userID]
	if !ok {
		q = &userQueue{userID: userID}
		d.queues[userID] = q
	}
	d.mu.Unlock()

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	schedule := !q.scheduled
	if schedule {
		q.scheduled = true
	}
	q.mu.Unlock()

	if schedule {
		d.schedule(q)
	}
}

// schedule hands a queue to the workers without ever blocking the caller.
// The buffered channel is the fast path; on overflow (more schedulable users
// than readyBuffer) the send moves to its own goroutine, so neither the
// polling loop nor a worker re-enqueueing in runNext can stall on intake.
func (d *Dispatcher) schedule(q *userQueue) {
	select {
	case d.ready <- q:
	default:
		go func() { d.ready <- q }()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-d.ready:
			d.runNext(ctx, q)
		}
	}
}

// runNext executes the queue's front job under the per-job timeout and
// reschedules the queue if more jobs arrived meanwhile.
func (d *Dispatcher) runNext(ctx context.Context, q *userQueue) {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.scheduled = false
		q.mu.Unlock()
		return
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.mu.Unlock()

	jobID := uuid.Must(uuid.NewV4())
	jctx, cancel := context.WithTimeout(ctx, d.timeout)
	d.runSafely(jctx, job, jobID, q.userID)
	cancel()

	q.mu.Lock()
	again := len(q.jobs) > 0
	if !again {
		q.scheduled = false
	}
	q.mu.Unlock()
	if again {
		d.schedule(q)
	}
}

// runSafely isolates worker goroutines from panicking jobs.
func (d *Dispatcher) runSafely(ctx context.Context, job Job, jobID uuid.UUID, userID int64) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("job panic",
				zap.String("job", jobID.String()),
				zap.Int64("user", userID),
				zap.String("panic", fmt.Sprint(rec)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	start := time.Now()
	job(ctx)
	d.log.Debug("job done",
		zap.String("job", jobID.String()),
		zap.Int64("user", userID),
		zap.Duration("took", time.Since(start)))
}
