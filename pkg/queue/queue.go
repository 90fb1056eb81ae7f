package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/security"
)

// ProcessFunc executes one attempt of a job.
type ProcessFunc func(ctx context.Context, job *core.QueuedJob) error

// Status is a point-in-time view of the queue.
type Status struct {
	Length     int
	InFlight   *core.QueuedJob
	Processing bool
	Paused     bool
	Processed  int64
	Failed     int64
	Retried    int64
}

// Queue runs an injected ProcessFunc over jobs in priority order, strictly
// one at a time.
type Queue struct {
	process ProcessFunc
	config  *Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	pending    []*core.QueuedJob
	inFlight   *core.QueuedJob
	backingOff map[string]bool // false once removed while waiting
	running    bool
	paused     bool
	closed     bool
	idle       chan struct{}
	processed  int64
	failed     int64
	retried    int64

	hooksMu    sync.RWMutex
	onStart    []func(context.Context, *core.QueuedJob)
	onComplete []func(context.Context, *core.QueuedJob)
	onFail     []func(context.Context, *core.QueuedJob, error)
	onRetry    []func(context.Context, *core.QueuedJob, int, error)
	eventSubs  []chan core.Event
}

// New creates a Queue around the given processor.
func New(process ProcessFunc, opts ...Option) *Queue {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	parent := o.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	idle := make(chan struct{})
	close(idle)

	return &Queue{
		process:    process,
		config:     o,
		logger:     o.Logger,
		ctx:        ctx,
		cancel:     cancel,
		backingOff: make(map[string]bool),
		idle:       idle,
	}
}

// Enqueue inserts a job in priority order and starts the processing loop if
// it is not already running. Ties keep arrival order.
func (q *Queue) Enqueue(job core.Job, priority int) error {
	if err := security.ValidateJobID(job.ID); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed || q.ctx.Err() != nil {
		q.mu.Unlock()
		return core.ErrQueueClosed
	}

	enqueuedAt := time.Now()
	q.insertLocked(&core.QueuedJob{
		Job:        job,
		Priority:   priority,
		EnqueuedAt: enqueuedAt,
	})
	if !q.paused {
		q.startLocked()
	}
	q.mu.Unlock()

	q.Emit(&core.JobEnqueued{JobID: job.ID, Priority: priority, Timestamp: enqueuedAt})
	return nil
}

// insertLocked places job immediately before the first entry of strictly
// lower priority.
func (q *Queue) insertLocked(job *core.QueuedJob) {
	idx := len(q.pending)
	for i, existing := range q.pending {
		if existing.Priority < job.Priority {
			idx = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = job
}

func (q *Queue) startLocked() {
	if q.running {
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.wg.Add(1)
	go q.run()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.paused || q.closed || q.ctx.Err() != nil {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight = job
		started := *job
		q.mu.Unlock()

		startTime := time.Now()
		q.callStartHooks(job)
		q.Emit(&core.JobStarted{Job: &started, Timestamp: startTime})

		err := q.execute(job)
		q.settle(job, err, startTime)

		// Pace submissions from the shared signing identity.
		q.sleep(q.config.ProcessingDelay)
	}
}

func (q *Queue) execute(job *core.QueuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx := q.ctx
	if q.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.JobTimeout)
		defer cancel()
	}

	err = q.process(ctx, job)
	if err != nil && q.config.JobTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && q.ctx.Err() == nil {
		err = core.Transient(fmt.Errorf("job execution timeout after %v: %w", q.config.JobTimeout, err))
	}
	return err
}

func (q *Queue) settle(job *core.QueuedJob, err error, startTime time.Time) {
	if err == nil {
		q.mu.Lock()
		q.processed++
		q.inFlight = nil
		done := *job
		q.mu.Unlock()

		q.logger.Info("job completed", "job_id", done.ID(), "retries", done.RetryCount, "duration", time.Since(startTime))
		q.callCompleteHooks(job)
		q.Emit(&core.JobCompleted{Job: &done, Duration: time.Since(startTime), Timestamp: time.Now()})
		return
	}

	if q.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		q.mu.Lock()
		q.inFlight = nil
		q.mu.Unlock()
		q.logger.Warn("job interrupted by shutdown", "job_id", job.ID())
		return
	}

	lastError := security.SanitizeErrorMessage(err.Error())
	kind := Classify(err)

	q.mu.Lock()
	retry := kind == KindTransient && job.RetryCount < q.config.MaxRetries && q.ctx.Err() == nil
	var delay time.Duration
	job.LastError = lastError
	if retry {
		delay = retryDelay(err, q.config, job.RetryCount)
		job.RetryCount++
		job.Priority++
		q.retried++
		q.backingOff[job.ID()] = true
	} else {
		q.failed++
	}
	q.inFlight = nil
	snap := *job
	q.mu.Unlock()

	if !retry {
		q.logger.Error("job failed", "job_id", snap.ID(), "retries", snap.RetryCount, "kind", kind.String(), "error", err)
		q.callFailHooks(job, err)
		q.Emit(&core.JobFailed{Job: &snap, Error: err, Timestamp: time.Now()})
		return
	}

	nextRunAt := time.Now().Add(delay)
	q.logger.Warn("job failed, retrying", "job_id", snap.ID(), "attempt", snap.RetryCount, "delay", delay, "error", err)
	q.callRetryHooks(job, snap.RetryCount, err)
	q.Emit(&core.JobRetrying{Job: &snap, Attempt: snap.RetryCount, Error: err, NextRunAt: nextRunAt, Timestamp: time.Now()})

	q.sleep(delay)

	q.mu.Lock()
	keep := q.backingOff[job.ID()]
	delete(q.backingOff, job.ID())
	if keep && !q.closed {
		job.EnqueuedAt = time.Now()
		q.insertLocked(job)
	}
	q.mu.Unlock()
}

// sleep waits for d or until the queue is stopped.
func (q *Queue) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.ctx.Done():
	case <-t.C:
	}
}

// Status returns queue length, the in-flight job and cumulative counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Status{
		Length:     len(q.pending),
		Processing: q.running,
		Paused:     q.paused,
		Processed:  q.processed,
		Failed:     q.failed,
		Retried:    q.retried,
	}
	if q.inFlight != nil {
		cp := *q.inFlight
		s.InFlight = &cp
	}
	return s
}

// Pending returns a copy of the queued jobs in dequeue order.
func (q *Queue) Pending() []core.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.QueuedJob, len(q.pending))
	for i, job := range q.pending {
		out[i] = *job
	}
	return out
}

// Contains reports whether jobID is queued, in flight or waiting to retry.
func (q *Queue) Contains(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight != nil && q.inFlight.ID() == jobID {
		return true
	}
	if q.backingOff[jobID] {
		return true
	}
	for _, job := range q.pending {
		if job.ID() == jobID {
			return true
		}
	}
	return false
}

// Remove drops a queued job, or cancels the pending retry of a job that is
// backing off. An in-flight job cannot be removed.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.pending {
		if job.ID() == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	if q.backingOff[jobID] {
		q.backingOff[jobID] = false
		return true
	}
	return false
}

// RemoveAll removes every id in ids and returns how many were dropped.
func (q *Queue) RemoveAll(ids []string) int {
	n := 0
	for _, id := range ids {
		if q.Remove(id) {
			n++
		}
	}
	return n
}

// Pause stops the loop from dequeuing further jobs. The in-flight job, and a
// job waiting out its backoff, are not interrupted.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts processing after Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = false
	if len(q.pending) > 0 && !q.closed {
		q.startLocked()
	}
}

// IsPaused reports whether the queue is paused.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// WaitIdle blocks until the processing loop has stopped, either because the
// queue drained or because it was paused.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the processing loop and waits for the current attempt to
// return. Queued jobs are left unprocessed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// OnJobStart registers a callback for when a job attempt starts.
func (q *Queue) OnJobStart(fn func(context.Context, *core.QueuedJob)) {
	q.hooksMu.Lock()
	q.onStart = append(q.onStart, fn)
	q.hooksMu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.QueuedJob)) {
	q.hooksMu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.hooksMu.Unlock()
}

// OnJobFail registers a callback for when a job fails permanently.
func (q *Queue) OnJobFail(fn func(context.Context, *core.QueuedJob, error)) {
	q.hooksMu.Lock()
	q.onFail = append(q.onFail, fn)
	q.hooksMu.Unlock()
}

// OnRetry registers a callback for when a job is scheduled for a retry.
func (q *Queue) OnRetry(fn func(context.Context, *core.QueuedJob, int, error)) {
	q.hooksMu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.hooksMu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.hooksMu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.hooksMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.hooksMu.Lock()
	defer q.hooksMu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.hooksMu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.hooksMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

func (q *Queue) callStartHooks(job *core.QueuedJob) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedJob), len(q.onStart))
	copy(hooks, q.onStart)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(q.ctx, job)
	}
}

func (q *Queue) callCompleteHooks(job *core.QueuedJob) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedJob), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(q.ctx, job)
	}
}

func (q *Queue) callFailHooks(job *core.QueuedJob, err error) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedJob, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(q.ctx, job, err)
	}
}

func (q *Queue) callRetryHooks(job *core.QueuedJob, attempt int, err error) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedJob, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(q.ctx, job, attempt, err)
	}
}
