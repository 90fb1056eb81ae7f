package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
	"github.com/jdziat/paid-deploy-jobs/pkg/security"
	"github.com/jdziat/paid-deploy-jobs/pkg/sla"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

// Handler performs one attempt of a job. Payments is scoped to the job.
type Handler func(ctx context.Context, job *core.QueuedJob, pay Payments) error

// Payments lets a handler wait for or check the job's payment.
type Payments interface {
	// Await blocks until sender has paid exactly amount, or fails with a
	// *core.PaymentTimeoutError.
	Await(ctx context.Context, sender, amount string) (*core.PaymentTransaction, error)
	// Verify checks a known transaction hash.
	Verify(ctx context.Context, hash, amount string) (bool, error)
}

// Status is a combined view of the queue and the SLA tracker.
type Status struct {
	Queue   queue.Status     `json:"queue"`
	Pending []core.QueuedJob `json:"pending"`
	Sla     sla.Statistics   `json:"sla"`
	Tracked []core.SlaJob    `json:"tracked"`
}

type entry struct {
	job        core.Job
	seq        int64
	admittedAt time.Time
}

// Coordinator admits jobs and keeps queue, SLA and persisted state in step.
type Coordinator struct {
	queue   *queue.Queue
	tracker *sla.Tracker
	handler Handler
	config  Config
	logger  *slog.Logger

	mu       sync.Mutex
	registry map[string]*entry
	seq      int64
}

// New creates a Coordinator running handler for every admitted job.
func New(handler Handler, tracker *sla.Tracker, opts ...Option) *Coordinator {
	cfg := &Config{}
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if tracker == nil {
		tracker = sla.NewTracker(nil, sla.WithLogger(cfg.Logger))
	}

	c := &Coordinator{
		tracker:  tracker,
		handler:  handler,
		config:   *cfg,
		logger:   cfg.Logger,
		registry: make(map[string]*entry),
	}

	queueOpts := append([]queue.Option{queue.WithLogger(cfg.Logger)}, cfg.QueueOptions...)
	c.queue = queue.New(c.process, queueOpts...)
	c.queue.OnJobComplete(c.onComplete)
	c.queue.OnJobFail(c.onFail)
	c.queue.OnRetry(c.onRetry)
	tracker.OnExpired(c.onExpired)
	return c
}

// Queue returns the underlying job queue.
func (c *Coordinator) Queue() *queue.Queue {
	return c.queue
}

// Tracker returns the SLA tracker.
func (c *Coordinator) Tracker() *sla.Tracker {
	return c.tracker
}

// Admit sweeps expired jobs, then registers job with the SLA tracker and
// the queue. Nothing is left registered if any step fails.
func (c *Coordinator) Admit(ctx context.Context, job core.Job, priority int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.tracker.CheckExpiredJobs()

	if err := security.ValidateJobID(job.ID); err != nil {
		return err
	}
	if err := security.ValidatePhase(job.Phase); err != nil {
		return err
	}
	if len(c.config.Phases) > 0 && !slices.Contains(c.config.Phases, job.Phase) {
		return fmt.Errorf("%w: %q is not accepted", core.ErrInvalidPhase, job.Phase)
	}

	now := time.Now()
	c.mu.Lock()
	if _, ok := c.registry[job.ID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrJobAlreadyTracked, job.ID)
	}
	c.seq++
	c.registry[job.ID] = &entry{job: job, seq: c.seq, admittedAt: now}
	c.mu.Unlock()

	if err := c.tracker.AddJob(job.ID, time.Time{}); err != nil {
		c.forget(job.ID)
		return err
	}
	if err := c.queue.Enqueue(job, priority); err != nil {
		c.tracker.Remove(job.ID)
		c.forget(job.ID)
		return err
	}

	c.logger.Info("job admitted", "job_id", job.ID, "phase", job.Phase, "priority", priority)
	return nil
}

// Start runs the background SLA sweep until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.tracker.Start(ctx)
}

// Close stops the queue. Queued jobs stay tracked until they expire.
func (c *Coordinator) Close() {
	c.queue.Close()
}

// Status returns the queue and SLA views.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	stats, err := c.tracker.GetStatistics(ctx)
	st := Status{
		Queue:   c.queue.Status(),
		Pending: c.queue.Pending(),
		Sla:     stats,
		Tracked: c.tracker.ActiveJobs(),
	}
	return st, err
}

// RecentPayments scans the last blocks for payments to the recipient.
func (c *Coordinator) RecentPayments(ctx context.Context, blocks uint64) ([]core.PaymentTransaction, error) {
	if c.config.Monitor == nil {
		return nil, errNoMonitor
	}
	return c.config.Monitor.GetRecentPayments(ctx, blocks)
}

var errNoMonitor = errors.New("jobs: no payment monitor configured")

func (c *Coordinator) process(ctx context.Context, job *core.QueuedJob) error {
	if !c.live(job.ID()) {
		return core.Terminal(fmt.Errorf("%w: %s", core.ErrJobExpired, job.ID()))
	}
	return c.handler(ctx, job, &jobPayments{c: c, jobID: job.ID()})
}

// live reports whether id is registered and, when SLA tracking is on,
// still tracked.
func (c *Coordinator) live(id string) bool {
	c.mu.Lock()
	_, ok := c.registry[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return !c.tracker.Enabled() || c.tracker.GetJobState(id) != nil
}

func (c *Coordinator) forget(id string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.registry[id]
	delete(c.registry, id)
	return e
}

func (c *Coordinator) onComplete(ctx context.Context, job *core.QueuedJob) {
	ctx = context.WithoutCancel(ctx)
	if c.forget(job.ID()) == nil {
		c.logger.Warn("job completed after expiration", "job_id", job.ID())
		return
	}

	progress, err := c.tracker.MarkCompleted(ctx, job.ID())
	if err != nil {
		c.logger.Error("failed to mark job completed", "job_id", job.ID(), "error", err)
	} else if progress > 0 {
		c.logger.Info("graduation progress", "job_id", job.ID(), "count", progress)
	}
	c.record(ctx, job, core.OutcomeCompleted, "")
}

func (c *Coordinator) onFail(ctx context.Context, job *core.QueuedJob, err error) {
	ctx = context.WithoutCancel(ctx)
	if errors.Is(err, core.ErrJobExpired) || c.forget(job.ID()) == nil {
		return
	}

	if _, rerr := c.tracker.MarkRejected(job.ID(), err.Error()); rerr != nil && !errors.Is(rerr, core.ErrJobNotTracked) {
		c.logger.Error("failed to mark job rejected", "job_id", job.ID(), "error", rerr)
	}
	c.record(ctx, job, core.OutcomeFailed, failureReason(err))
}

func (c *Coordinator) onRetry(_ context.Context, job *core.QueuedJob, _ int, _ error) {
	c.tracker.RecordRetry(job.ID())
}

func (c *Coordinator) onExpired(ids []string) {
	removed := c.queue.RemoveAll(ids)
	c.logger.Warn("expired jobs removed", "count", len(ids), "dequeued", removed)

	for _, id := range ids {
		e := c.forget(id)
		if e == nil {
			continue
		}
		qj := &core.QueuedJob{Job: e.job, EnqueuedAt: e.admittedAt}
		c.record(context.Background(), qj, core.OutcomeExpired, "sla expired before completion")
		c.queue.Emit(&core.JobExpired{JobID: id, Timestamp: time.Now()})
	}
}

func (c *Coordinator) record(ctx context.Context, job *core.QueuedJob, status core.OutcomeStatus, reason string) {
	if c.config.Store == nil {
		return
	}
	err := c.config.Store.RecordOutcome(ctx, &storage.JobOutcome{
		JobID:      job.ID(),
		Phase:      job.Job.Phase,
		Status:     status,
		Reason:     reason,
		RetryCount: job.RetryCount,
		Payload:    job.Job.Payload,
	})
	if err != nil {
		c.logger.Error("failed to record outcome", "job_id", job.ID(), "status", status, "error", err)
	}
}

// failureReason distinguishes payment timeouts from other failures.
func failureReason(err error) string {
	var pte *core.PaymentTimeoutError
	if errors.As(err, &pte) {
		return "payment timeout: " + pte.Error()
	}
	return err.Error()
}

// activeEntries returns registered jobs in admission order.
func (c *Coordinator) activeEntries() []entry {
	c.mu.Lock()
	out := make([]entry, 0, len(c.registry))
	for _, e := range c.registry {
		out = append(out, *e)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

type jobPayments struct {
	c     *Coordinator
	jobID string
}

func (p *jobPayments) Await(ctx context.Context, sender, amount string) (*core.PaymentTransaction, error) {
	m := p.c.config.Monitor
	if m == nil {
		return nil, core.Terminal(errNoMonitor)
	}
	tx, err := m.MonitorPayment(ctx, sender, amount)
	if err != nil {
		return nil, err
	}

	if s := p.c.config.Store; s != nil {
		if err := s.SavePayment(context.WithoutCancel(ctx), p.jobID, *tx); err != nil {
			p.c.logger.Error("failed to save payment", "job_id", p.jobID, "tx", tx.Hash, "error", err)
		}
	}
	p.c.queue.Emit(&core.PaymentConfirmed{JobID: p.jobID, Transaction: *tx, Timestamp: time.Now()})
	return tx, nil
}

func (p *jobPayments) Verify(ctx context.Context, hash, amount string) (bool, error) {
	m := p.c.config.Monitor
	if m == nil {
		return false, core.Terminal(errNoMonitor)
	}
	return m.VerifyPaymentTransaction(ctx, hash, amount)
}
