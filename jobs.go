// Package jobs runs paid deployment jobs one at a time, waits for their
// on-chain payment, and abandons jobs that outlive their SLA.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := jobs.OpenDB("sqlite", "jobs.db")
//	store := jobs.NewGormStorage(db)
//	store.Migrate(ctx)
//
//	tracker := jobs.NewTracker(store, jobs.ExpirationHours(24))
//	monitor := jobs.NewMonitor(rpc, token, recipient, jobs.PaymentTimeout(5*time.Minute))
//
//	c := jobs.New(func(ctx context.Context, job *jobs.QueuedJob, pay jobs.Payments) error {
//	    if _, err := pay.Await(ctx, client, "50"); err != nil {
//	        return err
//	    }
//	    return deploy(ctx, job)
//	}, tracker, jobs.WithMonitor(monitor), jobs.WithStore(store))
//	defer c.Close()
//
//	go c.Start(ctx)
//	c.Admit(ctx, jobs.Job{ID: "42", Phase: "transaction"}, 0)
package jobs

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/jdziat/paid-deploy-jobs/pkg/chain"
	"github.com/jdziat/paid-deploy-jobs/pkg/coordinator"
	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/history"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
	"github.com/jdziat/paid-deploy-jobs/pkg/schedule"
	"github.com/jdziat/paid-deploy-jobs/pkg/sla"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

type (
	// Job is an externally issued marketplace job.
	Job = core.Job

	// QueuedJob wraps a Job with scheduling metadata.
	QueuedJob = core.QueuedJob

	// PaymentTransaction is a confirmed on-chain token transfer.
	PaymentTransaction = core.PaymentTransaction

	// SlaJob is the expiration record for a job.
	SlaJob = core.SlaJob

	// SlaState is the lifecycle color of a tracked job.
	SlaState = core.SlaState

	// CounterStore persists runtime counters.
	CounterStore = core.CounterStore

	// Event is the interface for all queue events.
	Event = core.Event

	// JobEnqueued is emitted when a job is accepted by the queue.
	JobEnqueued = core.JobEnqueued

	// JobStarted is emitted when a job attempt starts.
	JobStarted = core.JobStarted

	// JobCompleted is emitted when a job completes successfully.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a job fails permanently.
	JobFailed = core.JobFailed

	// JobRetrying is emitted when a job is scheduled for another attempt.
	JobRetrying = core.JobRetrying

	// JobExpired is emitted when the SLA sweep abandons a job.
	JobExpired = core.JobExpired

	// PaymentConfirmed is emitted when a job's payment is observed.
	PaymentConfirmed = core.PaymentConfirmed

	// TransientError marks a failure that should be retried.
	TransientError = core.TransientError

	// TerminalError marks a failure that must not be retried.
	TerminalError = core.TerminalError

	// PaymentTimeoutError is returned when no payment arrives in time.
	PaymentTimeoutError = core.PaymentTimeoutError

	// Queue runs jobs in priority order, one at a time.
	Queue = queue.Queue

	// QueueOption configures a Queue.
	QueueOption = queue.Option

	// QueueStatus is a point-in-time view of a Queue.
	QueueStatus = queue.Status

	// Monitor watches transfers of one token to one recipient.
	Monitor = chain.Monitor

	// MonitorOption configures a Monitor.
	MonitorOption = chain.Option

	// ChainClient is the RPC surface a Monitor needs.
	ChainClient = chain.Client

	// Tracker holds one SlaJob per active job.
	Tracker = sla.Tracker

	// TrackerOption configures a Tracker.
	TrackerOption = sla.Option

	// SlaStatistics summarizes a Tracker.
	SlaStatistics = sla.Statistics

	// Snapshot is the job and inventory history handed to consumers.
	Snapshot = history.Snapshot

	// JobEntry is one job in a history snapshot.
	JobEntry = history.JobEntry

	// HistoryConfig controls history reduction.
	HistoryConfig = history.Config

	// Coordinator admits jobs and keeps queue and SLA state in step.
	Coordinator = coordinator.Coordinator

	// CoordinatorOption configures a Coordinator.
	CoordinatorOption = coordinator.Option

	// Handler performs one attempt of a job.
	Handler = coordinator.Handler

	// Payments lets a handler wait for or check its payment.
	Payments = coordinator.Payments

	// Status combines queue and SLA views.
	Status = coordinator.Status

	// Schedule determines when a recurring task fires next.
	Schedule = schedule.Schedule

	// GormStorage persists counters, payments and outcomes.
	GormStorage = storage.GormStorage

	// RedisCounterStore keeps counters in Redis.
	RedisCounterStore = storage.RedisCounterStore
)

// SLA states
const (
	SlaGreen = core.SlaGreen
	SlaRed   = core.SlaRed
	SlaBrown = core.SlaBrown
)

// Error variables
var (
	ErrInvalidJobID      = core.ErrInvalidJobID
	ErrInvalidPhase      = core.ErrInvalidPhase
	ErrQueueClosed       = core.ErrQueueClosed
	ErrJobNotTracked     = core.ErrJobNotTracked
	ErrJobAlreadyTracked = core.ErrJobAlreadyTracked
	ErrJobExpired        = core.ErrJobExpired
	ErrPaymentTimeout    = core.ErrPaymentTimeout
	ErrInvalidAmount     = core.ErrInvalidAmount
	ErrInvalidAddress    = core.ErrInvalidAddress
	ErrInvalidTxHash     = core.ErrInvalidTxHash
)

// New creates a Coordinator running handler for every admitted job.
func New(handler Handler, tracker *Tracker, opts ...CoordinatorOption) *Coordinator {
	return coordinator.New(handler, tracker, opts...)
}

// NewQueue creates a standalone job queue.
func NewQueue(process queue.ProcessFunc, opts ...QueueOption) *Queue {
	return queue.New(process, opts...)
}

// NewMonitor creates a transfer monitor for token payments to recipient.
func NewMonitor(client ChainClient, token, recipient common.Address, opts ...MonitorOption) *Monitor {
	return chain.NewMonitor(client, token, recipient, opts...)
}

// NewTracker creates an SLA tracker. counters may be nil.
func NewTracker(counters CounterStore, opts ...TrackerOption) *Tracker {
	return sla.NewTracker(counters, opts...)
}

// Reduce bounds a history snapshot.
func Reduce(s Snapshot, cfg HistoryConfig) Snapshot {
	return history.Reduce(s, cfg)
}

// OpenDB connects to "sqlite" or "postgres".
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	return storage.Open(driver, dsn)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// Transient wraps an error to indicate it should be retried.
func Transient(err error) error {
	return core.Transient(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// Terminal wraps an error to indicate it should not be retried.
func Terminal(err error) error {
	return core.Terminal(err)
}

// NoRetry is an alias of Terminal.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// IsRetryable reports whether the queue would retry err.
func IsRetryable(err error) bool {
	return queue.IsRetryable(err)
}

// Coordinator options

// WithMonitor sets the payment monitor handed to handlers.
func WithMonitor(m coordinator.PaymentMonitor) CoordinatorOption {
	return coordinator.WithMonitor(m)
}

// WithStore sets where payments and outcomes are persisted.
func WithStore(s coordinator.Store) CoordinatorOption {
	return coordinator.WithStore(s)
}

// WithQueueOptions passes options to the coordinator's queue.
func WithQueueOptions(opts ...QueueOption) CoordinatorOption {
	return coordinator.WithQueueOptions(opts...)
}

// WithHistory sets the retention applied by Coordinator.History.
func WithHistory(cfg HistoryConfig) CoordinatorOption {
	return coordinator.WithHistory(cfg)
}

// AllowPhases restricts admission to the listed phases.
func AllowPhases(phases ...string) CoordinatorOption {
	return coordinator.AllowPhases(phases...)
}

// Queue options

// ProcessingDelay sets the pause between consecutive jobs.
func ProcessingDelay(d time.Duration) QueueOption {
	return queue.ProcessingDelay(d)
}

// MaxRetries sets the maximum retry count.
func MaxRetries(n int) QueueOption {
	return queue.MaxRetries(n)
}

// Backoff sets the base and cap of the retry delay.
func Backoff(base, maxDelay time.Duration) QueueOption {
	return queue.Backoff(base, maxDelay)
}

// JobTimeout bounds each processor call.
func JobTimeout(d time.Duration) QueueOption {
	return queue.JobTimeout(d)
}

// Monitor options

// PaymentTimeout sets how long MonitorPayment waits.
func PaymentTimeout(d time.Duration) MonitorOption {
	return chain.Timeout(d)
}

// PollInterval sets the delay between chain queries.
func PollInterval(d time.Duration) MonitorOption {
	return chain.PollInterval(d)
}

// Confirmations sets the confirmation depth.
func Confirmations(n uint64) MonitorOption {
	return chain.Confirmations(n)
}

// TokenDecimals sets the token's native precision.
func TokenDecimals(n int32) MonitorOption {
	return chain.Decimals(n)
}

// Tracker options

// ExpirationHours sets the SLA window.
func ExpirationHours(h int) TrackerOption {
	return sla.ExpirationHours(h)
}

// SlaEnabled turns SLA tracking on or off.
func SlaEnabled(on bool) TrackerOption {
	return sla.Enabled(on)
}

// SweepSchedule sets when the SLA sweep runs.
func SweepSchedule(s Schedule) TrackerOption {
	return sla.SweepSchedule(s)
}

// Schedule functions

// Every creates a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}
