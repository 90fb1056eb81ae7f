package core

import "time"

// Event is the interface for all queue events. Job fields carry a copy taken
// when the event was emitted.
type Event interface {
	eventMarker()
}

// JobEnqueued is emitted when a job is accepted by the queue.
type JobEnqueued struct {
	JobID     string
	Priority  int
	Timestamp time.Time
}

func (*JobEnqueued) eventMarker() {}

// JobStarted is emitted when a job starts processing.
type JobStarted struct {
	Job       *QueuedJob
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       *QueuedJob
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails permanently.
type JobFailed struct {
	Job       *QueuedJob
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a job is scheduled for another attempt.
type JobRetrying struct {
	Job       *QueuedJob
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}

// JobExpired is emitted when the SLA sweep abandons a job.
type JobExpired struct {
	JobID     string
	Timestamp time.Time
}

func (*JobExpired) eventMarker() {}

// PaymentConfirmed is emitted when a job's payment is observed on chain.
type PaymentConfirmed struct {
	JobID       string
	Transaction PaymentTransaction
	Timestamp   time.Time
}

func (*PaymentConfirmed) eventMarker() {}
