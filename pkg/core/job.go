// Package core provides the domain models and interfaces for the jobs package.
package core

import (
	"encoding/json"
	"time"
)

// Job is an externally issued marketplace job. The core only relies on the
// identifier and the phase tag; Payload is passed through to processors.
type Job struct {
	ID      string          `json:"id"`
	Phase   string          `json:"phase"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueuedJob wraps a Job with scheduling metadata. It is owned by the queue
// for as long as the job is pending or in flight.
type QueuedJob struct {
	Job        Job
	Priority   int
	EnqueuedAt time.Time
	RetryCount int
	LastError  string
}

// ID returns the wrapped job identifier.
func (q *QueuedJob) ID() string {
	return q.Job.ID
}

// PaymentTransaction is a confirmed on-chain token transfer.
type PaymentTransaction struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"blockNumber"`
	Amount      string    `json:"amount"` // decimal string at token precision
	From        string    `json:"from"`
	To          string    `json:"to"`
	ObservedAt  time.Time `json:"observedAt"`
}

// SlaState is the lifecycle color of a tracked job.
type SlaState string

const (
	SlaGreen SlaState = "green" // active, or completed successfully
	SlaRed   SlaState = "red"   // rejected by the caller
	SlaBrown SlaState = "brown" // expired by the sweep
)

// SlaJob is the expiration record for a single job id.
type SlaJob struct {
	JobID           string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	State           SlaState
	RetryCount      int
	RejectionReason string
}

// OutcomeStatus is the terminal result recorded for a job.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeExpired   OutcomeStatus = "expired"
)
