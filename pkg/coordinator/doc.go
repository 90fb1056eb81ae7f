// Package coordinator owns the lifecycle of admitted jobs.
//
// A Coordinator keeps one registry entry per admitted job and projects it
// onto the job queue and the SLA tracker, so the two never disagree about
// which jobs are live. Queue hooks drive SLA transitions and persisted
// outcomes; SLA expirations remove jobs from the queue.
package coordinator
