// Package queue provides the in-process priority Job Queue.
//
// This package includes:
//   - Queue: serializes execution of a processing function, one job at a time
//   - Retry classification and exponential backoff for transient failures
//   - Hook registration for job lifecycle events
//   - Event subscription for monitoring
//
// Most users should import the root package github.com/jdziat/paid-deploy-jobs
// which re-exports Queue and all option functions.
package queue
