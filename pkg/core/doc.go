// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - Job, QueuedJob, PaymentTransaction and SlaJob data models
//   - CounterStore interface defining the durable progress counter contract
//   - Event types for queue monitoring
//   - Error kinds used to classify processing failures
//
// Most users should import the root package github.com/jdziat/paid-deploy-jobs
// instead of this package directly.
package core
