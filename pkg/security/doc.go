// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Input validation for job ids, phase tags and hex addresses
//   - Error message sanitization before outcomes are persisted
//   - Clamping functions to enforce safe limits on retries
//
// Most users should import the root package github.com/jdziat/paid-deploy-jobs
// which re-exports these functions.
package security
