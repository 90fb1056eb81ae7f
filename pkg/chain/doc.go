// Package chain provides the Transfer Monitor, which watches an EVM chain
// for ERC-20 token transfers paying for jobs.
//
// This package includes:
//   - Monitor: polls for a transfer of an exact amount from a given sender
//   - VerifyPaymentTransaction for a transaction hash that is already known
//   - GetRecentPayments for a best-effort backward scan
//   - ParseAmount / FormatAmount for exact token-precision arithmetic
//
// Most users should import the root package github.com/jdziat/paid-deploy-jobs
// which re-exports the monitor constructor.
package chain
