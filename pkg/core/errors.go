package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation and lifecycle errors
var (
	ErrInvalidJobID      = errors.New("jobs: invalid job id")
	ErrInvalidPhase      = errors.New("jobs: invalid job phase")
	ErrQueueClosed       = errors.New("jobs: queue is closed")
	ErrJobNotTracked     = errors.New("jobs: job is not tracked")
	ErrJobAlreadyTracked = errors.New("jobs: job is already tracked")
	ErrJobExpired        = errors.New("jobs: job expired")
	ErrPaymentTimeout    = errors.New("jobs: payment not confirmed before timeout")
	ErrInvalidAmount     = errors.New("jobs: invalid token amount")
	ErrInvalidAddress    = errors.New("jobs: invalid address")
	ErrInvalidTxHash     = errors.New("jobs: invalid transaction hash")
)

// TransientError marks a failure that is expected to clear on its own.
// A non-zero Delay overrides the computed backoff.
type TransientError struct {
	Err   error
	Delay time.Duration
}

func (e *TransientError) Error() string {
	if e.Delay > 0 {
		return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error to indicate it should be retried.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &TransientError{Err: err, Delay: d}
}

// TerminalError marks a failure that must not be retried.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps an error to indicate it should not be retried.
func Terminal(err error) error {
	return &TerminalError{Err: err}
}

// NoRetry is an alias of Terminal.
func NoRetry(err error) error {
	return Terminal(err)
}

// PaymentTimeoutError is returned when no matching, confirmed transfer was
// observed within the monitoring window.
type PaymentTimeoutError struct {
	Sender  string
	Amount  string
	Timeout time.Duration
}

func (e *PaymentTimeoutError) Error() string {
	return fmt.Sprintf("jobs: payment of %s from %s not confirmed within %v", e.Amount, e.Sender, e.Timeout)
}

// Is reports ErrPaymentTimeout equivalence.
func (e *PaymentTimeoutError) Is(target error) bool {
	return target == ErrPaymentTimeout
}
