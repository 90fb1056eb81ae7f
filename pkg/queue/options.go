// Package queue provides the in-process priority Job Queue.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/security"
)

// Default values.
var (
	DefaultProcessingDelay = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultBackoffBase     = time.Second
	DefaultBackoffCap      = 30 * time.Second
)

// Options holds configuration for a Queue.
type Options struct {
	// ProcessingDelay is the pause after every attempt before the next job is
	// dequeued. Back-to-back transactions from one signer collide on nonces.
	ProcessingDelay time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffCap      time.Duration

	// JobTimeout bounds a single processor call. Zero leaves it unbounded.
	JobTimeout time.Duration

	Logger  *slog.Logger
	Context context.Context
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		ProcessingDelay: DefaultProcessingDelay,
		MaxRetries:      DefaultMaxRetries,
		BackoffBase:     DefaultBackoffBase,
		BackoffCap:      DefaultBackoffCap,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// ProcessingDelay sets the delay between consecutive jobs.
func ProcessingDelay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		if d >= 0 {
			o.ProcessingDelay = d
		}
	})
}

// MaxRetries sets the maximum retry count.
// Values are clamped to [0, MaxRetries] (100).
func MaxRetries(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxRetries = security.ClampRetries(n)
	})
}

// Backoff sets the base and the cap of the exponential retry delay.
func Backoff(base, maxDelay time.Duration) Option {
	return optionFunc(func(o *Options) {
		if base > 0 {
			o.BackoffBase = base
		}
		if maxDelay > 0 {
			o.BackoffCap = maxDelay
		}
	})
}

// JobTimeout bounds each processor call. Only processors that honor their
// context can be interrupted.
func JobTimeout(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.JobTimeout = d
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		o.Logger = l
	})
}

// WithContext sets the parent context of the processing loop. Cancelling it
// stops the queue like Close does.
func WithContext(ctx context.Context) Option {
	return optionFunc(func(o *Options) {
		o.Context = ctx
	})
}
