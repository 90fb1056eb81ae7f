package coordinator

import (
	"context"
	"log/slog"

	"github.com/jdziat/paid-deploy-jobs/pkg/chain"
	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/history"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

// PaymentMonitor watches the chain for payments. *chain.Monitor
// implements it.
type PaymentMonitor interface {
	MonitorPayment(ctx context.Context, sender, amount string, opts ...chain.Option) (*core.PaymentTransaction, error)
	VerifyPaymentTransaction(ctx context.Context, hash, amount string) (bool, error)
	GetRecentPayments(ctx context.Context, blockRange uint64) ([]core.PaymentTransaction, error)
}

// Store persists payments and outcomes. *storage.GormStorage implements it.
type Store interface {
	SavePayment(ctx context.Context, jobID string, tx core.PaymentTransaction) error
	ListPayments(ctx context.Context, limit int) ([]storage.PaymentRecord, error)
	RecordOutcome(ctx context.Context, o *storage.JobOutcome) error
	ListOutcomes(ctx context.Context, status core.OutcomeStatus, limit int) ([]storage.JobOutcome, error)
}

// Config holds Coordinator configuration.
type Config struct {
	Monitor      PaymentMonitor
	Store        Store
	QueueOptions []queue.Option
	History      history.Config
	Phases       []string
	Logger       *slog.Logger
}

// Option modifies Config.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// WithMonitor sets the payment monitor handed to handlers.
func WithMonitor(m PaymentMonitor) Option {
	return optionFunc(func(c *Config) {
		c.Monitor = m
	})
}

// WithStore sets where payments and outcomes are persisted.
func WithStore(s Store) Option {
	return optionFunc(func(c *Config) {
		c.Store = s
	})
}

// WithQueueOptions passes options to the underlying job queue.
func WithQueueOptions(opts ...queue.Option) Option {
	return optionFunc(func(c *Config) {
		c.QueueOptions = append(c.QueueOptions, opts...)
	})
}

// WithHistory sets the retention applied by History.
func WithHistory(cfg history.Config) Option {
	return optionFunc(func(c *Config) {
		c.History = cfg
	})
}

// AllowPhases restricts admission to the listed job phases. By default any
// well-formed phase is accepted.
func AllowPhases(phases ...string) Option {
	return optionFunc(func(c *Config) {
		c.Phases = append(c.Phases, phases...)
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
