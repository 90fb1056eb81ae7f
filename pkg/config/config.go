// Package config loads daemon configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jdziat/paid-deploy-jobs/pkg/chain"
	"github.com/jdziat/paid-deploy-jobs/pkg/history"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
	"github.com/jdziat/paid-deploy-jobs/pkg/schedule"
	"github.com/jdziat/paid-deploy-jobs/pkg/security"
	"github.com/jdziat/paid-deploy-jobs/pkg/sla"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

// Config is the daemon configuration. Runtime counters are never written
// back here; they live in the counter store.
type Config struct {
	RPCURL           string `env:"RPC_URL,notEmpty"`
	TokenAddress     string `env:"TOKEN_ADDRESS,notEmpty"`
	TokenDecimals    int32  `env:"TOKEN_DECIMALS" envDefault:"6"`
	PaymentRecipient string `env:"PAYMENT_RECIPIENT,notEmpty"`

	PaymentTimeout       time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"5m"`
	PaymentPollInterval  time.Duration `env:"PAYMENT_POLL_INTERVAL" envDefault:"3s"`
	PaymentConfirmations uint64        `env:"PAYMENT_CONFIRMATIONS" envDefault:"1"`

	ProcessingDelay time.Duration `env:"PROCESSING_DELAY" envDefault:"5s"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	BackoffBase     time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffCap      time.Duration `env:"BACKOFF_CAP" envDefault:"30s"`
	JobTimeout      time.Duration `env:"JOB_TIMEOUT" envDefault:"0s"`

	SlaEnabled          bool   `env:"SLA_ENABLED" envDefault:"true"`
	SlaExpirationHours  int    `env:"SLA_EXPIRATION_HOURS" envDefault:"24"`
	SlaSweepCron        string `env:"SLA_SWEEP_CRON" envDefault:"@every 5m"`
	GraduationThreshold int64  `env:"GRADUATION_THRESHOLD" envDefault:"10"`

	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN     string `env:"DB_DSN" envDefault:"file:paid-deploy.db?_busy_timeout=5000"`
	DBMaxOpen int    `env:"DB_MAX_OPEN_CONNS"`
	DBMaxIdle int    `env:"DB_MAX_IDLE_CONNS"`
	RedisAddr string `env:"REDIS_ADDR"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	KeepCompletedJobs      int      `env:"KEEP_COMPLETED_JOBS" envDefault:"5"`
	KeepCancelledJobs      int      `env:"KEEP_CANCELLED_JOBS" envDefault:"5"`
	KeepAcquiredInventory  int      `env:"KEEP_ACQUIRED_INVENTORY" envDefault:"5"`
	KeepProducedInventory  int      `env:"KEEP_PRODUCED_INVENTORY" envDefault:"5"`
	JobIDsToIgnore         []int64  `env:"JOB_IDS_TO_IGNORE" envSeparator:","`
	AgentAddressesToIgnore []string `env:"AGENT_ADDRESSES_TO_IGNORE" envSeparator:","`
}

// Load parses the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("jobs: load config: %w", err)
	}
	return c, c.Validate()
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return c, fmt.Errorf("jobs: load config: %w", err)
	}
	return c, c.Validate()
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if err := security.ValidateAddress(c.TokenAddress); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_ADDRESS: %w", err))
	}
	if err := security.ValidateAddress(c.PaymentRecipient); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_RECIPIENT: %w", err))
	}
	for _, addr := range c.AgentAddressesToIgnore {
		if err := security.ValidateAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("AGENT_ADDRESSES_TO_IGNORE: %w", err))
		}
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS: %d out of range", c.TokenDecimals))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES: %d is negative", c.MaxRetries))
	}
	if _, err := schedule.ParseCron(c.SlaSweepCron); err != nil {
		errs = append(errs, fmt.Errorf("SLA_SWEEP_CRON: %w", err))
	}
	return errors.Join(errs...)
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QueueOptions returns the job queue options.
func (c Config) QueueOptions(logger *slog.Logger) []queue.Option {
	return []queue.Option{
		queue.ProcessingDelay(c.ProcessingDelay),
		queue.MaxRetries(c.MaxRetries),
		queue.Backoff(c.BackoffBase, c.BackoffCap),
		queue.JobTimeout(c.JobTimeout),
		queue.WithLogger(logger),
	}
}

// MonitorOptions returns the transfer monitor options.
func (c Config) MonitorOptions(logger *slog.Logger) []chain.Option {
	return []chain.Option{
		chain.Decimals(c.TokenDecimals),
		chain.Timeout(c.PaymentTimeout),
		chain.PollInterval(c.PaymentPollInterval),
		chain.Confirmations(c.PaymentConfirmations),
		chain.WithLogger(logger),
	}
}

// TrackerOptions returns the SLA tracker options. The sweep expression was
// checked by Validate.
func (c Config) TrackerOptions(logger *slog.Logger) []sla.Option {
	opts := []sla.Option{
		sla.Enabled(c.SlaEnabled),
		sla.ExpirationHours(c.SlaExpirationHours),
		sla.GraduationThreshold(c.GraduationThreshold),
		sla.WithLogger(logger),
	}
	if s, err := schedule.ParseCron(c.SlaSweepCron); err == nil {
		opts = append(opts, sla.SweepSchedule(s))
	}
	return opts
}

// PoolOptions returns the SQL pool overrides. Zero keeps the driver default.
func (c Config) PoolOptions() []storage.PoolOption {
	return []storage.PoolOption{
		storage.MaxOpenConns(c.DBMaxOpen),
		storage.MaxIdleConns(c.DBMaxIdle),
	}
}

// HistoryConfig returns the history reducer configuration.
func (c Config) HistoryConfig(logger *slog.Logger) history.Config {
	return history.Config{
		KeepCompletedJobs:      c.KeepCompletedJobs,
		KeepCancelledJobs:      c.KeepCancelledJobs,
		KeepAcquiredInventory:  c.KeepAcquiredInventory,
		KeepProducedInventory:  c.KeepProducedInventory,
		JobIDsToIgnore:         c.JobIDsToIgnore,
		AgentAddressesToIgnore: c.AgentAddressesToIgnore,
		Logger:                 logger,
	}
}
