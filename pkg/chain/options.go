package chain

import (
	"log/slog"
	"time"
)

// Default values.
var (
	DefaultDecimals      = int32(6)
	DefaultTimeout       = 5 * time.Minute
	DefaultPollInterval  = 3 * time.Second
	DefaultConfirmations = uint64(1)
)

// Config holds Monitor configuration. Every field except Decimals can be
// overridden per MonitorPayment call.
type Config struct {
	Decimals      int32
	Timeout       time.Duration
	PollInterval  time.Duration
	Confirmations uint64
	Logger        *slog.Logger
	Clock         func() time.Time
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Decimals:      DefaultDecimals,
		Timeout:       DefaultTimeout,
		PollInterval:  DefaultPollInterval,
		Confirmations: DefaultConfirmations,
	}
}

// Option modifies Config.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// Decimals sets the token's native precision.
func Decimals(n int32) Option {
	return optionFunc(func(c *Config) {
		if n >= 0 {
			c.Decimals = n
		}
	})
}

// Timeout sets how long MonitorPayment waits before giving up.
func Timeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	})
}

// PollInterval sets the delay between chain queries.
func PollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// Confirmations sets how many blocks must follow a transfer's block before
// it is accepted.
func Confirmations(n uint64) Option {
	return optionFunc(func(c *Config) {
		c.Confirmations = n
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithClock overrides the clock used to stamp observed payments.
func WithClock(clock func() time.Time) Option {
	return optionFunc(func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	})
}
