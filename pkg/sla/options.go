package sla

import (
	"log/slog"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/schedule"
)

// Default values.
var (
	DefaultExpirationHours     = 24
	DefaultSweepInterval       = 5 * time.Minute
	DefaultGraduationThreshold = int64(10)
	DefaultProgressKey         = "graduation_progress"
)

// Config holds Tracker configuration.
type Config struct {
	Expiration          time.Duration
	Enabled             bool
	Sweep               schedule.Schedule
	GraduationThreshold int64
	ProgressKey         string
	Clock               func() time.Time
	Logger              *slog.Logger
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Expiration:          time.Duration(DefaultExpirationHours) * time.Hour,
		Enabled:             true,
		Sweep:               schedule.Every(DefaultSweepInterval),
		GraduationThreshold: DefaultGraduationThreshold,
		ProgressKey:         DefaultProgressKey,
		Clock:               time.Now,
	}
}

// Option modifies Config.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// ExpirationHours sets the expiration window measured from job creation.
func ExpirationHours(h int) Option {
	return optionFunc(func(c *Config) {
		if h > 0 {
			c.Expiration = time.Duration(h) * time.Hour
		}
	})
}

// Expiration sets the expiration window directly.
func Expiration(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Expiration = d
		}
	})
}

// Enabled turns tracking on or off. A disabled tracker accepts every call
// and tracks nothing.
func Enabled(on bool) Option {
	return optionFunc(func(c *Config) {
		c.Enabled = on
	})
}

// SweepSchedule sets when the background sweep runs.
func SweepSchedule(s schedule.Schedule) Option {
	return optionFunc(func(c *Config) {
		if s != nil {
			c.Sweep = s
		}
	})
}

// GraduationThreshold sets the completion milestone reported by statistics.
func GraduationThreshold(n int64) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.GraduationThreshold = n
		}
	})
}

// ProgressKey sets the counter key advanced by MarkCompleted.
func ProgressKey(key string) Option {
	return optionFunc(func(c *Config) {
		if key != "" {
			c.ProgressKey = key
		}
	})
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return optionFunc(func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
