package core

import "context"

// CounterStore persists monotonically increasing counters outside the process.
type CounterStore interface {
	// IncrementCounter atomically adds one to key and returns the new value.
	IncrementCounter(ctx context.Context, key string) (int64, error)

	// GetCounter returns the current value of key, zero if it was never set.
	GetCounter(ctx context.Context, key string) (int64, error)
}
