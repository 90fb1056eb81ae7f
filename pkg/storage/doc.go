// Package storage persists counters, confirmed payments and job outcomes.
//
// GormStorage works with any GORM dialect; the daemon uses SQLite or
// PostgreSQL. RedisCounterStore is an alternative core.CounterStore for
// deployments that already run Redis.
package storage
