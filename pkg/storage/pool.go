package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool is the database/sql pool applied by ConfigurePool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// PoolFor returns the default pool for a GORM dialector name. SQLite allows
// one writer at a time, and each ":memory:" connection is its own database,
// so it gets a single connection.
func PoolFor(dialect string) Pool {
	if dialect == "sqlite" {
		return Pool{MaxOpen: 1, MaxIdle: 1}
	}
	return Pool{
		MaxOpen:     10,
		MaxIdle:     5,
		MaxLifetime: 5 * time.Minute,
		MaxIdleTime: time.Minute,
	}
}

// PoolOption overrides one pool setting.
type PoolOption interface {
	applyPool(*Pool)
}

type poolOptionFunc func(*Pool)

func (f poolOptionFunc) applyPool(p *Pool) { f(p) }

// MaxOpenConns caps open connections. Non-positive values keep the default.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(p *Pool) {
		if n > 0 {
			p.MaxOpen = n
		}
	})
}

// MaxIdleConns caps idle connections. Non-positive values keep the default.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(p *Pool) {
		if n > 0 {
			p.MaxIdle = n
		}
	})
}

// ConnMaxLifetime sets how long a connection may be reused.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(p *Pool) {
		p.MaxLifetime = d
	})
}

// ConnMaxIdleTime sets how long a connection may sit idle.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(p *Pool) {
		p.MaxIdleTime = d
	})
}

// ConfigurePool applies the dialect's default pool plus opts to db and
// returns what was applied. Idle connections never exceed open ones.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) (Pool, error) {
	pool := PoolFor(db.Dialector.Name())
	for _, opt := range opts {
		opt.applyPool(&pool)
	}
	if pool.MaxIdle > pool.MaxOpen {
		pool.MaxIdle = pool.MaxOpen
	}

	sqlDB, err := db.DB()
	if err != nil {
		return pool, fmt.Errorf("jobs: get underlying *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)
	return pool, nil
}

// NewGormStorageWithPool configures the pool and wraps db.
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if _, err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
