package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolFor(t *testing.T) {
	assert.Equal(t, Pool{MaxOpen: 1, MaxIdle: 1}, PoolFor("sqlite"))

	pg := PoolFor("postgres")
	assert.Equal(t, 10, pg.MaxOpen)
	assert.Equal(t, 5, pg.MaxIdle)
	assert.Equal(t, 5*time.Minute, pg.MaxLifetime)
}

func TestPoolOptions_IgnoreNonPositiveCounts(t *testing.T) {
	p := Pool{MaxOpen: 4, MaxIdle: 2}

	MaxOpenConns(0).applyPool(&p)
	MaxIdleConns(-1).applyPool(&p)
	ConnMaxLifetime(time.Hour).applyPool(&p)
	ConnMaxIdleTime(time.Second).applyPool(&p)

	assert.Equal(t, Pool{MaxOpen: 4, MaxIdle: 2, MaxLifetime: time.Hour, MaxIdleTime: time.Second}, p)
}

func TestConfigurePool_SqliteSingleConnection(t *testing.T) {
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)

	pool, err := ConfigurePool(db)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.MaxOpen)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_ClampsIdle(t *testing.T) {
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)

	pool, err := ConfigurePool(db, MaxOpenConns(3), MaxIdleConns(8))
	require.NoError(t, err)
	assert.Equal(t, 3, pool.MaxOpen)
	assert.Equal(t, 3, pool.MaxIdle)
}

func TestNewGormStorageWithPool(t *testing.T) {
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)

	s, err := NewGormStorageWithPool(db)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	n, err := s.IncrementCounter(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "user@/db")
	assert.Error(t, err)
}
