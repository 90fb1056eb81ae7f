package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestStorage returns migrated storage for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance pinned to one connection so every
// query sees the same database.
func openTestStorage(t *testing.T) *GormStorage {
	t.Helper()

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err = Open("postgres", dsn)
		require.NoError(t, err, "open postgres test db")
		_, err = ConfigurePool(db, MaxOpenConns(2), MaxIdleConns(1))
		require.NoError(t, err)
	} else {
		db, err = Open("sqlite", ":memory:")
		require.NoError(t, err, "open in-memory sqlite")
		_, err = ConfigurePool(db)
		require.NoError(t, err)
	}

	s := NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))

	cleanup(db)
	t.Cleanup(func() {
		cleanup(db)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return s
}

func cleanup(db *gorm.DB) {
	for _, tbl := range []string{"counters", "payment_records", "job_outcomes"} {
		db.Exec("DELETE FROM " + tbl)
	}
}
