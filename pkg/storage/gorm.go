package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/security"
)

// GormStorage implements core.CounterStore and the payment and outcome
// stores using GORM.
type GormStorage struct {
	db *gorm.DB
}

// Compile-time check.
var _ core.CounterStore = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Counter{}, &PaymentRecord{}, &JobOutcome{})
}

// IncrementCounter atomically adds one to key and returns the new value.
func (s *GormStorage) IncrementCounter(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, errors.New("jobs: empty counter key")
	}
	now := time.Now()
	var c Counter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("counters.value + 1"),
				"updated_at": now,
			}),
		}).Create(&Counter{Name: key, Value: 1, UpdatedAt: now}).Error
		if err != nil {
			return err
		}
		return tx.Where("name = ?", key).First(&c).Error
	})
	if err != nil {
		return 0, fmt.Errorf("jobs: increment counter %s: %w", key, err)
	}
	return c.Value, nil
}

// GetCounter returns the value of key, or zero when it was never set.
func (s *GormStorage) GetCounter(ctx context.Context, key string) (int64, error) {
	var c Counter
	err := s.db.WithContext(ctx).Where("name = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("jobs: read counter %s: %w", key, err)
	}
	return c.Value, nil
}

// SavePayment records a confirmed payment for jobID. Saving the same
// transaction hash twice is a no-op.
func (s *GormStorage) SavePayment(ctx context.Context, jobID string, tx core.PaymentTransaction) error {
	rec := PaymentRecord{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Hash:        tx.Hash,
		BlockNumber: tx.BlockNumber,
		Amount:      tx.Amount,
		FromAddress: tx.From,
		ToAddress:   tx.To,
		ObservedAt:  tx.ObservedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).
		Create(&rec).Error
}

// ListPayments returns up to limit payments, highest block first. A
// non-positive limit returns all of them.
func (s *GormStorage) ListPayments(ctx context.Context, limit int) ([]PaymentRecord, error) {
	var recs []PaymentRecord
	q := s.db.WithContext(ctx).Order("block_number DESC").Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// RecordOutcome stores the terminal result of a job.
func (s *GormStorage) RecordOutcome(ctx context.Context, o *JobOutcome) error {
	if o.JobID == "" {
		return core.ErrInvalidJobID
	}
	o.Reason = security.SanitizeErrorMessage(o.Reason)
	return s.db.WithContext(ctx).Create(o).Error
}

// ListOutcomes returns up to limit outcomes, newest first. An empty status
// matches every status; a non-positive limit returns all of them.
func (s *GormStorage) ListOutcomes(ctx context.Context, status core.OutcomeStatus, limit int) ([]JobOutcome, error) {
	var out []JobOutcome
	q := s.db.WithContext(ctx).Order("seq DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CountOutcomes returns the number of outcomes per status.
func (s *GormStorage) CountOutcomes(ctx context.Context) (map[core.OutcomeStatus]int64, error) {
	var rows []struct {
		Status core.OutcomeStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&JobOutcome{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[core.OutcomeStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
