package storage

import (
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// Counter is a named monotonically increasing value.
type Counter struct {
	Name      string `gorm:"primaryKey;size:128"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// PaymentRecord is a confirmed transfer linked to the job it paid for.
type PaymentRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	JobID       string `gorm:"index;size:128"`
	Hash        string `gorm:"uniqueIndex;size:66;not null"`
	BlockNumber uint64 `gorm:"index"`
	Amount      string `gorm:"size:78;not null"`
	FromAddress string `gorm:"size:42;index"`
	ToAddress   string `gorm:"size:42"`
	ObservedAt  time.Time
	CreatedAt   time.Time
}

// Transaction converts the record back to the domain type.
func (r PaymentRecord) Transaction() core.PaymentTransaction {
	return core.PaymentTransaction{
		Hash:        r.Hash,
		BlockNumber: r.BlockNumber,
		Amount:      r.Amount,
		From:        r.FromAddress,
		To:          r.ToAddress,
		ObservedAt:  r.ObservedAt,
	}
}

// JobOutcome is the terminal result of one job. Seq orders outcomes by
// insertion.
type JobOutcome struct {
	Seq        int64              `gorm:"primaryKey;autoIncrement"`
	JobID      string             `gorm:"index;size:128;not null"`
	Phase      string             `gorm:"size:64"`
	Status     core.OutcomeStatus `gorm:"index;size:16;not null"`
	Reason     string             `gorm:"size:1024"`
	RetryCount int
	Payload    []byte
	CreatedAt  time.Time `gorm:"index"`
}
