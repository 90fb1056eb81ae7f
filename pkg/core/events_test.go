package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvents_ImplementEvent(t *testing.T) {
	job := &QueuedJob{Job: Job{ID: "test"}}
	events := []Event{
		&JobEnqueued{JobID: "test", Priority: 5, Timestamp: time.Now()},
		&JobStarted{Job: job, Timestamp: time.Now()},
		&JobCompleted{Job: job, Duration: time.Second, Timestamp: time.Now()},
		&JobFailed{Job: job, Error: errors.New("failed"), Timestamp: time.Now()},
		&JobRetrying{Job: job, Attempt: 1, NextRunAt: time.Now().Add(time.Minute), Timestamp: time.Now()},
		&JobExpired{JobID: "test", Timestamp: time.Now()},
		&PaymentConfirmed{JobID: "test", Transaction: PaymentTransaction{Hash: "0x1"}, Timestamp: time.Now()},
	}
	for _, e := range events {
		assert.NotNil(t, e)
	}
}
