package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobs "github.com/jdziat/paid-deploy-jobs"
	"github.com/jdziat/paid-deploy-jobs/pkg/coordinator"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

func TestFacade_ErrorHelpers(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, jobs.IsRetryable(jobs.Transient(base)))
	assert.True(t, jobs.IsRetryable(jobs.RetryAfter(time.Second, base)))
	assert.False(t, jobs.IsRetryable(jobs.Terminal(base)))
	assert.False(t, jobs.IsRetryable(jobs.NoRetry(base)))
	assert.False(t, jobs.IsRetryable(&jobs.PaymentTimeoutError{Sender: "0x1", Amount: "1"}))
	assert.ErrorIs(t, &jobs.PaymentTimeoutError{}, jobs.ErrPaymentTimeout)
}

func TestFacade_Reduce(t *testing.T) {
	s := jobs.Snapshot{}
	for i := int64(1); i <= 8; i++ {
		s.Jobs.Completed = append(s.Jobs.Completed, jobs.JobEntry{JobID: i, Phase: "completed"})
	}

	out := jobs.Reduce(s, jobs.HistoryConfig{
		KeepCompletedJobs: 5,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.Len(t, out.Jobs.Completed, 5)
	assert.Equal(t, int64(4), out.Jobs.Completed[0].JobID)
}

func TestFacade_EndToEnd(t *testing.T) {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := jobs.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = storage.ConfigurePool(db)
	require.NoError(t, err)
	store := jobs.NewGormStorage(db)
	require.NoError(t, store.Migrate(ctx))

	tracker := jobs.NewTracker(store, jobs.ExpirationHours(1), jobs.SweepSchedule(jobs.Every(time.Hour)))

	var order []string
	c := jobs.New(func(ctx context.Context, job *jobs.QueuedJob, pay jobs.Payments) error {
		order = append(order, job.ID())
		return nil
	}, tracker,
		jobs.WithStore(store),
		jobs.AllowPhases("transaction"),
		jobs.WithQueueOptions(jobs.ProcessingDelay(0), jobs.MaxRetries(2)),
		coordinator.WithLogger(quiet),
	)
	defer c.Close()

	c.Queue().Pause()
	require.NoError(t, c.Admit(ctx, jobs.Job{ID: "10", Phase: "transaction"}, 10))
	require.NoError(t, c.Admit(ctx, jobs.Job{ID: "20", Phase: "transaction"}, 20))
	require.NoError(t, c.Admit(ctx, jobs.Job{ID: "5", Phase: "transaction"}, 5))
	c.Queue().Resume()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Queue().WaitIdle(waitCtx))

	assert.Equal(t, []string{"20", "10", "5"}, order)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Queue.Processed)
	assert.Equal(t, int64(3), st.Sla.ProgressCount)
}
