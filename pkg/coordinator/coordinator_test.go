package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/paid-deploy-jobs/pkg/chain"
	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/history"
	"github.com/jdziat/paid-deploy-jobs/pkg/queue"
	"github.com/jdziat/paid-deploy-jobs/pkg/sla"
	"github.com/jdziat/paid-deploy-jobs/pkg/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMonitor struct {
	tx       *core.PaymentTransaction
	err      error
	verified bool
	recent   []core.PaymentTransaction
	calls    atomic.Int32
}

func (m *fakeMonitor) MonitorPayment(ctx context.Context, sender, amount string, _ ...chain.Option) (*core.PaymentTransaction, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

func (m *fakeMonitor) VerifyPaymentTransaction(ctx context.Context, hash, amount string) (bool, error) {
	return m.verified, nil
}

func (m *fakeMonitor) GetRecentPayments(ctx context.Context, blockRange uint64) ([]core.PaymentTransaction, error) {
	return m.recent, nil
}

type fixture struct {
	coord   *Coordinator
	tracker *sla.Tracker
	store   *storage.GormStorage
	clock   *fakeClock
}

func openStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	db, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = storage.ConfigurePool(db)
	require.NoError(t, err)
	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newFixture(t *testing.T, handler Handler, opts ...Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	store := openStore(t)
	tracker := sla.NewTracker(store, sla.WithClock(clock.Now), sla.WithLogger(quiet), sla.ExpirationHours(24))

	base := []Option{
		WithStore(store),
		WithLogger(quiet),
		WithQueueOptions(queue.ProcessingDelay(0), queue.Backoff(time.Millisecond, 5*time.Millisecond)),
	}
	c := New(handler, tracker, append(base, opts...)...)
	t.Cleanup(c.Close)
	return &fixture{coord: c, tracker: tracker, store: store, clock: clock}
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.coord.Queue().WaitIdle(ctx))
}

func (f *fixture) outcomes(t *testing.T, status core.OutcomeStatus) []storage.JobOutcome {
	t.Helper()
	out, err := f.store.ListOutcomes(context.Background(), status, 0)
	require.NoError(t, err)
	return out
}

func okHandler(ctx context.Context, job *core.QueuedJob, pay Payments) error { return nil }

func TestAdmit_CompletesAndRecords(t *testing.T) {
	f := newFixture(t, okHandler)
	ctx := context.Background()

	require.NoError(t, f.coord.Admit(ctx, core.Job{ID: "42", Phase: "transaction"}, 0))
	f.waitIdle(t)

	done := f.outcomes(t, core.OutcomeCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, "42", done[0].JobID)
	assert.Equal(t, "transaction", done[0].Phase)

	assert.Nil(t, f.tracker.GetJobState("42"))
	n, err := f.store.GetCounter(ctx, sla.DefaultProgressKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdmit_RejectsInvalidPhase(t *testing.T) {
	f := newFixture(t, okHandler, AllowPhases("transaction"))
	ctx := context.Background()

	err := f.coord.Admit(ctx, core.Job{ID: "1", Phase: "negotiation"}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidPhase)

	err = f.coord.Admit(ctx, core.Job{ID: "2", Phase: "bad phase!"}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidPhase)

	err = f.coord.Admit(ctx, core.Job{ID: "", Phase: "transaction"}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidJobID)

	assert.Empty(t, f.tracker.ActiveJobs())
}

func TestAdmit_Duplicate(t *testing.T) {
	f := newFixture(t, okHandler)
	f.coord.Queue().Pause()
	ctx := context.Background()

	require.NoError(t, f.coord.Admit(ctx, core.Job{ID: "1", Phase: "transaction"}, 0))
	err := f.coord.Admit(ctx, core.Job{ID: "1", Phase: "transaction"}, 0)
	assert.ErrorIs(t, err, core.ErrJobAlreadyTracked)
	assert.Len(t, f.coord.Queue().Pending(), 1)
}

func TestAdmit_RollsBackWhenQueueClosed(t *testing.T) {
	f := newFixture(t, okHandler)
	f.coord.Close()

	err := f.coord.Admit(context.Background(), core.Job{ID: "1", Phase: "transaction"}, 0)
	assert.ErrorIs(t, err, core.ErrQueueClosed)
	assert.Nil(t, f.tracker.GetJobState("1"))

	// The id is free again.
	err = f.coord.Admit(context.Background(), core.Job{ID: "1", Phase: "transaction"}, 0)
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func TestAdmit_CancelledContext(t *testing.T) {
	f := newFixture(t, okHandler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.coord.Admit(ctx, core.Job{ID: "1", Phase: "transaction"}, 0), context.Canceled)
}

func TestPayments_AwaitSavesAndEmits(t *testing.T) {
	tx := &core.PaymentTransaction{Hash: "0xabc", BlockNumber: 9, Amount: "50", From: "0xc", To: "0xr"}
	mon := &fakeMonitor{tx: tx}
	f := newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		got, err := pay.Await(ctx, "0xc", "50")
		if err != nil {
			return err
		}
		if got.Hash != "0xabc" {
			return core.Terminal(errors.New("wrong tx"))
		}
		return nil
	}, WithMonitor(mon))

	events := f.coord.Queue().Events()
	defer f.coord.Queue().Unsubscribe(events)

	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "7", Phase: "transaction"}, 0))
	f.waitIdle(t)

	recs, err := f.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].JobID)

	var confirmed bool
	for len(events) > 0 {
		if ev, ok := (<-events).(*core.PaymentConfirmed); ok {
			confirmed = ev.JobID == "7"
		}
	}
	assert.True(t, confirmed)
	assert.Len(t, f.outcomes(t, core.OutcomeCompleted), 1)
}

func TestPayments_TimeoutFailsWithoutRetry(t *testing.T) {
	mon := &fakeMonitor{err: &core.PaymentTimeoutError{Sender: "0xc", Amount: "50", Timeout: time.Minute}}
	f := newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		_, err := pay.Await(ctx, "0xc", "50")
		return err
	}, WithMonitor(mon))

	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "8", Phase: "transaction"}, 0))
	f.waitIdle(t)

	assert.Equal(t, int32(1), mon.calls.Load())
	failed := f.outcomes(t, core.OutcomeFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Reason, "payment timeout")

	stats, err := f.tracker.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Zero(t, stats.ActiveJobs)
}

func TestPayments_NoMonitor(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		_, err := pay.Verify(ctx, "0x1", "1")
		return err
	})

	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "9", Phase: "transaction"}, 0))
	f.waitIdle(t)

	assert.Len(t, f.outcomes(t, core.OutcomeFailed), 1)
}

func TestRetry_RecordedOnSla(t *testing.T) {
	var attempts atomic.Int32
	var retriesSeen atomic.Int32
	var f *fixture
	f = newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		if attempts.Add(1) == 1 {
			return core.Transient(errors.New("nonce too low"))
		}
		if st := f.tracker.GetJobState(job.ID()); st != nil {
			retriesSeen.Store(int32(st.RetryCount))
		}
		return nil
	})

	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "r", Phase: "transaction"}, 0))
	f.waitIdle(t)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int32(1), retriesSeen.Load())
	done := f.outcomes(t, core.OutcomeCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, 1, done[0].RetryCount)
}

func TestExpiration_RemovesQueuedJob(t *testing.T) {
	var ran atomic.Int32
	f := newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		ran.Add(1)
		return nil
	})
	events := f.coord.Queue().Events()
	defer f.coord.Queue().Unsubscribe(events)

	f.coord.Queue().Pause()
	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "old", Phase: "transaction"}, 0))

	f.clock.Advance(25 * time.Hour)
	// Admitting the next job sweeps first.
	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "new", Phase: "transaction"}, 0))

	pending := f.coord.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "new", pending[0].ID())

	expired := f.outcomes(t, core.OutcomeExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].JobID)

	var sawExpired bool
	for len(events) > 0 {
		if ev, ok := (<-events).(*core.JobExpired); ok && ev.JobID == "old" {
			sawExpired = true
		}
	}
	assert.True(t, sawExpired)

	f.coord.Queue().Resume()
	f.waitIdle(t)
	assert.Equal(t, int32(1), ran.Load())
}

func TestExpiration_InFlightCompletionNotRecorded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, job *core.QueuedJob, pay Payments) error {
		close(started)
		<-release
		return nil
	})

	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "slow", Phase: "transaction"}, 0))
	<-started

	f.clock.Advance(25 * time.Hour)
	assert.Equal(t, []string{"slow"}, f.tracker.CheckExpiredJobs())
	close(release)
	f.waitIdle(t)

	assert.Len(t, f.outcomes(t, core.OutcomeExpired), 1)
	assert.Empty(t, f.outcomes(t, core.OutcomeCompleted))
}

func TestStart_BackgroundSweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := openStore(t)
	tracker := sla.NewTracker(store,
		sla.WithClock(clock.Now),
		sla.WithLogger(quiet),
		sla.ExpirationHours(1),
		sla.SweepSchedule(everyFew{}),
	)
	c := New(okHandler, tracker, WithStore(store), WithLogger(quiet))
	t.Cleanup(c.Close)

	c.Queue().Pause()
	require.NoError(t, c.Admit(context.Background(), core.Job{ID: "1", Phase: "transaction"}, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	clock.Advance(2 * time.Hour)
	assert.Eventually(t, func() bool {
		return len(c.Queue().Pending()) == 0
	}, time.Second, 5*time.Millisecond)
}

type everyFew struct{}

func (everyFew) Next(from time.Time) time.Time { return from.Add(5 * time.Millisecond) }

func TestStatus(t *testing.T) {
	f := newFixture(t, okHandler)
	f.coord.Queue().Pause()
	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "a", Phase: "transaction"}, 1))
	require.NoError(t, f.coord.Admit(context.Background(), core.Job{ID: "b", Phase: "transaction"}, 5))

	st, err := f.coord.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Queue.Length)
	assert.True(t, st.Queue.Paused)
	require.Len(t, st.Pending, 2)
	assert.Equal(t, "b", st.Pending[0].ID())
	assert.Equal(t, 2, st.Sla.ActiveJobs)
	assert.Len(t, st.Tracked, 2)
}

func TestHistory_ReducesPersistedOutcomes(t *testing.T) {
	f := newFixture(t, okHandler, WithHistory(history.Config{KeepCompletedJobs: 5}))
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		payload := []byte(`{"clientAddress":"0xclient","price":"50"}`)
		require.NoError(t, f.coord.Admit(ctx, core.Job{ID: strconv.Itoa(i), Phase: "transaction", Payload: payload}, 0))
		f.waitIdle(t)
	}
	require.NoError(t, f.store.SavePayment(ctx, "3", core.PaymentTransaction{Hash: "0x03", BlockNumber: 3, Amount: "50"}))

	f.coord.Queue().Pause()
	require.NoError(t, f.coord.Admit(ctx, core.Job{ID: "99", Phase: "transaction"}, 0))

	snap, err := f.coord.History(ctx)
	require.NoError(t, err)

	var ids []int64
	for _, e := range snap.Jobs.Completed {
		ids = append(ids, e.JobID)
	}
	assert.Equal(t, []int64{3, 4, 5, 6, 7}, ids)
	assert.Equal(t, "0xclient", snap.Jobs.Completed[0].ClientAddress)
	assert.Equal(t, "50", snap.Jobs.Completed[0].Price)

	require.Len(t, snap.Jobs.Active.AsSeller, 1)
	assert.Equal(t, int64(99), snap.Jobs.Active.AsSeller[0].JobID)

	require.Len(t, snap.Inventory.Acquired, 1)
	assert.Equal(t, "payment", snap.Inventory.Acquired[0].Type)
	assert.Len(t, snap.Inventory.Produced, history.DefaultKeep)
}

func TestHistory_MixedIDsOrderByAdmission(t *testing.T) {
	f := newFixture(t, okHandler, WithHistory(history.Config{KeepCompletedJobs: 3}))
	ctx := context.Background()

	ids := []string{"900", "5e0f6c1a-2b7d-4c1e-9a53-3f2d8f0b6a11", "901", "b1c2d3e4-0000-4000-8000-000000000002", "7"}
	for _, id := range ids {
		require.NoError(t, f.coord.Admit(ctx, core.Job{ID: id, Phase: "transaction"}, 0))
		f.waitIdle(t)
	}

	snap, err := f.coord.History(ctx)
	require.NoError(t, err)

	var refs []string
	for _, e := range snap.Jobs.Completed {
		refs = append(refs, e.Ref)
	}
	assert.Equal(t, []string{"901", "b1c2d3e4-0000-4000-8000-000000000002", "7"}, refs)
	for i := 1; i < len(snap.Jobs.Completed); i++ {
		assert.Less(t, snap.Jobs.Completed[i-1].JobID, snap.Jobs.Completed[i].JobID)
	}
}

func TestRecentPayments(t *testing.T) {
	mon := &fakeMonitor{recent: []core.PaymentTransaction{{Hash: "0x1"}}}
	f := newFixture(t, okHandler, WithMonitor(mon))

	got, err := f.coord.RecentPayments(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	bare := newFixture(t, okHandler)
	_, err = bare.coord.RecentPayments(context.Background(), 100)
	assert.Error(t, err)
}
