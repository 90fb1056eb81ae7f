package sla

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
	"github.com/jdziat/paid-deploy-jobs/pkg/schedule"
	"github.com/jdziat/paid-deploy-jobs/pkg/security"
)

// Statistics is a point-in-time summary of the tracker.
type Statistics struct {
	Enabled           bool    `json:"enabled"`
	ActiveJobs        int     `json:"activeJobs"`
	AverageAgeMinutes float64 `json:"averageAgeMinutes"`
	NearingExpiration int     `json:"nearingExpiration"`
	ProgressCount     int64   `json:"progressCount"`
	ProgressTarget    int64   `json:"progressTarget"`
	Completed         int64   `json:"completed"`
	Rejected          int64   `json:"rejected"`
	Expired           int64   `json:"expired"`
}

// Tracker holds one SlaJob per active job id.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*core.SlaJob
	completed int64
	rejected  int64
	expired   int64

	counters core.CounterStore
	config   Config
	logger   *slog.Logger

	hooksMu   sync.RWMutex
	onExpired []func(ids []string)
}

// NewTracker creates a Tracker. counters may be nil, in which case
// completions are not persisted.
func NewTracker(counters core.CounterStore, opts ...Option) *Tracker {
	cfg := NewConfig()
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		jobs:     make(map[string]*core.SlaJob),
		counters: counters,
		config:   *cfg,
		logger:   cfg.Logger,
	}
}

// Enabled reports whether the tracker is tracking jobs.
func (t *Tracker) Enabled() bool {
	return t.config.Enabled
}

// Expiration returns the configured expiration window.
func (t *Tracker) Expiration() time.Duration {
	return t.config.Expiration
}

// AddJob starts tracking id. A zero createdAt means now.
func (t *Tracker) AddJob(id string, createdAt time.Time) error {
	if err := security.ValidateJobID(id); err != nil {
		return err
	}
	if !t.config.Enabled {
		return nil
	}
	if createdAt.IsZero() {
		createdAt = t.config.Clock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; ok {
		return fmt.Errorf("%w: %s", core.ErrJobAlreadyTracked, id)
	}
	t.jobs[id] = &core.SlaJob{
		JobID:     id,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(t.config.Expiration),
		State:     core.SlaGreen,
	}
	t.logger.Debug("sla tracking job", "job_id", id, "expires_at", t.jobs[id].ExpiresAt)
	return nil
}

// MarkCompleted ends tracking for a successful job and advances the
// persisted progress counter. It returns the new counter value.
func (t *Tracker) MarkCompleted(ctx context.Context, id string) (int64, error) {
	if t.config.Enabled {
		t.mu.Lock()
		if _, ok := t.jobs[id]; !ok {
			t.mu.Unlock()
			return 0, fmt.Errorf("%w: %s", core.ErrJobNotTracked, id)
		}
		delete(t.jobs, id)
		t.completed++
		t.mu.Unlock()
	}

	if t.counters == nil {
		return 0, nil
	}
	progress, err := t.counters.IncrementCounter(ctx, t.config.ProgressKey)
	if err != nil {
		t.logger.Error("failed to advance progress counter", "job_id", id, "key", t.config.ProgressKey, "error", err)
		return 0, fmt.Errorf("jobs: advance %s: %w", t.config.ProgressKey, err)
	}
	if progress == t.config.GraduationThreshold {
		t.logger.Info("graduation threshold reached", "key", t.config.ProgressKey, "count", progress)
	}
	return progress, nil
}

// MarkRejected ends tracking for a failed job and returns its final Red
// record.
func (t *Tracker) MarkRejected(id, reason string) (*core.SlaJob, error) {
	if !t.config.Enabled {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotTracked, id)
	}
	delete(t.jobs, id)
	t.rejected++

	job.State = core.SlaRed
	job.RejectionReason = security.SanitizeErrorMessage(reason)
	t.logger.Info("sla job rejected", "job_id", id, "reason", job.RejectionReason)
	return job, nil
}

// RecordRetry notes a retry attempt against id. Untracked ids are ignored.
func (t *Tracker) RecordRetry(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		job.RetryCount++
	}
}

// Remove stops tracking id without recording an outcome.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[id]
	delete(t.jobs, id)
	return ok
}

// CheckExpiredJobs moves every Green job past its deadline to Brown, evicts
// it, and returns the evicted ids in sorted order. OnExpired hooks receive
// the same ids.
func (t *Tracker) CheckExpiredJobs() []string {
	if !t.config.Enabled {
		return nil
	}
	now := t.config.Clock()

	t.mu.Lock()
	var ids []string
	for id, job := range t.jobs {
		if job.State != core.SlaGreen || !now.After(job.ExpiresAt) {
			continue
		}
		job.State = core.SlaBrown
		delete(t.jobs, id)
		t.expired++
		ids = append(ids, id)
		t.logger.Warn("sla expired", "job_id", id, "age", now.Sub(job.CreatedAt), "retries", job.RetryCount)
	}
	t.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	t.hooksMu.RLock()
	hooks := make([]func([]string), len(t.onExpired))
	copy(hooks, t.onExpired)
	t.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(append([]string(nil), ids...))
	}
	return ids
}

// GetJobState returns a copy of the record for id, or nil when untracked.
func (t *Tracker) GetJobState(id string) *core.SlaJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

// ActiveJobs returns copies of all tracked records ordered by creation time.
func (t *Tracker) ActiveJobs() []core.SlaJob {
	t.mu.Lock()
	out := make([]core.SlaJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, *job)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetStatistics summarizes tracked jobs without changing them. A job is
// nearing expiration once less than a quarter of the window remains.
func (t *Tracker) GetStatistics(ctx context.Context) (Statistics, error) {
	now := t.config.Clock()
	nearing := t.config.Expiration / 4

	t.mu.Lock()
	stats := Statistics{
		Enabled:        t.config.Enabled,
		ActiveJobs:     len(t.jobs),
		ProgressTarget: t.config.GraduationThreshold,
		Completed:      t.completed,
		Rejected:       t.rejected,
		Expired:        t.expired,
	}
	var totalAge time.Duration
	for _, job := range t.jobs {
		totalAge += now.Sub(job.CreatedAt)
		if job.ExpiresAt.Sub(now) <= nearing {
			stats.NearingExpiration++
		}
	}
	t.mu.Unlock()

	if stats.ActiveJobs > 0 {
		stats.AverageAgeMinutes = totalAge.Minutes() / float64(stats.ActiveJobs)
	}

	if t.counters != nil {
		n, err := t.counters.GetCounter(ctx, t.config.ProgressKey)
		if err != nil {
			return stats, fmt.Errorf("jobs: read %s: %w", t.config.ProgressKey, err)
		}
		stats.ProgressCount = n
	}
	return stats, nil
}

// OnExpired registers a hook called with the ids evicted by each sweep.
func (t *Tracker) OnExpired(fn func(ids []string)) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.onExpired = append(t.onExpired, fn)
}

// Start runs the background sweep until ctx is cancelled. It returns
// immediately when the tracker is disabled.
func (t *Tracker) Start(ctx context.Context) {
	if !t.config.Enabled {
		return
	}
	t.logger.Info("sla sweep started", "expiration", t.config.Expiration, "schedule", t.config.Sweep)
	schedule.Run(ctx, t.config.Sweep, func(time.Time) {
		t.CheckExpiredJobs()
	})
	t.logger.Info("sla sweep stopped")
}
