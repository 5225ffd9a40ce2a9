package jobqueue

import (
	"context"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
)

const (
	defaultMaxJobs            = 100
	defaultProcessingInterval = 100 * time.Millisecond
	defaultExecutionTimeout   = 30 * time.Second
)

// JobQueue manages a queue of jobs that can be retried
type JobQueue struct {
	mu                 sync.Mutex
	jobs               []*Job
	stats              JobSnapshotCounters
	jobCounter         int
	maxJobs            int
	processingInterval time.Duration
	executionTimeout   time.Duration
	isRunning          bool
	processCancel      context.CancelFunc
	loop               sync.WaitGroup
	runningJobs        sync.WaitGroup
	log                logger.Logger
}

// JobSnapshotCounters are the running totals behind GetStats
type JobSnapshotCounters struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	DroppedJobs    int
	RetryAttempts  int
	ActionStats    map[string]ActionStats
}

// NewJobQueue creates a job queue holding at most maxJobs pending jobs
func NewJobQueue(maxJobs int) *JobQueue {
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &JobQueue{
		jobs:               make([]*Job, 0),
		maxJobs:            maxJobs,
		processingInterval: defaultProcessingInterval,
		executionTimeout:   defaultExecutionTimeout,
		stats:              JobSnapshotCounters{ActionStats: make(map[string]ActionStats)},
		log:                GetLogger(),
	}
}

// SetProcessingInterval sets how often due jobs are picked up
func (q *JobQueue) SetProcessingInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processingInterval = interval
}

// SetExecutionTimeout bounds a single attempt
func (q *JobQueue) SetExecutionTimeout(timeout time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executionTimeout = timeout
}

// Start starts processing until ctx is done or Stop is called
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}
	q.isRunning = true

	processCtx, cancel := context.WithCancel(ctx)
	q.processCancel = cancel
	q.loop.Go(func() { q.processJobs(processCtx) })
}

// Stop stops processing and waits up to timeout for running attempts.
// Pending jobs are discarded.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.processCancel()
	pending := len(q.jobs)
	q.jobs = nil
	q.mu.Unlock()

	q.loop.Wait()

	done := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		if pending > 0 {
			q.log.Info("job queue stopped with pending jobs discarded", logger.Int("pending", pending))
		}
		return nil
	case <-timer.C:
		return errors.Newf("timed out waiting for jobs to complete after %v", timeout).
			Component("jobqueue").
			Category(errors.CategoryWorker).
			Build()
	}
}

// Enqueue adds a job. A full queue drops its oldest pending job to make room.
func (q *JobQueue) Enqueue(action Action, data any, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}

	desc := action.GetDescription()
	if len(q.jobs) >= q.maxJobs && !q.dropOldestPendingJob() {
		q.stats.DroppedJobs++
		q.updateActionStats(desc, func(s *ActionStats) { s.Dropped++ })
		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	maxAttempts := 1
	if config.Enabled {
		maxAttempts = config.MaxRetries + 1
	}

	q.jobCounter++
	now := time.Now()
	job := &Job{
		ID:          fmt.Sprintf("job-%d", q.jobCounter),
		Action:      action,
		Data:        data,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      config,
	}
	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++
	q.updateActionStats(desc, func(s *ActionStats) { s.Attempted++ })
	return job, nil
}

// dropOldestPendingJob removes the oldest job not currently running.
// Must be called with q.mu held.
func (q *JobQueue) dropOldestPendingJob() bool {
	oldest := -1
	for i, job := range q.jobs {
		if job.Status != JobStatusPending && job.Status != JobStatusRetrying {
			continue
		}
		if oldest == -1 || job.CreatedAt.Before(q.jobs[oldest].CreatedAt) {
			oldest = i
		}
	}
	if oldest == -1 {
		return false
	}

	dropped := q.jobs[oldest]
	q.jobs = append(q.jobs[:oldest], q.jobs[oldest+1:]...)
	q.stats.DroppedJobs++
	q.updateActionStats(dropped.Action.GetDescription(), func(s *ActionStats) { s.Dropped++ })
	q.log.Warn("dropped oldest pending job to make room",
		logger.String("job_id", dropped.ID),
		logger.String("action", dropped.Action.GetDescription()))
	return true
}

// processJobs is the main job processing loop
func (q *JobQueue) processJobs(ctx context.Context) {
	q.mu.Lock()
	interval := q.processingInterval
	q.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.removeFinishedJobs()
			q.processDueJobs(ctx)
		}
	}
}

func (q *JobQueue) removeFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status != JobStatusCompleted && job.Status != JobStatusFailed {
			active = append(active, job)
		}
	}
	clear(q.jobs[len(active):])
	q.jobs = active
}

// calculateBackoffDelay returns the delay before retry attemptNum with ±10% jitter
func calculateBackoffDelay(config RetryConfig, attemptNum int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialDelay) * math.Pow(multiplier, float64(attemptNum-1))
	backoff *= 0.9 + 0.2*rand.Float64()
	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// processDueJobs starts every pending or retrying job whose time has come
func (q *JobQueue) processDueJobs(ctx context.Context) {
	q.mu.Lock()
	var due []*Job
	now := time.Now()
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			job.Status = JobStatusRunning
			due = append(due, job)
		}
	}
	timeout := q.executionTimeout
	q.mu.Unlock()

	for _, job := range due {
		q.runningJobs.Go(func() { q.executeJob(ctx, job, timeout) })
	}
}

// executeJob runs one attempt and schedules a retry on failure
func (q *JobQueue) executeJob(ctx context.Context, job *Job, timeout time.Duration) {
	q.mu.Lock()
	job.Attempts++
	attempt := job.Attempts
	desc := job.Action.GetDescription()
	if attempt > 1 {
		q.stats.RetryAttempts++
		q.updateActionStats(desc, func(s *ActionStats) { s.Retried++ })
	}
	q.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := q.runAction(execCtx, job)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		job.Status = JobStatusCompleted
		q.stats.SuccessfulJobs++
		q.updateActionStats(desc, func(s *ActionStats) { s.Successful++ })
		if attempt > 1 {
			q.log.Info("job succeeded after retry",
				logger.String("job_id", job.ID),
				logger.String("action", desc),
				logger.Int("attempts", attempt))
		}
		return
	}

	job.LastError = err
	if attempt >= job.MaxAttempts || ctx.Err() != nil {
		job.Status = JobStatusFailed
		q.stats.FailedJobs++
		q.updateActionStats(desc, func(s *ActionStats) { s.Failed++ })
		q.log.Warn("job failed permanently",
			logger.String("job_id", job.ID),
			logger.String("action", desc),
			logger.Int("attempts", attempt),
			logger.Error(err))
		return
	}

	delay := calculateBackoffDelay(job.Config, attempt)
	job.Status = JobStatusRetrying
	job.NextRetryAt = time.Now().Add(delay)
	q.log.Debug("job failed, will retry",
		logger.String("job_id", job.ID),
		logger.String("action", desc),
		logger.Int("attempt", attempt),
		logger.Int("max_attempts", job.MaxAttempts),
		logger.Duration("retry_in", delay),
		logger.Error(err))
}

// runAction executes the action, converting a panic into an error
func (q *JobQueue) runAction(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job execution panicked: %v", r)
		}
	}()
	return job.Action.Execute(ctx, job.Data)
}

// updateActionStats must be called with q.mu held
func (q *JobQueue) updateActionStats(desc string, update func(*ActionStats)) {
	s := q.stats.ActionStats[desc]
	update(&s)
	q.stats.ActionStats[desc] = s
}

// GetStats returns a snapshot of the current job statistics
func (q *JobQueue) GetStats() JobStatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	return JobStatsSnapshot{
		TotalJobs:      q.stats.TotalJobs,
		SuccessfulJobs: q.stats.SuccessfulJobs,
		FailedJobs:     q.stats.FailedJobs,
		DroppedJobs:    q.stats.DroppedJobs,
		RetryAttempts:  q.stats.RetryAttempts,
		PendingJobs:    len(q.jobs),
		MaxQueueSize:   q.maxJobs,
		ActionStats:    maps.Clone(q.stats.ActionStats),
	}
}

// GetDefaultRetryConfig returns the retry policy used for alert actions
func GetDefaultRetryConfig(enabled bool) RetryConfig {
	if !enabled {
		return RetryConfig{Enabled: false}
	}
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: 5 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2.0,
	}
}

// GetLogger returns the jobqueue module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("jobqueue")
}
