package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingAction fails until failures attempts have been made
type countingAction struct {
	desc     string
	failures int32
	calls    atomic.Int32
	block    chan struct{}
	panics   bool
}

func (a *countingAction) Execute(ctx context.Context, _ any) error {
	n := a.calls.Add(1)
	if a.panics {
		panic("boom")
	}
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= a.failures {
		return errors.New("transient failure")
	}
	return nil
}

func (a *countingAction) GetDescription() string { return a.desc }

func newTestQueue(t *testing.T, maxJobs int) *JobQueue {
	t.Helper()
	q := NewJobQueue(maxJobs)
	q.SetProcessingInterval(5 * time.Millisecond)
	q.Start(context.Background())
	t.Cleanup(func() { _ = q.Stop(5 * time.Second) })
	return q
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestJobSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 10)
	action := &countingAction{desc: "publish"}
	job, err := q.Enqueue(action, "payload", RetryConfig{})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	require.Eventually(t, func() bool { return q.GetStats().SuccessfulJobs == 1 }, 5*time.Second, 5*time.Millisecond)
	stats := q.GetStats()
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 0, stats.RetryAttempts)
	assert.Equal(t, 1, stats.ActionStats["publish"].Successful)
	assert.Equal(t, int32(1), action.calls.Load())
}

func TestJobRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 10)
	action := &countingAction{desc: "notify", failures: 2}
	_, err := q.Enqueue(action, nil, fastRetry(3))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.GetStats().SuccessfulJobs == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), action.calls.Load())
	assert.Equal(t, 2, q.GetStats().RetryAttempts)
}

func TestJobFailsAfterMaxRetries(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 10)
	action := &countingAction{desc: "notify", failures: 100}
	_, err := q.Enqueue(action, nil, fastRetry(2))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.GetStats().FailedJobs == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), action.calls.Load())
}

func TestRetryDisabledRunsOnce(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 10)
	action := &countingAction{desc: "notify", failures: 100}
	_, err := q.Enqueue(action, nil, RetryConfig{Enabled: false, MaxRetries: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.GetStats().FailedJobs == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), action.calls.Load())
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, 10)
	_, err := q.Enqueue(&countingAction{desc: "bad", panics: true}, nil, RetryConfig{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.GetStats().FailedJobs == 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestQueueFullDropsOldestPending(t *testing.T) {
	t.Parallel()

	q := NewJobQueue(2)
	q.SetProcessingInterval(time.Hour) // nothing runs
	q.Start(context.Background())
	defer func() { require.NoError(t, q.Stop(time.Second)) }()

	first := &countingAction{desc: "first"}
	_, err := q.Enqueue(first, nil, RetryConfig{})
	require.NoError(t, err)
	_, err = q.Enqueue(&countingAction{desc: "second"}, nil, RetryConfig{})
	require.NoError(t, err)
	_, err = q.Enqueue(&countingAction{desc: "third"}, nil, RetryConfig{})
	require.NoError(t, err)

	stats := q.GetStats()
	assert.Equal(t, 2, stats.PendingJobs)
	assert.Equal(t, 1, stats.DroppedJobs)
	assert.Equal(t, 1, stats.ActionStats["first"].Dropped)
}

func TestEnqueueErrors(t *testing.T) {
	t.Parallel()

	q := NewJobQueue(1)
	_, err := q.Enqueue(&countingAction{desc: "x"}, nil, RetryConfig{})
	require.ErrorIs(t, err, ErrQueueStopped)

	q.Start(context.Background())
	defer func() { require.NoError(t, q.Stop(time.Second)) }()
	_, err = q.Enqueue(nil, nil, RetryConfig{})
	require.ErrorIs(t, err, ErrNilAction)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	q := NewJobQueue(10)
	q.SetProcessingInterval(5 * time.Millisecond)
	q.Start(context.Background())

	action := &countingAction{desc: "slow", block: make(chan struct{})}
	_, err := q.Enqueue(action, nil, RetryConfig{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return action.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Stop(5*time.Second))
	require.NoError(t, q.Stop(time.Second))
	_, err = q.Enqueue(action, nil, RetryConfig{})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestCalculateBackoffDelay(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	for range 20 {
		d1 := calculateBackoffDelay(cfg, 1)
		assert.GreaterOrEqual(t, d1, 90*time.Millisecond)
		assert.LessOrEqual(t, d1, 110*time.Millisecond)

		d3 := calculateBackoffDelay(cfg, 3)
		assert.GreaterOrEqual(t, d3, 360*time.Millisecond)
		assert.LessOrEqual(t, d3, 440*time.Millisecond)

		assert.Equal(t, time.Second, calculateBackoffDelay(cfg, 10))
	}
}

func TestJobStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pending", JobStatusPending.String())
	assert.Equal(t, "Retrying", JobStatusRetrying.String())
	assert.Equal(t, "Unknown", JobStatus(42).String())
}
