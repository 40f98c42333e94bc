package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		NumWorkers:        2,
		QueueSize:         10,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
		HistorySize:       100,
	}
}

func waitStatus(t *testing.T, q *Queue, id string, want Status) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		var err error
		task, err = q.Get(id)
		return err == nil && task.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func TestQueue_RunsHandler(t *testing.T) {
	q := NewQueue(testConfig())
	got := make(chan any, 1)
	q.Register("echo", func(_ context.Context, task Task) error {
		got <- task.Payload
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(context.Background(), "echo", "inc-1")
	require.NoError(t, err)

	task := waitStatus(t, q, id, StatusSucceeded)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "inc-1", <-got)
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := NewQueue(testConfig())
	var calls atomic.Int32
	q.Register("flaky", func(context.Context, Task) error {
		if calls.Add(1) < 3 {
			return errors.New("temporarily unavailable")
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(context.Background(), "flaky", nil)
	require.NoError(t, err)

	task := waitStatus(t, q, id, StatusSucceeded)
	assert.Equal(t, 3, task.Attempts)
}

func TestQueue_GivesUp(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantAttempts int
	}{
		{name: "permanent error", err: Permanent(errors.New("bad payload")), wantAttempts: 1},
		{name: "attempts exhausted", err: errors.New("down"), wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(testConfig())
			q.Register("fail", func(context.Context, Task) error { return tt.err })
			q.Start(context.Background())
			defer q.Stop()

			id, err := q.Enqueue(context.Background(), "fail", nil)
			require.NoError(t, err)

			task := waitStatus(t, q, id, StatusFailed)
			assert.Equal(t, tt.wantAttempts, task.Attempts)
			assert.Equal(t, tt.err.Error(), task.LastError)
		})
	}
}

func TestQueue_EnqueueErrors(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	q := NewQueue(cfg)
	q.Register("noop", func(context.Context, Task) error { return nil })

	_, err := q.Enqueue(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	// Not started, so the buffer fills up.
	_, err = q.Enqueue(context.Background(), "noop", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), "noop", nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	q.Stop()
	_, err = q.Enqueue(context.Background(), "noop", nil)
	assert.ErrorIs(t, err, ErrQueueStopped)

	_, err = q.Get("unknown")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestQueue_HandlerTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxAttempts = 1
	q := NewQueue(cfg)
	q.Register("slow", func(ctx context.Context, _ Task) error {
		<-ctx.Done()
		return ctx.Err()
	})
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Enqueue(context.Background(), "slow", nil)
	require.NoError(t, err)

	task := waitStatus(t, q, id, StatusFailed)
	assert.Contains(t, task.LastError, "deadline exceeded")
}

func TestQueue_HistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 2
	q := NewQueue(cfg)
	q.Register("noop", func(context.Context, Task) error { return nil })
	q.Start(context.Background())
	defer q.Stop()

	for range 4 {
		_, err := q.Enqueue(context.Background(), "noop", nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		for _, task := range q.List() {
			if task.Status != StatusSucceeded {
				return false
			}
		}
		return len(q.List()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQueue_Backoff(t *testing.T) {
	q := NewQueue(Config{
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(Permanent(errors.New("bad"))))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("busy"), Retryable: true}))
}
