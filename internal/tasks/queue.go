// Package tasks runs deferred work on a pool of background workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Queue errors.
var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrQueueStopped = errors.New("task queue is stopped")
	ErrUnknownKind  = errors.New("no handler registered for task kind")
	ErrTaskNotFound = errors.New("task not found")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is a unit of deferred work.
type Task struct {
	ID        string
	Kind      string
	Payload   any
	Status    Status
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time

	// logger is the enqueuing request's logger, so handler logs keep its request_id.
	logger *slog.Logger
}

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, task Task) error

// Config contains queue configuration.
type Config struct {
	NumWorkers        int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Timeout bounds a single handler invocation.
	Timeout time.Duration
	// HistorySize caps how many finished tasks are kept for inspection.
	HistorySize int
}

// DefaultConfig returns default queue configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:        2,
		QueueSize:         100,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           2 * time.Minute,
		HistorySize:       500,
	}
}

// Queue dispatches tasks to registered handlers.
type Queue struct {
	config   Config
	handlers map[string]HandlerFunc
	ch       chan string

	mu       sync.Mutex
	tasks    map[string]*Task
	finished []string
	stopped  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewQueue creates a new task queue.
func NewQueue(config Config) *Queue {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	defaults := DefaultConfig()
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}

	return &Queue{
		config:   config,
		handlers: make(map[string]HandlerFunc),
		ch:       make(chan string, config.QueueSize),
		tasks:    make(map[string]*Task),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (q *Queue) Register(kind string, h HandlerFunc) {
	q.handlers[kind] = h
}

// Enqueue submits a task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	if _, ok := q.handlers[kind]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	now := time.Now()
	task := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	task.logger = ctxlog.FromContext(ctx).With("task_id", task.ID, "kind", kind)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrQueueStopped
	}

	select {
	case q.ch <- task.ID:
	default:
		recordTask(kind, "rejected")
		return "", ErrQueueFull
	}
	q.tasks[task.ID] = task
	queueDepth.Inc()

	return task.ID, nil
}

// Get returns a snapshot of a task.
func (q *Queue) Get(id string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// List returns snapshots of all known tasks, newest first.
func (q *Queue) List() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start launches worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("starting task queue",
		"workers", q.config.NumWorkers,
		"queue_size", q.config.QueueSize,
	)

	for i := 0; i < q.config.NumWorkers; i++ {
		q.wg.Add(1)
		go q.run(ctx, i)
	}
}

// Stop rejects new tasks and waits for in-flight ones to finish.
// Tasks still queued are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	slog.Info("task queue stopped")
}

func (q *Queue) run(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case id := <-q.ch:
			queueDepth.Dec()
			q.process(ctx, workerID, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, workerID int, id string) {
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	task.Status = StatusRunning
	task.Attempts++
	task.UpdatedAt = time.Now()
	snapshot := *task
	q.mu.Unlock()

	handler := q.handlers[snapshot.Kind]

	logger := snapshot.logger.With("worker", workerID, "attempt", snapshot.Attempts)
	runCtx, cancel := context.WithTimeout(ctxlog.WithLogger(ctx, logger), q.config.Timeout)
	start := time.Now()
	err := handler(runCtx, snapshot)
	cancel()
	recordDuration(snapshot.Kind, time.Since(start))

	if err == nil {
		q.finish(id, StatusSucceeded, "")
		recordTask(snapshot.Kind, "success")
		logger.Debug("task done")
		return
	}

	logger.Warn("task failed",
		"max_attempts", q.config.MaxAttempts,
		"error", err,
	)

	if !IsRetryable(err) || snapshot.Attempts >= q.config.MaxAttempts {
		q.finish(id, StatusFailed, err.Error())
		recordTask(snapshot.Kind, "failed")
		return
	}

	q.retry(id, snapshot.Attempts, err)
	recordTask(snapshot.Kind, "retry")
}

func (q *Queue) retry(id string, attempt int, cause error) {
	q.mu.Lock()
	if t, ok := q.tasks[id]; ok {
		t.Status = StatusRetrying
		t.LastError = cause.Error()
		t.UpdatedAt = time.Now()
	}
	q.mu.Unlock()

	backoff := q.backoff(attempt)
	time.AfterFunc(backoff, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.stopped {
			return
		}
		select {
		case q.ch <- id:
			queueDepth.Inc()
		default:
			q.finishLocked(id, StatusFailed, "queue full on retry: "+cause.Error())
		}
	})
}

func (q *Queue) finish(id string, status Status, lastErr string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finishLocked(id, status, lastErr)
}

func (q *Queue) finishLocked(id string, status Status, lastErr string) {
	t, ok := q.tasks[id]
	if !ok {
		return
	}
	t.Status = status
	t.LastError = lastErr
	t.UpdatedAt = time.Now()

	q.finished = append(q.finished, id)
	for len(q.finished) > q.config.HistorySize {
		delete(q.tasks, q.finished[0])
		q.finished = q.finished[1:]
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	backoff := float64(q.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= q.config.BackoffMultiplier
	}
	if backoff > float64(q.config.MaxBackoff) {
		backoff = float64(q.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
