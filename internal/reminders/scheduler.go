// Package reminders runs one recurring reminder job per incident.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/robfig/cron/v3"
)

// ErrJobNotFound is returned when cancelling a job that does not exist.
var ErrJobNotFound = errors.New("reminder job not found")

// Store persists jobs so they survive restarts.
type Store interface {
	Save(ctx context.Context, job domain.ReminderJob) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.ReminderJob, error)
}

// Runner executes a reminder tick.
type Runner interface {
	RunReminder(ctx context.Context, job domain.ReminderJob) error
}

// Config contains scheduler configuration.
type Config struct {
	// RunTimeout bounds a single tick.
	RunTimeout time.Duration
}

// Scheduler is a job store backed by cron timers.
type Scheduler struct {
	config Config
	store  Store
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]scheduledJob
	runner  Runner
	started bool
}

type scheduledJob struct {
	job   domain.ReminderJob
	entry cron.EntryID
}

// NewScheduler creates a new scheduler. Jobs do not fire until Start.
func NewScheduler(config Config, store Store, logger *slog.Logger) *Scheduler {
	if config.RunTimeout == 0 {
		config.RunTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reminders")
	l := cronLogger{logger: logger}

	return &Scheduler{
		config: config,
		store:  store,
		cron:   cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l))),
		logger: logger,
		jobs:   make(map[string]scheduledJob),
	}
}

// Schedule creates or replaces the job with the given id.
func (s *Scheduler) Schedule(ctx context.Context, id string, interval time.Duration, payload domain.ReminderPayload) error {
	if interval < time.Second {
		return fmt.Errorf("schedule %s: interval %s is below one second", id, interval)
	}

	job := domain.ReminderJob{
		ID:         id,
		IncidentID: payload.IncidentID,
		ChannelID:  payload.ChannelID,
		Interval:   interval,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", id, err)
	}

	if existing, ok := s.jobs[id]; ok {
		s.cron.Remove(existing.entry)
		job.CreatedAt = existing.job.CreatedAt
	}
	s.add(job)

	s.logger.Debug("reminder scheduled", "job_id", id, "incident_id", job.IncidentID, "interval", interval)
	return nil
}

// Cancel removes a job. Returns ErrJobNotFound if no such job is scheduled.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[id]
	if ok {
		s.cron.Remove(existing.entry)
		delete(s.jobs, id)
		jobsScheduled.Set(float64(len(s.jobs)))
	}

	err := s.store.Delete(ctx, id)
	switch {
	case errors.Is(err, ErrJobNotFound) && !ok:
		return ErrJobNotFound
	case err != nil && !errors.Is(err, ErrJobNotFound):
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	s.logger.Debug("reminder cancelled", "job_id", id)
	return nil
}

// List returns the scheduled jobs ordered by id.
func (s *Scheduler) List(_ context.Context) ([]domain.ReminderJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.ReminderJob, 0, len(s.jobs))
	for _, sj := range s.jobs {
		job := sj.job
		if entry := s.cron.Entry(sj.entry); entry.Valid() && !entry.Next.IsZero() {
			next := entry.Next
			job.NextRun = &next
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	return jobs, nil
}

// Exists reports whether a job with the given id is scheduled.
func (s *Scheduler) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Restore loads persisted jobs into the scheduler.
func (s *Scheduler) Restore(ctx context.Context) error {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list persisted jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if existing, ok := s.jobs[job.ID]; ok {
			s.cron.Remove(existing.entry)
		}
		s.add(job)
	}

	s.logger.Info("reminder jobs restored", "count", len(jobs))
	return nil
}

// Start begins firing jobs through runner.
func (s *Scheduler) Start(runner Runner) {
	s.mu.Lock()
	s.runner = runner
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reminder scheduler started")
}

// Stop stops the timers and waits for running ticks or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("reminder scheduler stop timed out")
	}
	s.logger.Info("reminder scheduler stopped")
}

// add registers job with cron. Caller holds s.mu.
func (s *Scheduler) add(job domain.ReminderJob) {
	entry := s.cron.Schedule(cron.Every(job.Interval), cron.FuncJob(func() { s.fire(job.ID) }))
	s.jobs[job.ID] = scheduledJob{job: job, entry: entry}
	jobsScheduled.Set(float64(len(s.jobs)))
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	sj, ok := s.jobs[id]
	runner := s.runner
	s.mu.Unlock()

	if !ok || runner == nil {
		return
	}

	logger := s.logger.With("job_id", id, "incident_id", sj.job.IncidentID)
	ctx, cancel := context.WithTimeout(ctxlog.WithLogger(context.Background(), logger), s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := runner.RunReminder(ctx, sj.job); err != nil {
		logger.Error("reminder tick failed", "error", err)
		recordFire("failed", time.Since(start))
		return
	}
	recordFire("success", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
