// Package postgres provides PostgreSQL persistence of reminder jobs.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/reminders"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements reminders.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Save inserts or replaces a job.
func (r *Repository) Save(ctx context.Context, job domain.ReminderJob) error {
	query := `
		INSERT INTO reminder_jobs (id, incident_id, channel_id, interval_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			incident_id = EXCLUDED.incident_id,
			channel_id = EXCLUDED.channel_id,
			interval_seconds = EXCLUDED.interval_seconds
	`
	_, err := r.db.Exec(ctx, query, job.ID, job.IncidentID, job.ChannelID, int64(job.Interval/time.Second))
	if err != nil {
		return fmt.Errorf("save reminder job: %w", err)
	}
	return nil
}

// Delete removes a job.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reminder_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reminder job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reminders.ErrJobNotFound
	}
	return nil
}

// List returns all persisted jobs.
func (r *Repository) List(ctx context.Context) ([]domain.ReminderJob, error) {
	query := `
		SELECT id, incident_id, channel_id, interval_seconds, created_at
		FROM reminder_jobs
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reminder jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.ReminderJob, 0)
	for rows.Next() {
		var job domain.ReminderJob
		var seconds int64
		if err := rows.Scan(&job.ID, &job.IncidentID, &job.ChannelID, &seconds, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder job: %w", err)
		}
		job.Interval = time.Duration(seconds) * time.Second
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder jobs: %w", err)
	}

	return jobs, nil
}
