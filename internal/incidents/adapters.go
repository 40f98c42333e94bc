package incidents

import (
	"context"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
)

// ReminderScheduler keeps one recurring reminder job per qualifying incident.
type ReminderScheduler interface {
	Schedule(ctx context.Context, id string, interval time.Duration, payload domain.ReminderPayload) error
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.ReminderJob, error)
	Exists(id string) bool
}

// ReminderJobID derives the reminder job id from an incident channel.
func ReminderJobID(channelID string) string {
	return channelID + "_updates_reminder"
}

// TaskEnqueuer hands work to the background queue.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
}

// DocumentInput carries what a postmortem document is generated from.
type DocumentInput struct {
	Incident *domain.Incident
	Audit    []*domain.AuditEntry
}

// DocumentCreator creates postmortem documents.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, input DocumentInput) (string, error)
}

// Ticketing opens and transitions tickets in an issue tracker.
type Ticketing interface {
	CreateTicket(ctx context.Context, incident *domain.Incident) (domain.ExternalRef, error)
	UpdateTicketStatus(ctx context.Context, ref domain.ExternalRef, status domain.Status) error
}

// StatusPage mirrors incidents onto a public status page.
type StatusPage interface {
	CreateExternalIncident(ctx context.Context, incident *domain.Incident) (domain.ExternalRef, error)
	ResolveExternalIncident(ctx context.Context, id string) error
	PageURL() string
}

// Pager pages on-call responders.
type Pager interface {
	Page(ctx context.Context, incident *domain.Incident, policyIDs []string) ([]domain.ExternalRef, error)
	Resolve(ctx context.Context, id string) error
}

// FeedIncident is an incident reported by a third-party status feed.
type FeedIncident struct {
	Provider  string
	Name      string
	Status    string
	Impact    string
	URL       string
	CreatedAt time.Time
}

// StatusFeed reports recent incidents of upstream providers.
type StatusFeed interface {
	RecentIncidents(ctx context.Context) ([]FeedIncident, error)
}

// Adapters groups the optional external integrations. Nil members are skipped.
type Adapters struct {
	Documents  DocumentCreator
	Tickets    Ticketing
	StatusPage StatusPage
	Pager      Pager
	Feeds      StatusFeed
}
