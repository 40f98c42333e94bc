package incidents

import (
	"context"

	"github.com/bissquit/incident-bot/internal/domain"
)

// Field names an incident attribute that can be updated in place.
type Field string

const (
	FieldStatus             Field = "status"
	FieldSeverity           Field = "severity"
	FieldLastUpdateSent     Field = "last_update_sent"
	FieldBoilerplateMessage Field = "boilerplate_message"
	FieldDigestMessage      Field = "digest_message"
	FieldRCALink            Field = "rca_link"
)

// Repository defines the interface for incident storage.
// Every UpdateField call also bumps updated_at.
type Repository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Get(ctx context.Context, id string) (*domain.Incident, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Incident, error)
	ListOpen(ctx context.Context) ([]*domain.Incident, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Incident, error)
	UpdateField(ctx context.Context, id string, field Field, value any) error
	AssignRole(ctx context.Context, id string, role domain.RoleName, assignee string) error
	AddExternalRef(ctx context.Context, id string, ref domain.ExternalRef) error

	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	ListAudit(ctx context.Context, incidentID string) ([]*domain.AuditEntry, error)
}

// ListFilter holds filter options for listing incidents.
type ListFilter struct {
	Status   *domain.Status
	Severity *domain.Severity
	Limit    int
	Offset   int
}
