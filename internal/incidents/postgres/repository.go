// Package postgres provides PostgreSQL implementation of the incident registry.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	pgutil "github.com/bissquit/incident-bot/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id, channel_id, channel_name, description, status, severity, roles,
	is_security, created_by, created_at, updated_at, last_update_sent,
	boilerplate_message, digest_message, rca_link
`

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db       *pgxpool.Pool
	resolved domain.Status
}

// NewRepository creates a new PostgreSQL repository. resolved is the status
// excluded by ListOpen.
func NewRepository(db *pgxpool.Pool, resolved domain.Status) *Repository {
	return &Repository{db: db, resolved: resolved}
}

// Create inserts a new incident.
func (r *Repository) Create(ctx context.Context, inc *domain.Incident) error {
	roles, err := json.Marshal(rolesOrEmpty(inc.Roles))
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}

	query := `
		INSERT INTO incidents (
			id, channel_id, channel_name, description, status, severity,
			roles, is_security, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		inc.ID,
		inc.ChannelID,
		inc.ChannelName,
		inc.Description,
		inc.Status,
		inc.Severity,
		roles,
		inc.IsSecurity,
		inc.CreatedBy,
	).Scan(&inc.CreatedAt, &inc.UpdatedAt)

	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return incidents.ErrIncidentExists
		}
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// Get retrieves an incident by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return r.getOne(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
}

// GetByChannel retrieves the incident bound to a chat channel.
func (r *Repository) GetByChannel(ctx context.Context, channelID string) (*domain.Incident, error) {
	return r.getOne(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE channel_id = $1`, channelID)
}

func (r *Repository) getOne(ctx context.Context, query string, arg string) (*domain.Incident, error) {
	inc, err := scanIncident(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	refs, err := r.listExternalRefs(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	inc.ExternalRefs = refs

	return inc, nil
}

// ListOpen returns every incident that is not resolved.
func (r *Repository) ListOpen(ctx context.Context) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE status <> $1 ORDER BY created_at`
	return r.list(ctx, query, r.resolved)
}

// List retrieves incidents with optional filters, newest first.
func (r *Repository) List(ctx context.Context, filter incidents.ListFilter) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var conditions []string
	var args []any
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argNum))
		args = append(args, *filter.Severity)
		argNum++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	return r.list(ctx, query, args...)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*domain.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	rows.Close()

	if err := r.attachExternalRefs(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachExternalRefs loads the refs of every incident in one query.
func (r *Repository) attachExternalRefs(ctx context.Context, incs []*domain.Incident) error {
	if len(incs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Incident, len(incs))
	ids := make([]string, 0, len(incs))
	for _, inc := range incs {
		byID[inc.ID] = inc
		ids = append(ids, inc.ID)
	}

	query := `
		SELECT incident_id, provider, external_id, url
		FROM incident_external_refs
		WHERE incident_id = ANY($1)
		ORDER BY created_at, provider
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list external refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var incidentID string
		var ref domain.ExternalRef
		if err := rows.Scan(&incidentID, &ref.Provider, &ref.ID, &ref.URL); err != nil {
			return fmt.Errorf("scan external ref: %w", err)
		}
		if inc, ok := byID[incidentID]; ok {
			inc.ExternalRefs = append(inc.ExternalRefs, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate external refs: %w", err)
	}
	return nil
}

// UpdateField sets a single attribute and bumps updated_at.
func (r *Repository) UpdateField(ctx context.Context, id string, field incidents.Field, value any) error {
	column, arg, err := fieldValue(field, value)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE incidents SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	tag, err := r.db.Exec(ctx, query, arg, id)
	if err != nil {
		return fmt.Errorf("update incident %s: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// fieldValue checks the Go type of value against field and returns the
// column name and the driver argument.
func fieldValue(field incidents.Field, value any) (string, any, error) {
	invalid := fmt.Errorf("%w: %s does not accept %T", incidents.ErrInvalidFieldValue, field, value)

	switch field {
	case incidents.FieldStatus:
		if v, ok := value.(domain.Status); ok {
			return "status", string(v), nil
		}
	case incidents.FieldSeverity:
		if v, ok := value.(domain.Severity); ok {
			return "severity", string(v), nil
		}
	case incidents.FieldLastUpdateSent:
		if v, ok := value.(time.Time); ok {
			return "last_update_sent", v, nil
		}
	case incidents.FieldBoilerplateMessage, incidents.FieldDigestMessage:
		ref, ok := value.(domain.MessageRef)
		if !ok {
			break
		}
		data, err := json.Marshal(ref)
		if err != nil {
			return "", nil, fmt.Errorf("marshal %s: %w", field, err)
		}
		return string(field), data, nil
	case incidents.FieldRCALink:
		if v, ok := value.(string); ok {
			return "rca_link", v, nil
		}
	default:
		return "", nil, fmt.Errorf("%w: unknown field %q", incidents.ErrInvalidFieldValue, field)
	}
	return "", nil, invalid
}

// AssignRole merges a single role into the roles document.
func (r *Repository) AssignRole(ctx context.Context, id string, role domain.RoleName, assignee string) error {
	query := `
		UPDATE incidents
		SET roles = roles || jsonb_build_object($1::text, $2::text), updated_at = NOW()
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, string(role), assignee, id)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// AddExternalRef links an external record to an incident.
func (r *Repository) AddExternalRef(ctx context.Context, id string, ref domain.ExternalRef) error {
	query := `
		INSERT INTO incident_external_refs (incident_id, provider, external_id, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (incident_id, provider, external_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, id, ref.Provider, ref.ID, ref.URL)
	if err != nil {
		if pgutil.IsForeignKeyViolation(err) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("add external ref: %w", err)
	}
	return nil
}

func (r *Repository) listExternalRefs(ctx context.Context, id string) ([]domain.ExternalRef, error) {
	query := `
		SELECT provider, external_id, url
		FROM incident_external_refs
		WHERE incident_id = $1
		ORDER BY created_at, provider
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list external refs: %w", err)
	}
	defer rows.Close()

	var refs []domain.ExternalRef
	for rows.Next() {
		var ref domain.ExternalRef
		if err := rows.Scan(&ref.Provider, &ref.ID, &ref.URL); err != nil {
			return nil, fmt.Errorf("scan external ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external refs: %w", err)
	}
	return refs, nil
}

// AppendAudit records an audit entry.
func (r *Repository) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO incident_audit (incident_id, event, user_id, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, entry.IncidentID, entry.Event, entry.User, entry.Detail).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail of an incident, oldest first.
func (r *Repository) ListAudit(ctx context.Context, incidentID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, incident_id, event, user_id, detail, created_at
		FROM incident_audit
		WHERE incident_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Event, &e.User, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}

	return entries, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	var roles []byte
	var boilerplate, digest []byte
	var rcaLink *string

	err := row.Scan(
		&inc.ID,
		&inc.ChannelID,
		&inc.ChannelName,
		&inc.Description,
		&inc.Status,
		&inc.Severity,
		&roles,
		&inc.IsSecurity,
		&inc.CreatedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.LastUpdateSent,
		&boilerplate,
		&digest,
		&rcaLink,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(roles, &inc.Roles); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	if inc.BoilerplateMessage, err = messageRef(boilerplate); err != nil {
		return nil, err
	}
	if inc.DigestMessage, err = messageRef(digest); err != nil {
		return nil, err
	}
	if rcaLink != nil {
		inc.RCALink = *rcaLink
	}

	return &inc, nil
}

func messageRef(data []byte) (*domain.MessageRef, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ref domain.MessageRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("unmarshal message ref: %w", err)
	}
	return &ref, nil
}

func rolesOrEmpty(roles map[domain.RoleName]string) map[domain.RoleName]string {
	if roles == nil {
		return map[domain.RoleName]string{}
	}
	return roles
}
