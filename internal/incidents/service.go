// Package incidents coordinates the incident lifecycle: creation, status and
// severity transitions, role assignment and reminders.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/reminders"
)

// TaskExtras is the background task kind running deferred creation steps.
const TaskExtras = "incident.extras"

// Audit event names.
const (
	AuditCreated        = "created"
	AuditStatusChanged  = "status_changed"
	AuditSeverityChange = "severity_changed"
	AuditRoleAssigned   = "role_assigned"
	AuditUpdateSent     = "update_sent"
	AuditStepFailed     = "step_failed"
)

// Config contains lifecycle coordinator settings.
type Config struct {
	Lifecycle        Lifecycle
	ChannelPrefix    string
	ChannelNameLimit int
	DigestChannel    string
	MeetingLink      string
	ReminderInterval time.Duration
	GracePeriod      time.Duration
	StaleThreshold   time.Duration
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Lifecycle:        DefaultLifecycle(),
		ChannelPrefix:    "inc",
		ChannelNameLimit: 80,
		ReminderInterval: 30 * time.Minute,
		GracePeriod:      10 * time.Minute,
		StaleThreshold:   30 * time.Minute,
	}
}

// Service implements the incident lifecycle.
type Service struct {
	repo      Repository
	notifier  chat.Notifier
	reminders ReminderScheduler
	tasks     TaskEnqueuer
	adapters  Adapters
	config    Config
	messages  messages
	now       func() time.Time
}

// NewService creates a new incident service. tasks may be nil, in which case
// deferred extras are skipped.
func NewService(repo Repository, notifier chat.Notifier, reminders ReminderScheduler, tasks TaskEnqueuer, adapters Adapters, config Config) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		reminders: reminders,
		tasks:     tasks,
		adapters:  adapters,
		config:    config,
		messages:  messages{lifecycle: config.Lifecycle, meetingLink: config.MeetingLink},
		now:       time.Now,
	}
}

// Lifecycle returns the configured lifecycle vocabulary.
func (s *Service) Lifecycle() Lifecycle {
	return s.config.Lifecycle
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Description string
	// RequestedBy is the chat user who asked for the incident; invited to the channel.
	RequestedBy string
	// CreatedBy is recorded as the creator. Defaults to RequestedBy.
	CreatedBy  string
	Severity   *domain.Severity
	IsSecurity bool
}

// CreateIncident opens a channel for a new incident and records it.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	lc := s.config.Lifecycle

	severity := lc.DefaultSeverity
	if input.Severity != nil {
		severity = *input.Severity
	}
	if !lc.ValidSeverity(severity) {
		return nil, validationf("severity", "unknown severity %q", severity)
	}

	normalized := NormalizeDescription(input.Description)
	if normalized == "" {
		return nil, validationf("description", "description must contain at least one letter or digit")
	}

	maxLen := MaxDescriptionLength(s.config.ChannelPrefix, s.config.ChannelNameLimit)
	if len(normalized) > maxLen {
		return nil, &ValidationError{
			Field:     "description",
			Message:   fmt.Sprintf("description is too long: %d characters after normalization, max allowed is %d", len(normalized), maxLen),
			MaxLength: maxLen,
		}
	}

	now := s.now()
	id := IDPrefix(s.config.ChannelPrefix, now) + normalized

	channel, err := s.notifier.CreateChannel(ctx, id)
	if err != nil {
		return nil, &AdapterError{Op: "create channel", Err: err}
	}

	createdBy := input.CreatedBy
	if createdBy == "" {
		createdBy = input.RequestedBy
	}

	inc := &domain.Incident{
		ID:          id,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		Description: input.Description,
		Status:      lc.InitialStatus,
		Severity:    severity,
		Roles:       lc.InitialRoles(),
		IsSecurity:  input.IsSecurity,
		CreatedBy:   createdBy,
	}

	if err := s.repo.Create(ctx, inc); err != nil {
		ctxlog.FromContext(ctx).Error("failed to persist incident", "incident_id", id, "channel_id", channel.ID, "error", err)
		return nil, storageErr("create incident", err)
	}

	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)
	ctxlog.FromContext(ctx).Info("incident created", "severity", inc.Severity, "created_by", createdBy)
	recordIncidentCreated(inc.Severity)

	if s.config.DigestChannel != "" {
		s.step(ctx, inc, "post digest", func() error {
			ref, err := s.notifier.PostMessage(ctx, s.config.DigestChannel, s.messages.digest(inc))
			if err != nil {
				return err
			}
			inc.DigestMessage = &ref
			return s.repo.UpdateField(ctx, inc.ID, FieldDigestMessage, ref)
		})
	}

	s.step(ctx, inc, "post boilerplate", func() error {
		ref, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.boilerplate(inc))
		if err != nil {
			return err
		}
		inc.BoilerplateMessage = &ref
		if err := s.repo.UpdateField(ctx, inc.ID, FieldBoilerplateMessage, ref); err != nil {
			return err
		}
		return s.notifier.PinMessage(ctx, ref)
	})

	if input.RequestedBy != "" {
		s.step(ctx, inc, "invite requester", func() error {
			return s.notifier.InviteUser(ctx, inc.ChannelID, input.RequestedBy)
		})
	}

	s.audit(ctx, inc.ID, AuditCreated, createdBy, fmt.Sprintf("severity=%s", inc.Severity))
	s.reconcileReminder(ctx, inc)

	if s.tasks != nil {
		if taskID, err := s.tasks.Enqueue(ctx, TaskExtras, inc.ID); err != nil {
			ctxlog.FromContext(ctx).Error("failed to enqueue incident extras", "error", err)
			recordStepFailure("enqueue extras")
		} else {
			ctxlog.FromContext(ctx).Debug("incident extras enqueued", "task_id", taskID)
		}
	}

	return inc, nil
}

// SetStatus moves an incident to a new status.
// Resolving requires every required role to be claimed.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.Status, actingUser string) error {
	lc := s.config.Lifecycle
	if !lc.ValidStatus(status) {
		return validationf("status", "unknown status %q", status)
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageErr("get incident", err)
	}
	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)

	resolving := lc.IsResolved(status)
	if resolving {
		if missing := lc.MissingRequiredRoles(inc); len(missing) > 0 {
			s.step(ctx, inc, "post missing roles notice", func() error {
				_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.missingRoles(missing))
				return err
			})
			return &PreconditionError{MissingRoles: missing}
		}
	}

	if err := s.repo.UpdateField(ctx, inc.ID, FieldStatus, status); err != nil {
		return storageErr("update status", err)
	}
	previous := inc.Status
	inc.Status = status
	ctxlog.FromContext(ctx).Info("incident status changed", "from", previous, "to", status, "user", actingUser)
	recordTransition("status", string(status))

	// Re-resolving must not create a second postmortem or re-resolve pages.
	if resolving && !lc.IsResolved(previous) {
		s.onResolved(ctx, inc)
	}

	if s.adapters.Tickets != nil {
		for _, ref := range inc.RefsFor(domain.ProviderJira) {
			s.step(ctx, inc, "update ticket status", func() error {
				return s.adapters.Tickets.UpdateTicketStatus(ctx, ref, status)
			})
		}
	}

	s.reconcileReminder(ctx, inc)
	s.refreshMessages(ctx, inc)

	s.step(ctx, inc, "post status notice", func() error {
		_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.statusChanged(status, actingUser))
		return err
	})
	s.audit(ctx, inc.ID, AuditStatusChanged, actingUser, fmt.Sprintf("%s -> %s", previous, status))

	return nil
}

func (s *Service) onResolved(ctx context.Context, inc *domain.Incident) {
	if s.adapters.Documents != nil {
		s.step(ctx, inc, "create postmortem", func() error {
			entries, err := s.repo.ListAudit(ctx, inc.ID)
			if err != nil {
				return err
			}
			url, err := s.adapters.Documents.CreateDocument(ctx, DocumentInput{Incident: inc, Audit: entries})
			if err != nil {
				return err
			}
			inc.RCALink = url
			return s.repo.UpdateField(ctx, inc.ID, FieldRCALink, url)
		})
	}

	s.step(ctx, inc, "post resolution notice", func() error {
		_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.resolved(inc))
		return err
	})

	if s.adapters.StatusPage != nil {
		for _, ref := range inc.RefsFor(domain.ProviderStatuspage) {
			s.step(ctx, inc, "resolve status page incident", func() error {
				return s.adapters.StatusPage.ResolveExternalIncident(ctx, ref.ID)
			})
		}
	}

	if s.adapters.Pager != nil {
		for _, ref := range inc.RefsFor(domain.ProviderPagerDuty) {
			s.step(ctx, inc, "resolve page", func() error {
				return s.adapters.Pager.Resolve(ctx, ref.ID)
			})
		}
	}
}

// SetSeverity changes the severity of an incident and reconciles its reminder.
func (s *Service) SetSeverity(ctx context.Context, id string, severity domain.Severity, actingUser string) error {
	if !s.config.Lifecycle.ValidSeverity(severity) {
		return validationf("severity", "unknown severity %q", severity)
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageErr("get incident", err)
	}
	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)

	if err := s.repo.UpdateField(ctx, inc.ID, FieldSeverity, severity); err != nil {
		return storageErr("update severity", err)
	}
	previous := inc.Severity
	inc.Severity = severity
	ctxlog.FromContext(ctx).Info("incident severity changed", "from", previous, "to", severity, "user", actingUser)
	recordTransition("severity", string(severity))

	s.refreshMessages(ctx, inc)
	s.step(ctx, inc, "post severity notice", func() error {
		_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.severityChanged(severity, actingUser))
		return err
	})
	s.audit(ctx, inc.ID, AuditSeverityChange, actingUser, fmt.Sprintf("%s -> %s", previous, severity))

	s.reconcileReminder(ctx, inc)

	return nil
}

// RoleSource tells whether a role was claimed by the assignee or given by someone else.
type RoleSource string

const (
	RoleSelfClaim  RoleSource = "self_claim"
	RoleAssignedBy RoleSource = "assigned"
)

// AssignRole sets the assignee of a role. Reassignment is allowed; the last write wins.
func (s *Service) AssignRole(ctx context.Context, id string, role domain.RoleName, assignee string, source RoleSource, actingUser string) error {
	def, ok := s.config.Lifecycle.Role(role)
	if !ok {
		return validationf("role", "unknown role %q", role)
	}
	if assignee == "" || assignee == domain.Unclaimed {
		return validationf("assignee", "assignee is required")
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageErr("get incident", err)
	}
	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)

	if err := s.repo.AssignRole(ctx, inc.ID, role, assignee); err != nil {
		return storageErr("assign role", err)
	}
	if inc.Roles == nil {
		inc.Roles = make(map[domain.RoleName]string)
	}
	inc.Roles[role] = assignee
	ctxlog.FromContext(ctx).Info("incident role assigned", "role", role, "assignee", assignee, "source", source)

	s.refreshBoilerplate(ctx, inc)
	s.step(ctx, inc, "post role notice", func() error {
		_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.roleAssigned(role, assignee, source, actingUser))
		return err
	})
	s.step(ctx, inc, "send role briefing", func() error {
		return s.notifier.SendDirect(ctx, assignee, s.messages.roleBriefing(inc, def))
	})
	s.step(ctx, inc, "invite assignee", func() error {
		member, err := s.notifier.IsMember(ctx, inc.ChannelID, assignee)
		if err != nil || member {
			return err
		}
		return s.notifier.InviteUser(ctx, inc.ChannelID, assignee)
	})
	s.audit(ctx, inc.ID, AuditRoleAssigned, actingUser, fmt.Sprintf("%s=%s (%s)", role, assignee, source))

	return nil
}

// UpdateInput holds an incident update.
type UpdateInput struct {
	Message    string
	Impact     string
	Components []string
	User       string
}

// ProvideUpdate publishes an incident update and records when it was sent.
func (s *Service) ProvideUpdate(ctx context.Context, id string, input UpdateInput) error {
	if input.Message == "" {
		return validationf("message", "update message is required")
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageErr("get incident", err)
	}
	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)

	now := s.now()
	if err := s.repo.UpdateField(ctx, inc.ID, FieldLastUpdateSent, now); err != nil {
		return storageErr("update last_update_sent", err)
	}
	inc.LastUpdateSent = &now

	msg := s.messages.update(inc, input)
	s.step(ctx, inc, "post update", func() error {
		_, err := s.notifier.PostMessage(ctx, inc.ChannelID, msg)
		return err
	})
	if inc.DigestMessage != nil {
		s.step(ctx, inc, "post digest update", func() error {
			_, err := s.notifier.PostThreadReply(ctx, *inc.DigestMessage, msg)
			return err
		})
	}
	s.audit(ctx, inc.ID, AuditUpdateSent, input.User, input.Message)

	return nil
}

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.Get(ctx, id)
}

// GetIncidentByChannel returns the incident bound to a chat channel.
func (s *Service) GetIncidentByChannel(ctx context.Context, channelID string) (*domain.Incident, error) {
	return s.repo.GetByChannel(ctx, channelID)
}

// ListIncidents lists incidents matching filter.
func (s *Service) ListIncidents(ctx context.Context, filter ListFilter) ([]*domain.Incident, error) {
	return s.repo.List(ctx, filter)
}

// ListOpen lists incidents that are not resolved.
func (s *Service) ListOpen(ctx context.Context) ([]*domain.Incident, error) {
	return s.repo.ListOpen(ctx)
}

// ListAudit returns the audit trail of an incident.
func (s *Service) ListAudit(ctx context.Context, id string) ([]*domain.AuditEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, id)
}

// ReconcileReminders re-derives reminder jobs from the registry: open incidents
// with a qualifying severity get a job, every other job is cancelled.
func (s *Service) ReconcileReminders(ctx context.Context) error {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return storageErr("list open incidents", err)
	}

	wanted := make(map[string]bool, len(open))
	for _, inc := range open {
		if s.config.Lifecycle.wantsReminder(inc) {
			wanted[ReminderJobID(inc.ChannelID)] = true
			if !s.reminders.Exists(ReminderJobID(inc.ChannelID)) {
				s.reconcileReminder(ctx, inc)
			}
		}
	}

	jobs, err := s.reminders.List(ctx)
	if err != nil {
		return &AdapterError{Op: "list reminder jobs", Err: err}
	}
	for _, job := range jobs {
		if wanted[job.ID] {
			continue
		}
		if err := s.reminders.Cancel(ctx, job.ID); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to cancel stray reminder", "job_id", job.ID, "error", err)
		}
	}

	ctxlog.FromContext(ctx).Info("reminders reconciled", "open_incidents", len(open), "scheduled", len(wanted))
	return nil
}

// RunReminder evaluates a reminder tick for the incident in job.
func (s *Service) RunReminder(ctx context.Context, job domain.ReminderJob) error {
	inc, err := s.repo.Get(ctx, job.IncidentID)
	if err != nil {
		return fmt.Errorf("get incident %s: %w", job.IncidentID, err)
	}
	if s.config.Lifecycle.IsResolved(inc.Status) {
		recordReminder("skipped_resolved")
		return nil
	}

	now := s.now()
	var msg chat.Message
	switch {
	case inc.LastUpdateSent == nil:
		if now.Sub(inc.CreatedAt) < s.config.GracePeriod {
			recordReminder("skipped_grace")
			return nil
		}
		msg = s.messages.noUpdatePrompt(inc)
		recordReminder("no_update_prompt")
	default:
		since := now.Sub(*inc.LastUpdateSent)
		if since < s.config.StaleThreshold {
			recordReminder("skipped_fresh")
			return nil
		}
		msg = s.messages.staleReminder(since)
		recordReminder("stale_reminder")
	}

	if _, err := s.notifier.PostMessage(ctx, inc.ChannelID, msg); err != nil {
		return &AdapterError{Op: "post reminder", Err: err}
	}
	return nil
}

// reconcileReminder enforces: a job exists iff severity qualifies and the incident is open.
func (s *Service) reconcileReminder(ctx context.Context, inc *domain.Incident) {
	jobID := ReminderJobID(inc.ChannelID)

	if s.config.Lifecycle.wantsReminder(inc) {
		s.step(ctx, inc, "schedule reminder", func() error {
			return s.reminders.Schedule(ctx, jobID, s.config.ReminderInterval, domain.ReminderPayload{
				IncidentID: inc.ID,
				ChannelID:  inc.ChannelID,
			})
		})
		return
	}

	s.step(ctx, inc, "cancel reminder", func() error {
		if err := s.reminders.Cancel(ctx, jobID); err != nil && !errors.Is(err, reminders.ErrJobNotFound) {
			return err
		}
		return nil
	})
}

// refreshMessages re-renders digest and boilerplate from the registry.
func (s *Service) refreshMessages(ctx context.Context, inc *domain.Incident) {
	if fresh, err := s.repo.Get(ctx, inc.ID); err == nil {
		*inc = *fresh
	} else {
		ctxlog.FromContext(ctx).Warn("failed to reload incident, rendering local state", "error", err)
	}

	if inc.DigestMessage != nil && !inc.DigestMessage.IsZero() {
		s.step(ctx, inc, "update digest", func() error {
			return s.notifier.UpdateMessage(ctx, *inc.DigestMessage, s.messages.digest(inc))
		})
	}
	s.updateBoilerplate(ctx, inc)
}

func (s *Service) refreshBoilerplate(ctx context.Context, inc *domain.Incident) {
	if fresh, err := s.repo.Get(ctx, inc.ID); err == nil {
		*inc = *fresh
	}
	s.updateBoilerplate(ctx, inc)
}

func (s *Service) updateBoilerplate(ctx context.Context, inc *domain.Incident) {
	if inc.BoilerplateMessage == nil || inc.BoilerplateMessage.IsZero() {
		return
	}
	s.step(ctx, inc, "update boilerplate", func() error {
		return s.notifier.UpdateMessage(ctx, *inc.BoilerplateMessage, s.messages.boilerplate(inc))
	})
}

// step runs a best-effort action: failures are logged, counted and audited
// but never returned.
func (s *Service) step(ctx context.Context, inc *domain.Incident, name string, fn func() error) {
	if err := fn(); err != nil {
		ctxlog.FromContext(ctx).Error("incident step failed", "step", name, "error", err)
		recordStepFailure(name)
		s.audit(ctx, inc.ID, AuditStepFailed, "", name+": "+err.Error())
	}
}

func (s *Service) audit(ctx context.Context, incidentID, event, user, detail string) {
	entry := &domain.AuditEntry{
		IncidentID: incidentID,
		Event:      event,
		User:       user,
		Detail:     detail,
	}
	if err := s.repo.AppendAudit(ctx, entry); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to append audit entry", "event", event, "error", err)
	}
}
