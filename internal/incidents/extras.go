package incidents

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/pkg/ctxlog"
	"github.com/bissquit/incident-bot/internal/tasks"
)

// ExtrasConfig selects which deferred creation steps run.
type ExtrasConfig struct {
	AutoInviteUsers          []string
	CreateTicket             bool
	CreateStatusPageIncident bool
	// PagePolicies maps a severity to the escalation policies paged for it.
	PagePolicies map[domain.Severity][]string
}

// Extras runs the creation steps that talk to slow external systems.
// They run on the task queue so the creating request returns quickly.
type Extras struct {
	svc    *Service
	config ExtrasConfig
}

// NewExtras creates deferred creation steps bound to svc.
func NewExtras(svc *Service, config ExtrasConfig) *Extras {
	return &Extras{svc: svc, config: config}
}

// Handle is the tasks.HandlerFunc for TaskExtras. The payload is the incident id.
func (e *Extras) Handle(ctx context.Context, task tasks.Task) error {
	id, ok := task.Payload.(string)
	if !ok || id == "" {
		return tasks.Permanent(fmt.Errorf("extras task %s: unexpected payload %T", task.ID, task.Payload))
	}
	return e.Run(ctxlog.With(ctx, "task_id", task.ID), id)
}

// Run executes every configured step. Steps are independent: a failing step
// is logged and audited and the rest still run. The only returned error is
// failing to load the incident.
func (e *Extras) Run(ctx context.Context, incidentID string) error {
	s := e.svc

	inc, err := s.repo.Get(ctx, incidentID)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			return tasks.Permanent(err)
		}
		return fmt.Errorf("get incident %s: %w", incidentID, err)
	}
	ctx = ctxlog.With(ctx, "incident_id", inc.ID, "channel_id", inc.ChannelID)

	for _, user := range e.config.AutoInviteUsers {
		e.step(ctx, inc, "auto invite", func() error {
			return s.notifier.InviteUser(ctx, inc.ChannelID, user)
		})
	}

	if s.adapters.Feeds != nil {
		e.step(ctx, inc, "related incidents", func() error {
			feed, err := s.adapters.Feeds.RecentIncidents(ctx)
			if err != nil || len(feed) == 0 {
				return err
			}
			_, err = s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.relatedIncidents(feed))
			return err
		})
	}

	var created []domain.ExternalRef

	if s.adapters.Tickets != nil && e.config.CreateTicket && len(inc.RefsFor(domain.ProviderJira)) == 0 {
		e.step(ctx, inc, "create ticket", func() error {
			ref, err := s.adapters.Tickets.CreateTicket(ctx, inc)
			if err != nil {
				return err
			}
			created = append(created, ref)
			return s.repo.AddExternalRef(ctx, inc.ID, ref)
		})
	}

	if s.adapters.StatusPage != nil && len(inc.RefsFor(domain.ProviderStatuspage)) == 0 {
		if e.config.CreateStatusPageIncident {
			e.step(ctx, inc, "create status page incident", func() error {
				ref, err := s.adapters.StatusPage.CreateExternalIncident(ctx, inc)
				if err != nil {
					return err
				}
				created = append(created, ref)
				return s.repo.AddExternalRef(ctx, inc.ID, ref)
			})
		} else {
			e.step(ctx, inc, "status page prompt", func() error {
				_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.statusPagePrompt(s.adapters.StatusPage.PageURL()))
				return err
			})
		}
	}

	if policies := e.config.PagePolicies[inc.Severity]; s.adapters.Pager != nil && len(policies) > 0 && len(inc.RefsFor(domain.ProviderPagerDuty)) == 0 {
		e.step(ctx, inc, "page", func() error {
			refs, err := s.adapters.Pager.Page(ctx, inc, policies)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				created = append(created, ref)
				if err := s.repo.AddExternalRef(ctx, inc.ID, ref); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if len(created) > 0 {
		e.step(ctx, inc, "post external refs", func() error {
			_, err := s.notifier.PostMessage(ctx, inc.ChannelID, s.messages.externalRefs(created))
			return err
		})
	}

	ctxlog.FromContext(ctx).Info("incident extras done", "external_refs", len(created))
	return nil
}

func (e *Extras) step(ctx context.Context, inc *domain.Incident, name string, fn func() error) {
	failed := false
	e.svc.step(ctx, inc, name, func() error {
		err := fn()
		failed = err != nil
		return err
	})
	if failed {
		recordExtrasStep(name, "failed")
		return
	}
	recordExtrasStep(name, "success")
}
