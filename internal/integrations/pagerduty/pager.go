// Package pagerduty pages on-call responders through PagerDuty.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PagerDuty/go-pagerduty"
	"github.com/bissquit/incident-bot/internal/domain"
)

// Config holds PagerDuty client configuration.
type Config struct {
	APIToken string
	// FromEmail is the PagerDuty user the bot acts as.
	FromEmail string
	ServiceID string
	APIURL    string
	// ChannelURL renders a link back to the incident channel. Optional.
	ChannelURL func(channelID string) string
}

// Pager implements incidents.Pager.
type Pager struct {
	config Config
	client *pagerduty.Client
}

// NewPager creates a new PagerDuty pager.
func NewPager(config Config) *Pager {
	var opts []pagerduty.ClientOptions
	if config.APIURL != "" {
		opts = append(opts, pagerduty.WithAPIEndpoint(config.APIURL))
	}
	return &Pager{
		config: config,
		client: pagerduty.NewClient(config.APIToken, opts...),
	}
}

// Page opens one PagerDuty incident per escalation policy. Policies that
// fail are skipped; the error lists them.
func (p *Pager) Page(ctx context.Context, inc *domain.Incident, policyIDs []string) ([]domain.ExternalRef, error) {
	details := fmt.Sprintf("Incident %s (%s) was opened in #%s.", inc.ID, inc.Severity, inc.ChannelName)
	if p.config.ChannelURL != nil {
		details += "\n" + p.config.ChannelURL(inc.ChannelID)
	}

	var (
		refs []domain.ExternalRef
		errs []error
	)
	for _, policyID := range policyIDs {
		opts := &pagerduty.CreateIncidentOptions{
			Type:        "incident",
			Title:       fmt.Sprintf("[%s] %s", inc.Severity, inc.Description),
			Service:     &pagerduty.APIReference{ID: p.config.ServiceID, Type: "service_reference"},
			IncidentKey: inc.ID + ":" + policyID,
			Body:        &pagerduty.APIDetails{Type: "incident_body", Details: details},
			EscalationPolicy: &pagerduty.APIReference{
				ID:   policyID,
				Type: "escalation_policy_reference",
			},
		}

		created, err := p.client.CreateIncidentWithContext(ctx, p.config.FromEmail, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("page policy %s: %w", policyID, err))
			continue
		}

		slog.Info("pagerduty incident created", "incident_id", inc.ID, "pagerduty_id", created.ID, "policy", policyID)
		refs = append(refs, domain.ExternalRef{
			Provider: domain.ProviderPagerDuty,
			ID:       created.ID,
			URL:      created.HTMLURL,
		})
	}

	return refs, errors.Join(errs...)
}

// Resolve resolves a PagerDuty incident.
func (p *Pager) Resolve(ctx context.Context, id string) error {
	_, err := p.client.ManageIncidentsWithContext(ctx, p.config.FromEmail, []pagerduty.ManageIncidentsOptions{{
		ID:     id,
		Type:   "incident_reference",
		Status: "resolved",
	}})
	if err != nil {
		return fmt.Errorf("resolve pagerduty incident %s: %w", id, err)
	}
	return nil
}
