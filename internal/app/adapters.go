package app

import (
	"fmt"

	"github.com/bissquit/incident-bot/internal/config"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/bissquit/incident-bot/internal/integrations/confluence"
	"github.com/bissquit/incident-bot/internal/integrations/jira"
	"github.com/bissquit/incident-bot/internal/integrations/pagerduty"
	"github.com/bissquit/incident-bot/internal/integrations/statusfeed"
	"github.com/bissquit/incident-bot/internal/integrations/statuspage"
)

// buildAdapters creates the enabled external integrations. Disabled ones stay
// nil interfaces so the coordinator skips them.
func (a *App) buildAdapters(o options) (incidents.Adapters, error) {
	if o.adapters != nil {
		return *o.adapters, nil
	}

	var adapters incidents.Adapters
	cfg := a.config

	if cfg.Confluence.Enabled {
		c, err := confluence.NewClient(confluence.Config{
			URL:      cfg.Confluence.URL,
			Username: cfg.Confluence.Username,
			APIToken: cfg.Confluence.APIToken,
			Space:    cfg.Confluence.Space,
			ParentID: cfg.Confluence.ParentID,
		})
		if err != nil {
			return adapters, fmt.Errorf("create confluence client: %w", err)
		}
		adapters.Documents = c
	}

	if cfg.Jira.Enabled {
		adapters.Tickets = jira.NewClient(jira.Config{
			URL:           cfg.Jira.URL,
			Username:      cfg.Jira.Username,
			APIToken:      cfg.Jira.APIToken,
			Project:       cfg.Jira.Project,
			IssueType:     cfg.Jira.IssueType,
			Labels:        cfg.Jira.Labels,
			StatusMapping: cfg.Jira.StatusMapping,
		})
	}

	if cfg.Statuspage.Enabled {
		adapters.StatusPage = statuspage.NewClient(statuspage.Config{
			APIKey: cfg.Statuspage.APIKey,
			PageID: cfg.Statuspage.PageID,
			APIURL: cfg.Statuspage.APIURL,
			URL:    cfg.Statuspage.URL,
		})
	}

	if cfg.PagerDuty.Enabled {
		adapters.Pager = pagerduty.NewPager(pagerduty.Config{
			APIToken:   cfg.PagerDuty.APIToken,
			FromEmail:  cfg.PagerDuty.FromEmail,
			ServiceID:  cfg.PagerDuty.ServiceID,
			APIURL:     cfg.PagerDuty.APIURL,
			ChannelURL: slackChannelURL,
		})
	}

	if cfg.StatusFeeds.Enabled && len(cfg.StatusFeeds.Providers) > 0 {
		providers := make([]statusfeed.Provider, 0, len(cfg.StatusFeeds.Providers))
		for _, p := range cfg.StatusFeeds.Providers {
			providers = append(providers, statusfeed.Provider{Name: p.Name, URL: p.URL})
		}
		adapters.Feeds = statusfeed.NewReader(statusfeed.Config{
			Providers: providers,
			DaysBack:  cfg.StatusFeeds.DaysBack,
			Timeout:   cfg.StatusFeeds.Timeout,
		})
	}

	return adapters, nil
}

func slackChannelURL(channelID string) string {
	return "https://slack.com/app_redirect?channel=" + channelID
}

func lifecycleFromConfig(cfg config.IncidentsConfig) incidents.Lifecycle {
	lc := incidents.Lifecycle{
		InitialStatus:   domain.Status(cfg.InitialStatus),
		ResolvedStatus:  domain.Status(cfg.ResolvedStatus),
		DefaultSeverity: domain.Severity(cfg.DefaultSeverity),
	}
	for _, s := range cfg.Statuses {
		lc.Statuses = append(lc.Statuses, domain.Status(s))
	}
	for _, s := range cfg.Severities {
		lc.Severities = append(lc.Severities, domain.Severity(s))
	}
	for _, s := range cfg.QualifyingSeverities {
		lc.QualifyingSeverities = append(lc.QualifyingSeverities, domain.Severity(s))
	}
	for _, r := range cfg.Roles {
		lc.Roles = append(lc.Roles, incidents.RoleDefinition{
			Name:        domain.RoleName(r.Name),
			Description: r.Description,
			Required:    r.Required,
		})
	}
	return lc
}

func pagePolicies(autoPage map[string][]string) map[domain.Severity][]string {
	out := make(map[domain.Severity][]string, len(autoPage))
	for sev, policies := range autoPage {
		out[domain.Severity(sev)] = policies
	}
	return out
}
