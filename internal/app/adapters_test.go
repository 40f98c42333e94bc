package app

import (
	"testing"

	"github.com/bissquit/incident-bot/internal/config"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleFromConfig_MatchesDefaults(t *testing.T) {
	lc := lifecycleFromConfig(config.Default().Incidents)
	want := incidents.DefaultLifecycle()

	assert.Equal(t, want.Statuses, lc.Statuses)
	assert.Equal(t, want.Severities, lc.Severities)
	assert.Equal(t, want.QualifyingSeverities, lc.QualifyingSeverities)
	assert.Equal(t, want.InitialStatus, lc.InitialStatus)
	assert.Equal(t, want.ResolvedStatus, lc.ResolvedStatus)
	assert.Equal(t, want.DefaultSeverity, lc.DefaultSeverity)
	require.Len(t, lc.Roles, 3)
	assert.True(t, lc.Roles[0].Required)
}

func TestBuildAdapters(t *testing.T) {
	cfg := config.Default()
	a := &App{config: &cfg}

	adapters, err := a.buildAdapters(options{})
	require.NoError(t, err)
	assert.Nil(t, adapters.Documents)
	assert.Nil(t, adapters.Tickets)
	assert.Nil(t, adapters.StatusPage)
	assert.Nil(t, adapters.Pager)
	assert.Nil(t, adapters.Feeds)

	cfg.Jira = config.JiraConfig{Enabled: true, URL: "https://jira.example.com", Project: "OPS"}
	cfg.Statuspage = config.StatuspageConfig{Enabled: true, APIKey: "k", PageID: "p"}
	cfg.PagerDuty = config.PagerDutyConfig{Enabled: true, APIToken: "t", FromEmail: "bot@example.com"}
	cfg.Confluence = config.ConfluenceConfig{Enabled: true, URL: "https://wiki.example.com", Space: "OPS"}
	cfg.StatusFeeds = config.StatusFeedsConfig{Enabled: true, Providers: []config.FeedConfig{{Name: "GitHub", URL: "https://www.githubstatus.com"}}}

	adapters, err = a.buildAdapters(options{})
	require.NoError(t, err)
	assert.NotNil(t, adapters.Documents)
	assert.NotNil(t, adapters.Tickets)
	assert.NotNil(t, adapters.StatusPage)
	assert.NotNil(t, adapters.Pager)
	assert.NotNil(t, adapters.Feeds)
}

func TestPagePolicies(t *testing.T) {
	got := pagePolicies(map[string][]string{"sev1": {"P1", "P2"}})
	assert.Equal(t, map[domain.Severity][]string{"sev1": {"P1", "P2"}}, got)
}
