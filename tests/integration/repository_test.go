//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-bot/internal/incidents/postgres"
	"github.com/bissquit/incident-bot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoIncident() *domain.Incident {
	suffix := testutil.RandomSuffix()
	return &domain.Incident{
		ID:          "inc-202601010000-repo-" + suffix,
		ChannelID:   "CREPO" + suffix,
		ChannelName: "inc-202601010000-repo-" + suffix,
		Description: "repo " + suffix,
		Status:      "investigating",
		Severity:    "sev3",
		Roles:       map[domain.RoleName]string{"incident_commander": domain.Unclaimed},
		CreatedBy:   "U1",
	}
}

func TestIncidentRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := incidentspostgres.NewRepository(testDB, "resolved")

	inc := newRepoIncident()
	require.NoError(t, repo.Create(ctx, inc))
	assert.False(t, inc.CreatedAt.IsZero())

	got, err := repo.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.ChannelID, got.ChannelID)
	assert.Equal(t, domain.Status("investigating"), got.Status)
	assert.Nil(t, got.LastUpdateSent)
	assert.Nil(t, got.BoilerplateMessage)

	byChannel, err := repo.GetByChannel(ctx, inc.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, byChannel.ID)

	assert.ErrorIs(t, repo.Create(ctx, inc), incidents.ErrIncidentExists)

	_, err = repo.Get(ctx, "inc-missing")
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestIncidentRepository_UpdateField(t *testing.T) {
	ctx := context.Background()
	repo := incidentspostgres.NewRepository(testDB, "resolved")

	inc := newRepoIncident()
	require.NoError(t, repo.Create(ctx, inc))

	sent := time.Now().UTC().Truncate(time.Microsecond)
	ref := domain.MessageRef{ChannelID: inc.ChannelID, Timestamp: "1700000000.000100"}

	require.NoError(t, repo.UpdateField(ctx, inc.ID, incidents.FieldSeverity, domain.Severity("sev1")))
	require.NoError(t, repo.UpdateField(ctx, inc.ID, incidents.FieldLastUpdateSent, sent))
	require.NoError(t, repo.UpdateField(ctx, inc.ID, incidents.FieldBoilerplateMessage, ref))
	require.NoError(t, repo.AssignRole(ctx, inc.ID, "incident_commander", "U7"))
	require.NoError(t, repo.AssignRole(ctx, inc.ID, "technical_lead", "U8"))

	got, err := repo.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Severity("sev1"), got.Severity)
	require.NotNil(t, got.LastUpdateSent)
	assert.True(t, sent.Equal(*got.LastUpdateSent))
	require.NotNil(t, got.BoilerplateMessage)
	assert.Equal(t, ref, *got.BoilerplateMessage)
	assert.Equal(t, "U7", got.Roles["incident_commander"])
	assert.Equal(t, "U8", got.Roles["technical_lead"])

	err = repo.UpdateField(ctx, inc.ID, incidents.FieldStatus, "not-a-status-type")
	assert.ErrorIs(t, err, incidents.ErrInvalidFieldValue)

	err = repo.UpdateField(ctx, "inc-missing", incidents.FieldStatus, domain.Status("identified"))
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestIncidentRepository_ExternalRefsAndAudit(t *testing.T) {
	ctx := context.Background()
	repo := incidentspostgres.NewRepository(testDB, "resolved")

	inc := newRepoIncident()
	require.NoError(t, repo.Create(ctx, inc))

	ref := domain.ExternalRef{Provider: domain.ProviderJira, ID: "OPS-1", URL: "https://jira.example.com/browse/OPS-1"}
	require.NoError(t, repo.AddExternalRef(ctx, inc.ID, ref))
	// Adding the same ref twice is a no-op.
	require.NoError(t, repo.AddExternalRef(ctx, inc.ID, ref))

	got, err := repo.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ExternalRef{ref}, got.ExternalRefs)

	assert.ErrorIs(t, repo.AddExternalRef(ctx, "inc-missing", ref), incidents.ErrIncidentNotFound)

	require.NoError(t, repo.AppendAudit(ctx, &domain.AuditEntry{IncidentID: inc.ID, Event: "created", User: "U1"}))
	require.NoError(t, repo.AppendAudit(ctx, &domain.AuditEntry{IncidentID: inc.ID, Event: "update_sent", User: "U1", Detail: "all good"}))

	entries, err := repo.ListAudit(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "created", entries[0].Event)
	assert.Equal(t, "all good", entries[1].Detail)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestIncidentRepository_ListOpen(t *testing.T) {
	ctx := context.Background()
	repo := incidentspostgres.NewRepository(testDB, "resolved")

	open := newRepoIncident()
	closed := newRepoIncident()
	require.NoError(t, repo.Create(ctx, open))
	require.NoError(t, repo.Create(ctx, closed))
	require.NoError(t, repo.UpdateField(ctx, closed.ID, incidents.FieldStatus, domain.Status("resolved")))

	list, err := repo.ListOpen(ctx)
	require.NoError(t, err)

	ids := make(map[string]bool, len(list))
	for _, inc := range list {
		ids[inc.ID] = true
	}
	assert.True(t, ids[open.ID])
	assert.False(t, ids[closed.ID])
}

func TestIncidentRepository_ListLoadsExternalRefs(t *testing.T) {
	ctx := context.Background()
	repo := incidentspostgres.NewRepository(testDB, "resolved")

	withRefs := newRepoIncident()
	without := newRepoIncident()
	require.NoError(t, repo.Create(ctx, withRefs))
	require.NoError(t, repo.Create(ctx, without))

	jira := domain.ExternalRef{Provider: domain.ProviderJira, ID: "OPS-2", URL: "https://jira.example.com/browse/OPS-2"}
	page := domain.ExternalRef{Provider: domain.ProviderPagerDuty, ID: "PD1", URL: "https://example.pagerduty.com/incidents/PD1"}
	require.NoError(t, repo.AddExternalRef(ctx, withRefs.ID, jira))
	require.NoError(t, repo.AddExternalRef(ctx, withRefs.ID, page))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	listed, err := repo.List(ctx, incidents.ListFilter{Limit: 100})
	require.NoError(t, err)

	for name, list := range map[string][]*domain.Incident{"ListOpen": open, "List": listed} {
		byID := make(map[string]*domain.Incident, len(list))
		for _, inc := range list {
			byID[inc.ID] = inc
		}
		require.Contains(t, byID, withRefs.ID, name)
		require.Contains(t, byID, without.ID, name)
		assert.ElementsMatch(t, []domain.ExternalRef{jira, page}, byID[withRefs.ID].ExternalRefs, name)
		assert.Empty(t, byID[without.ID].ExternalRefs, name)
	}
}
