//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/bissquit/incident-bot/internal/testutil"
	"github.com/stretchr/testify/require"
)

// incidentResult mirrors the incident payload returned by the API.
type incidentResult struct {
	ID             string            `json:"id"`
	ChannelID      string            `json:"channel_id"`
	ChannelName    string            `json:"channel_name"`
	Description    string            `json:"description"`
	Status         string            `json:"status"`
	Severity       string            `json:"severity"`
	Roles          map[string]string `json:"roles"`
	IsSecurity     bool              `json:"is_security"`
	CreatedBy      string            `json:"created_by"`
	LastUpdateSent *time.Time        `json:"last_update_sent"`
	ExternalRefs   []struct {
		Provider string `json:"provider"`
		ID       string `json:"id"`
	} `json:"external_refs"`
}

type auditResult struct {
	ID     int64  `json:"id"`
	Event  string `json:"event"`
	User   string `json:"user"`
	Detail string `json:"detail"`
}

// incidentPath builds an escaped incident URL, optionally with a sub-resource.
func incidentPath(id string, sub ...string) string {
	p := "/api/v1/incidents/" + url.PathEscape(id)
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

// createTestIncident opens an incident with a unique description.
func createTestIncident(t *testing.T, client *testutil.Client, severity string) incidentResult {
	t.Helper()

	payload := map[string]interface{}{
		"description": "checkout errors " + testutil.RandomSuffix(),
	}
	if severity != "" {
		payload["severity"] = severity
	}

	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data incidentResult `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// getIncident fetches an incident through the API.
func getIncident(t *testing.T, client *testutil.Client, id string) incidentResult {
	t.Helper()

	resp, err := client.GET(incidentPath(id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentResult `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// listAudit returns the audit trail of an incident.
func listAudit(t *testing.T, client *testutil.Client, id string) []auditResult {
	t.Helper()

	resp, err := client.GET(incidentPath(id, "audit"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data []auditResult `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// auditEvents lists the event names of an audit trail in order.
func auditEvents(entries []auditResult) []string {
	events := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	return events
}

// createOperator creates an operator account via the admin API and returns its credentials.
func createOperator(t *testing.T) (email, password string) {
	t.Helper()

	admin := newTestClient(t)
	admin.LoginAsAdmin(t)

	email = testutil.RandomEmail()
	password = "operator-password"
	resp, err := admin.POST("/api/v1/users", map[string]string{
		"email":    email,
		"password": password,
		"role":     "operator",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	return email, password
}

// operatorClient returns a validating client logged in as a fresh operator.
func operatorClient(t *testing.T) *testutil.Client {
	t.Helper()

	email, password := createOperator(t)
	client := newTestClient(t)
	client.LoginAs(t, email, password)
	return client
}
