package confluence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/incidents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput() incidents.DocumentInput {
	started := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	return incidents.DocumentInput{
		Incident: &domain.Incident{
			ID:          "inc-202403051407-db-down",
			Description: "DB <primary> down",
			Status:      "resolved",
			Severity:    "sev1",
			Roles:       map[domain.RoleName]string{"incident_commander": "U1"},
			CreatedAt:   started,
		},
		Audit: []*domain.AuditEntry{
			{Event: "created", User: "U1", Detail: "severity=sev1", CreatedAt: started},
			{Event: "status_changed", User: "U1", Detail: "investigating -> resolved", CreatedAt: started.Add(90 * time.Minute)},
		},
	}
}

func TestClient_Render(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 3, 5, 15, 37, 0, 0, time.UTC) }

	body, err := c.render(testInput())
	require.NoError(t, err)

	assert.Contains(t, body, "Postmortem: DB &lt;primary&gt; down")
	assert.Contains(t, body, "<td>Sev1</td>")
	assert.Contains(t, body, "<th>Incident Commander</th><td>U1</td>")
	assert.Contains(t, body, "<td>1h 30m</td>")
	assert.Contains(t, body, "investigating -&gt; resolved")
}

func TestClient_CreateDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wiki/rest/api/content", r.URL.Path)

		var req createPageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "page", req.Type)
		assert.Equal(t, "OPS", req.Space["key"])
		assert.Equal(t, []map[string]string{{"id": "123"}}, req.Ancestors)
		assert.Equal(t, "storage", req.Body.Storage.Representation)
		assert.Contains(t, req.Title, "inc-202403051407-db-down")

		_, _ = w.Write([]byte(`{"id":"987","_links":{"base":"https://wiki.example.com/wiki","webui":"/spaces/OPS/pages/987"}}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{URL: server.URL + "/wiki", Space: "OPS", ParentID: "123"})
	require.NoError(t, err)

	url, err := c.CreateDocument(context.Background(), testInput())

	require.NoError(t, err)
	assert.Equal(t, "https://wiki.example.com/wiki/spaces/OPS/pages/987", url)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2h", formatDuration(2*time.Hour))
	assert.Equal(t, "2h 15m", formatDuration(135*time.Minute))
}
