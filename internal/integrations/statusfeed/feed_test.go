package statusfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/incidents.json", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestReader_RecentIncidents(t *testing.T) {
	github := feedServer(t, fmt.Sprintf(`{"incidents":[
		{"name":"Actions degraded","status":"investigating","impact":"minor","shortlink":"https://stspg.io/1","created_at":%q},
		{"name":"Old outage","status":"resolved","impact":"major","created_at":%q}
	]}`, now.Add(-2*time.Hour).Format(time.RFC3339), now.AddDate(0, 0, -3).Format(time.RFC3339)))
	aws := feedServer(t, fmt.Sprintf(`{"incidents":[
		{"name":"S3 errors","status":"identified","impact":"major","created_at":%q}
	]}`, now.Add(-time.Hour).Format(time.RFC3339)))

	r := NewReader(Config{Providers: []Provider{
		{Name: "github", URL: github.URL},
		{Name: "aws", URL: aws.URL},
	}})
	r.now = func() time.Time { return now }

	got, err := r.RecentIncidents(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S3 errors", got[0].Name)
	assert.Equal(t, "aws", got[0].Provider)
	assert.Equal(t, "Actions degraded", got[1].Name)
	assert.Equal(t, "https://stspg.io/1", got[1].URL)
}

func TestReader_SkipsFailingProvider(t *testing.T) {
	ok := feedServer(t, fmt.Sprintf(`{"incidents":[{"name":"x","status":"investigating","created_at":%q}]}`, now.Format(time.RFC3339)))
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	r := NewReader(Config{Providers: []Provider{{Name: "ok", URL: ok.URL}, {Name: "broken", URL: broken.URL}}})
	r.now = func() time.Time { return now }

	got, err := r.RecentIncidents(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReader_AllProvidersFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	r := NewReader(Config{Providers: []Provider{{Name: "broken", URL: broken.URL}}})

	_, err := r.RecentIncidents(context.Background())

	assert.Error(t, err)
}
