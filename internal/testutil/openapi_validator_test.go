package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

const specPath = "../../api/openapi/openapi.yaml"

func TestOpenAPISpec_DocumentsAPI(t *testing.T) {
	v := NewOpenAPIValidator(t, specPath)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/readyz"},
		{http.MethodGet, "/version"},
		{http.MethodPost, "/api/v1/auth/login"},
		{http.MethodGet, "/api/v1/me"},
		{http.MethodPost, "/api/v1/users"},
		{http.MethodGet, "/api/v1/incidents"},
		{http.MethodPost, "/api/v1/incidents"},
		{http.MethodGet, "/api/v1/incidents/{id}"},
		{http.MethodPatch, "/api/v1/incidents/{id}/status"},
		{http.MethodPatch, "/api/v1/incidents/{id}/severity"},
		{http.MethodPut, "/api/v1/incidents/{id}/roles/{role}"},
		{http.MethodPost, "/api/v1/incidents/{id}/updates"},
		{http.MethodGet, "/api/v1/incidents/{id}/audit"},
		{http.MethodGet, "/api/v1/jobs"},
		{http.MethodDelete, "/api/v1/jobs/{id}"},
		{http.MethodGet, "/api/v1/tasks"},
		{http.MethodGet, "/api/v1/tasks/{id}"},
	}

	for _, r := range routes {
		assert.True(t, v.HasOperation(r.method, r.path), "%s %s is not documented", r.method, r.path)
	}
	assert.False(t, v.HasOperation(http.MethodDelete, "/api/v1/incidents/{id}"))
}

func TestShouldSkipValidation(t *testing.T) {
	v := &OpenAPIValidator{}

	assert.True(t, v.shouldSkipValidation("/healthz"))
	assert.True(t, v.shouldSkipValidation("/slack/commands"))
	assert.True(t, v.shouldSkipValidation("/api/openapi.yaml"))
	assert.False(t, v.shouldSkipValidation("/api/v1/incidents"))
}
